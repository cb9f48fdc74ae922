package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxCaptionLength = 1024
	maxMessageLength = 4096
)

// Button is a single inline keyboard button with callback data
type Button struct {
	Text string
	Data string
}

// Client wraps the Telegram Bot API. Plain messages and document uploads use
// separate HTTP clients so each gets its own timeout.
type Client struct {
	messages  *tgbotapi.BotAPI
	documents *tgbotapi.BotAPI
	polling   *tgbotapi.BotAPI
}

// NewClient creates a client without contacting Telegram
func NewClient(token string, messageTimeout, attachmentTimeout time.Duration) *Client {
	return &Client{
		messages:  newBot(token, messageTimeout),
		documents: newBot(token, attachmentTimeout),
		// long polling holds the request open for up to PollTimeout
		polling: newBot(token, PollTimeout+messageTimeout),
	}
}

// PollTimeout is how long getUpdates waits for new updates
const PollTimeout = 30 * time.Second

func newBot(token string, timeout time.Duration) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: &http.Client{Timeout: timeout},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(tgbotapi.APIEndpoint)
	return bot
}

// SetAPIEndpoint points the client at another Bot API server. The endpoint is
// a format string taking the token and the method name.
func (c *Client) SetAPIEndpoint(endpoint string) {
	c.messages.SetAPIEndpoint(endpoint)
	c.documents.SetAPIEndpoint(endpoint)
	c.polling.SetAPIEndpoint(endpoint)
}

// SendMessage sends an HTML message, optionally with one inline button
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, button *Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if utf8.RuneCountInString(text) <= maxMessageLength {
		msg.ParseMode = tgbotapi.ModeHTML
	} else {
		// same as captions: a cut tag would make Telegram reject the message
		msg.Text = truncate(text, maxMessageLength)
	}
	msg.DisableWebPagePreview = true
	if button != nil {
		msg.ReplyMarkup = keyboard(button)
	}
	if _, err := withContext(ctx, c.messages).Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage to %d: %w", chatID, err)
	}
	return nil
}

// SendDocument uploads a file with an HTML caption
func (c *Client) SendDocument(ctx context.Context, chatID int64, path, caption string, button *Button) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	if utf8.RuneCountInString(caption) <= maxCaptionLength {
		doc.Caption = caption
		doc.ParseMode = tgbotapi.ModeHTML
	} else {
		// cutting HTML could leave an unclosed tag, so send it as plain text
		doc.Caption = truncate(caption, maxCaptionLength)
	}
	if button != nil {
		doc.ReplyMarkup = keyboard(button)
	}
	if _, err := withContext(ctx, c.documents).Send(doc); err != nil {
		return fmt.Errorf("telegram sendDocument to %d: %w", chatID, err)
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops spinning
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := withContext(ctx, c.messages).Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram answerCallbackQuery: %w", err)
	}
	return nil
}

// ClearButtons removes the inline keyboard from a sent message
func (c *Client) ClearButtons(ctx context.Context, chatID int64, messageID int) error {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty)
	if _, err := withContext(ctx, c.messages).Request(edit); err != nil {
		return fmt.Errorf("telegram editMessageReplyMarkup: %w", err)
	}
	return nil
}

// GetUpdates long-polls for callback queries starting at offset
func (c *Client) GetUpdates(ctx context.Context, offset int) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = int(PollTimeout / time.Second)
	cfg.AllowedUpdates = []string{"callback_query"}
	updates, err := withContext(ctx, c.polling).GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	return updates, nil
}

func keyboard(b *Button) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)),
	)
}

// withContext returns a copy of bot whose requests carry ctx
func withContext(ctx context.Context, bot *tgbotapi.BotAPI) *tgbotapi.BotAPI {
	b := *bot
	b.Client = ctxClient{ctx: ctx, client: bot.Client}
	return &b
}

type ctxClient struct {
	ctx    context.Context
	client tgbotapi.HTTPClient
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
