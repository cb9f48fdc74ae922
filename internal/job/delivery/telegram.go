package delivery

import (
	"context"
	"crypto/subtle"
	"net/http"
	"slices"
	"sync"
	"time"

	"recruitpulse-backend/internal/job/usecase"
	"recruitpulse-backend/internal/notification"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// CallbackClient is the part of the Telegram client that handles button presses
type CallbackClient interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
	ClearButtons(ctx context.Context, chatID int64, messageID int) error
	GetUpdates(ctx context.Context, offset int) ([]tgbotapi.Update, error)
}

// CallbackHandler turns "update draft" button presses into draft updates.
// Updates arrive through the webhook or through long polling.
type CallbackHandler struct {
	client       CallbackClient
	drafts       usecase.DraftUpdater
	destinations notification.DestinationProvider
	secret       string
	retryDelay   time.Duration
	log          *zap.SugaredLogger

	wg sync.WaitGroup
}

// NewCallbackHandler creates a callback handler. Only chats listed by
// destinations may trigger workflows. An empty secret disables the webhook
// secret check.
func NewCallbackHandler(client CallbackClient, drafts usecase.DraftUpdater, destinations notification.DestinationProvider, secret string, log *zap.SugaredLogger) *CallbackHandler {
	return &CallbackHandler{
		client:       client,
		drafts:       drafts,
		destinations: destinations,
		secret:       secret,
		retryDelay:   3 * time.Second,
		log:          log.Named("telegram"),
	}
}

// Webhook receives updates pushed by Telegram
// POST /api/telegram/webhook
func (h *CallbackHandler) Webhook(c *gin.Context) {
	if h.secret != "" {
		got := c.GetHeader(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false})
			return
		}
	}
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}
	h.HandleUpdate(c.Request.Context(), update)
	// Telegram retries anything but 2xx; failures are reported in the chat instead
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Poll long-polls for updates until ctx is done
func (h *CallbackHandler) Poll(ctx context.Context) error {
	h.log.Info("Telegram polling started")
	offset := 0
	for {
		updates, err := h.client.GetUpdates(ctx, offset)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			h.log.Warnw("Failed to fetch Telegram updates", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(h.retryDelay):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			h.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate acknowledges a button press at once and runs the workflow in
// the background. The workflow reports its own outcome as a notification.
func (h *CallbackHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	cb := update.CallbackQuery
	if cb == nil {
		return
	}

	action, jobID, ok := notification.ParseCallbackData(cb.Data)
	if !ok || action != notification.ActionUpdateDraft {
		h.answer(ctx, cb.ID, "Unknown action")
		return
	}

	var chatID int64
	var messageID int
	if cb.Message != nil && cb.Message.Chat != nil {
		chatID = cb.Message.Chat.ID
		messageID = cb.Message.MessageID
	}
	if !h.allowed(ctx, chatID) {
		h.log.Warnw("Callback from unknown chat ignored", "chat_id", chatID, "job_id", jobID)
		h.answer(ctx, cb.ID, "Not allowed")
		return
	}

	h.answer(ctx, cb.ID, "Updating draft...")
	if messageID != 0 {
		if err := h.client.ClearButtons(ctx, chatID, messageID); err != nil {
			h.log.Warnw("Failed to clear buttons", "chat_id", chatID, "message_id", messageID, "error", err)
		}
	}

	h.log.Infow("Draft update requested", "job_id", jobID, "chat_id", chatID)
	bg := context.WithoutCancel(ctx)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		res := h.drafts.UpdateResumeDraft(bg, jobID)
		h.log.Infow("Draft update finished", "job_id", jobID, "success", res.Success, "reason", res.Reason)
	}()
}

// Wait blocks until every workflow started by a callback has finished
func (h *CallbackHandler) Wait() {
	h.wg.Wait()
}

func (h *CallbackHandler) allowed(ctx context.Context, chatID int64) bool {
	dest, err := h.destinations.Destinations(ctx)
	if err != nil {
		h.log.Warnw("Failed to load destinations", "error", err)
		return false
	}
	return slices.Contains(dest.Telegram, chatID)
}

func (h *CallbackHandler) answer(ctx context.Context, callbackID, text string) {
	if err := h.client.AnswerCallback(ctx, callbackID, text); err != nil {
		h.log.Warnw("Failed to answer callback", "callback_id", callbackID, "error", err)
	}
}
