package notification

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"recruitpulse-backend/pkg/fcm"
	"recruitpulse-backend/pkg/telegram"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TelegramSender delivers messages to Telegram chats
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, button *telegram.Button) error
	SendDocument(ctx context.Context, chatID int64, path, caption string, button *telegram.Button) error
}

// PushSender delivers push notifications to device tokens
type PushSender interface {
	SendToDevice(ctx context.Context, token string, n fcm.NotificationData) error
}

const (
	sendAttempts      = 2
	defaultRetryDelay = time.Second
)

// Dispatcher fans a message out to every destination. A failing destination
// never blocks the others; each gets one retry and its own rate limiter.
type Dispatcher struct {
	destinations DestinationProvider
	telegram     TelegramSender
	push         PushSender
	limit        rate.Limit
	retryDelay   time.Duration
	log          *zap.SugaredLogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

func WithTelegram(s TelegramSender) DispatcherOption {
	return func(d *Dispatcher) { d.telegram = s }
}

func WithPush(s PushSender) DispatcherOption {
	return func(d *Dispatcher) { d.push = s }
}

// WithRateLimit caps messages per second to a single destination. Zero or
// less disables the limit.
func WithRateLimit(perSecond float64) DispatcherOption {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			d.limit = rate.Limit(perSecond)
		}
	}
}

func WithRetryDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.retryDelay = delay }
}

func WithLogger(log *zap.SugaredLogger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

func NewDispatcher(destinations DestinationProvider, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		destinations: destinations,
		limit:        rate.Inf,
		retryDelay:   defaultRetryDelay,
		log:          zap.NewNop().Sugar(),
		limiters:     make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.Named("notify")
	return d
}

// Notify delivers msg and reports whether at least one destination got it.
// It never returns an error; failures are logged.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) bool {
	dests, err := d.destinations.Destinations(ctx)
	if err != nil {
		d.log.Errorw("Failed to resolve notification destinations", "title", msg.Title, "error", err)
		return false
	}
	if dests.Empty() {
		d.log.Warnw("No notification destinations configured", "title", msg.Title)
		return false
	}

	var (
		wg        sync.WaitGroup
		delivered atomic.Int32
	)
	run := func(key string, send func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.deliver(ctx, key, send) {
				delivered.Add(1)
			}
		}()
	}

	if d.telegram != nil {
		for _, chatID := range dests.Telegram {
			run("telegram:"+strconv.FormatInt(chatID, 10), func(ctx context.Context) error {
				return d.sendTelegram(ctx, chatID, msg)
			})
		}
	} else if len(dests.Telegram) > 0 {
		d.log.Warnw("Telegram destinations configured but no bot token", "chats", len(dests.Telegram))
	}

	if d.push != nil {
		data := fcm.NotificationData{
			Title: msg.Title,
			Body:  msg.PlainText(),
			Data:  map[string]string{"type": "job_status"},
		}
		if msg.Control != nil {
			data.Data["jobId"] = msg.Control.JobID
		}
		for _, token := range dests.FCM {
			run("fcm:"+token, func(ctx context.Context) error {
				return d.push.SendToDevice(ctx, token, data)
			})
		}
	}

	wg.Wait()
	n := int(delivered.Load())
	d.log.Debugw("Notification dispatched", "title", msg.Title, "delivered", n)
	return n > 0
}

func (d *Dispatcher) sendTelegram(ctx context.Context, chatID int64, msg Message) error {
	var button *telegram.Button
	if msg.Control != nil {
		button = &telegram.Button{Text: msg.Control.Label, Data: msg.Control.CallbackData()}
	}
	if msg.Attachment != "" {
		err := d.telegram.SendDocument(ctx, chatID, msg.Attachment, msg.Text, button)
		if err == nil {
			return nil
		}
		// the status still matters without the file
		d.log.Warnw("Failed to send attachment, falling back to text", "chat_id", chatID, "file", msg.Attachment, "error", err)
	}
	return d.telegram.SendMessage(ctx, chatID, msg.Text, button)
}

func (d *Dispatcher) deliver(ctx context.Context, key string, send func(context.Context) error) bool {
	limiter := d.limiter(key)
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			d.log.Warnw("Notification cancelled", "destination", key, "error", err)
			return false
		}
		err := send(ctx)
		if err == nil {
			return true
		}
		d.log.Warnw("Notification delivery failed", "destination", key, "attempt", attempt, "error", err)
		if attempt == sendAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d.retryDelay * time.Duration(attempt)):
		}
	}
	d.log.Errorw("Giving up on notification destination", "destination", key)
	return false
}

func (d *Dispatcher) limiter(key string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[key]
	if !ok {
		l = rate.NewLimiter(d.limit, 1)
		d.limiters[key] = l
	}
	return l
}
