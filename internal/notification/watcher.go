package notification

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GmailPush is the payload Gmail publishes on every mailbox change
type GmailPush struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Triggerer starts an early follow-up pass
type Triggerer interface {
	Trigger() bool
}

// GmailWatcher listens to Gmail push notifications on Pub/Sub and starts a
// follow-up pass whenever the mailbox changes, so a manual send is picked up
// without waiting for the next tick.
type GmailWatcher struct {
	pubsubClient *pubsub.Client
	topicName    string
	subName      string
	trigger      Triggerer
	log          *zap.SugaredLogger

	mu sync.Mutex
	// last historyId per mailbox, Pub/Sub delivers at least once
	lastHistoryID map[string]uint64
}

// ShortTopicName extracts "name" from "projects/p/topics/name"
func ShortTopicName(topic string) string {
	if parts := strings.Split(topic, "/"); len(parts) > 1 {
		return parts[len(parts)-1]
	}
	return topic
}

func NewGmailWatcher(ctx context.Context, projectID, topic, credentialsFile string, trigger Triggerer, log *zap.SugaredLogger) (*GmailWatcher, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create pubsub client")
	}
	topicName := ShortTopicName(topic)
	return &GmailWatcher{
		pubsubClient:  client,
		topicName:     topicName,
		subName:       topicName + "-sub",
		trigger:       trigger,
		log:           log.Named("gmail-watch"),
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start receives messages until ctx is cancelled
func (w *GmailWatcher) Start(ctx context.Context) error {
	sub, err := w.subscription(ctx)
	if err != nil {
		return err
	}
	w.log.Infow("Listening for Gmail push notifications", "subscription", w.subName)
	err = sub.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
		w.handle(msg.Data)
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrapf(err, "receive on %s", w.subName)
	}
	return nil
}

func (w *GmailWatcher) Close() error {
	return w.pubsubClient.Close()
}

func (w *GmailWatcher) subscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := w.pubsubClient.Subscription(w.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "check subscription %s", w.subName)
	}
	if exists {
		return sub, nil
	}

	topic := w.pubsubClient.Topic(w.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "check topic %s", w.topicName)
	}
	if !topicExists {
		return nil, errors.Newf("topic %s does not exist, cannot create subscription", w.topicName)
	}
	sub, err = w.pubsubClient.CreateSubscription(ctx, w.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create subscription %s", w.subName)
	}
	w.log.Infow("Created subscription", "subscription", w.subName)
	return sub, nil
}

// handle decodes one push and triggers a pass unless it is a redelivery.
// It reports whether a pass was requested.
func (w *GmailWatcher) handle(data []byte) bool {
	var push GmailPush
	if err := json.Unmarshal(data, &push); err != nil {
		w.log.Warnw("Ignoring malformed Gmail push", "error", err)
		return false
	}

	w.mu.Lock()
	last, seen := w.lastHistoryID[push.EmailAddress]
	if seen && push.HistoryID <= last {
		w.mu.Unlock()
		w.log.Debugw("Skipping duplicate Gmail push", "email", push.EmailAddress, "history_id", push.HistoryID, "last", last)
		return false
	}
	w.lastHistoryID[push.EmailAddress] = push.HistoryID
	w.mu.Unlock()

	started := w.trigger.Trigger()
	w.log.Infow("Mailbox changed, requesting follow-up pass", "email", push.EmailAddress, "history_id", push.HistoryID, "queued", started)
	return true
}
