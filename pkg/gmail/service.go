package gmail

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"recruitpulse-backend/internal/job/domain"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	user = "me"

	labelSent  = "SENT"
	labelDraft = "DRAFT"
)

// Scopes needed by the draft workflows, the sent detection and the resume
// document export.
var Scopes = []string{
	gmail.GmailComposeScope,
	gmail.GmailReadonlyScope,
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/drive.file",
}

// Service creates authorized Google API clients for the mailbox owner
type Service struct {
	clientID     string
	clientSecret string
	tokens       *TokenFile
	timeout      time.Duration
	log          *zap.SugaredLogger
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback func(*oauth2.Token) error
	log      *zap.SugaredLogger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			s.log.Warnw("Failed to persist refreshed token", "error", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string, tokens *TokenFile, timeout time.Duration, log *zap.SugaredLogger) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokens:       tokens,
		timeout:      timeout,
		log:          log.Named("gmail"),
	}
}

// HTTPClient returns an OAuth client that writes refreshed tokens back to
// the token file. It is built per call so a token replaced on disk is used.
func (s *Service) HTTPClient(ctx context.Context) (*http.Client, error) {
	token, stored, err := s.tokens.Load()
	if err != nil {
		return nil, err
	}

	config := &oauth2.Config{
		ClientID:     firstNonEmpty(s.clientID, stored.ClientID),
		ClientSecret: firstNonEmpty(s.clientSecret, stored.ClientSecret),
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
	if stored.TokenURI != "" {
		config.Endpoint.TokenURL = stored.TokenURI
	}

	// the token source outlives this request, so it must not carry ctx
	src := &notifyTokenSource{
		src:      config.TokenSource(context.WithoutCancel(ctx), token),
		current:  token,
		callback: s.tokens.Save,
		log:      s.log,
	}
	return oauth2.NewClient(context.WithoutCancel(ctx), src), nil
}

// GetGmailService creates a Gmail API client for the mailbox owner
func (s *Service) GetGmailService(ctx context.Context) (*gmail.Service, error) {
	client, err := s.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create Gmail service")
	}
	return srv, nil
}

// NewMailer returns a Mailer with freshly loaded credentials
func (s *Service) NewMailer(ctx context.Context) (*Mailer, error) {
	srv, err := s.GetGmailService(ctx)
	if err != nil {
		return nil, err
	}
	return NewMailer(srv, s.timeout, s.log), nil
}

// Watch (re)starts push notifications for sent mail and the inbox
func (s *Service) Watch(ctx context.Context, topicName string) error {
	srv, err := s.GetGmailService(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Only one watch per mailbox is allowed; clearing a missing one fails harmlessly
	_ = srv.Users.Stop(user).Context(ctx).Do()

	resp, err := srv.Users.Watch(user, &gmail.WatchRequest{
		TopicName:           topicName,
		LabelIds:            []string{"INBOX", labelSent},
		LabelFilterBehavior: "include",
	}).Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, "unable to watch mailbox")
	}
	s.log.Infow("Gmail watch started", "topic", topicName, "expiration", time.UnixMilli(resp.Expiration).UTC(), "history_id", resp.HistoryId)
	return nil
}

// Mailer creates drafts and inspects threads. Every call is bounded by the
// configured timeout.
type Mailer struct {
	srv     *gmail.Service
	timeout time.Duration
	clock   func() time.Time
	log     *zap.SugaredLogger
}

func NewMailer(srv *gmail.Service, timeout time.Duration, log *zap.SugaredLogger) *Mailer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Mailer{srv: srv, timeout: timeout, clock: time.Now, log: log}
}

// CreateDraft creates a draft in a new thread
func (m *Mailer) CreateDraft(ctx context.Context, msg domain.DraftMessage) (domain.DraftRef, error) {
	return m.createDraft(ctx, msg, "", "")
}

// CreateDraftInThread creates a draft that replies into threadID
func (m *Mailer) CreateDraftInThread(ctx context.Context, msg domain.DraftMessage, threadID string) (domain.DraftRef, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	thread, err := m.srv.Users.Threads.Get(user, threadID).
		Format("metadata").MetadataHeaders("Message-ID").
		Context(ctx).Do()
	if err != nil {
		return domain.DraftRef{}, errors.Wrapf(err, "unable to load thread %s", threadID)
	}
	// Gmail only threads a draft that references a message already in the thread
	var parent string
	for _, tm := range thread.Messages {
		if id := header(tm, "Message-ID"); id != "" {
			parent = id
		}
	}
	return m.createDraft(ctx, msg, threadID, parent)
}

func (m *Mailer) createDraft(ctx context.Context, msg domain.DraftMessage, threadID, inReplyTo string) (domain.DraftRef, error) {
	raw, err := buildMessage(msg, inReplyTo, m.clock())
	if err != nil {
		return domain.DraftRef{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	draft, err := m.srv.Users.Drafts.Create(user, &gmail.Draft{
		Message: &gmail.Message{
			Raw:      base64.URLEncoding.EncodeToString(raw),
			ThreadId: threadID,
		},
	}).Context(ctx).Do()
	if err != nil {
		return domain.DraftRef{}, errors.Wrap(err, "unable to create draft")
	}

	ref := domain.DraftRef{ID: draft.Id}
	if draft.Message != nil {
		ref.ThreadID = draft.Message.ThreadId
	}
	m.log.Infow("Draft created", "draft_id", ref.ID, "thread_id", ref.ThreadID, "to", msg.To)
	return ref, nil
}

// DeleteDraft removes a draft. A draft that no longer exists counts as deleted.
func (m *Mailer) DeleteDraft(ctx context.Context, draftID string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.srv.Users.Drafts.Delete(user, draftID).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return errors.Wrapf(err, "unable to delete draft %s", draftID)
	}
	return nil
}

// WasManuallySent reports whether the thread holds a message that left the
// drafts folder through the user's own send.
func (m *Mailer) WasManuallySent(ctx context.Context, threadID string) (bool, error) {
	messages, err := m.threadMessages(ctx, threadID)
	if err != nil {
		return false, err
	}
	for _, msg := range messages {
		if hasLabel(msg.LabelIds, labelSent) && !hasLabel(msg.LabelIds, labelDraft) {
			return true, nil
		}
	}
	return false, nil
}

// HasReply reports whether the thread holds a message the user did not write
func (m *Mailer) HasReply(ctx context.Context, threadID string) (bool, error) {
	messages, err := m.threadMessages(ctx, threadID)
	if err != nil {
		return false, err
	}
	for _, msg := range messages {
		if !hasLabel(msg.LabelIds, labelSent) && !hasLabel(msg.LabelIds, labelDraft) {
			return true, nil
		}
	}
	return false, nil
}

// threadMessages lists a thread's messages. A thread that is gone (its only
// draft was deleted) has no messages.
func (m *Mailer) threadMessages(ctx context.Context, threadID string) ([]*gmail.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	thread, err := m.srv.Users.Threads.Get(user, threadID).Format("minimal").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "unable to load thread %s", threadID)
	}
	return thread.Messages, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}

func header(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if http.CanonicalHeaderKey(h.Name) == http.CanonicalHeaderKey(name) {
			return h.Value
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
