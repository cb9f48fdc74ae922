package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/job/repository"
	"recruitpulse-backend/internal/notification"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu sync.Mutex

	sent     map[string]bool
	replied  map[string]bool
	probeErr error
	replyErr error

	createErr         error
	createInThreadErr error
	deleteErr         error

	created         []domain.DraftMessage
	createdInThread []string
	deleted         []string
	probes          int
	nextID          int
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{sent: map[string]bool{}, replied: map[string]bool{}}
}

func (m *fakeMailer) WasManuallySent(_ context.Context, threadID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes++
	if m.probeErr != nil {
		return false, m.probeErr
	}
	return m.sent[threadID], nil
}

func (m *fakeMailer) HasReply(_ context.Context, threadID string) (bool, error) {
	if m.replyErr != nil {
		return false, m.replyErr
	}
	return m.replied[threadID], nil
}

func (m *fakeMailer) newRef(threadID string) domain.DraftRef {
	m.nextID++
	if threadID == "" {
		threadID = fmt.Sprintf("thread-new-%d", m.nextID)
	}
	return domain.DraftRef{ID: fmt.Sprintf("draft-%d", m.nextID), ThreadID: threadID}
}

func (m *fakeMailer) CreateDraft(_ context.Context, msg domain.DraftMessage) (domain.DraftRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return domain.DraftRef{}, m.createErr
	}
	m.created = append(m.created, msg)
	return m.newRef(""), nil
}

func (m *fakeMailer) CreateDraftInThread(_ context.Context, msg domain.DraftMessage, threadID string) (domain.DraftRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createInThreadErr != nil {
		return domain.DraftRef{}, m.createInThreadErr
	}
	m.created = append(m.created, msg)
	m.createdInThread = append(m.createdInThread, threadID)
	return m.newRef(threadID), nil
}

func (m *fakeMailer) DeleteDraft(_ context.Context, draftID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, draftID)
	return m.deleteErr
}

func factoryFor(m *fakeMailer) MailerFactory {
	return MailerFactoryFunc(func(context.Context) (Mailer, error) { return m, nil })
}

type fakeDocs struct {
	createErr error
	shareErr  error
	exportErr error

	createdText []string
	exported    []string
	// block holds ExportPDF until closed
	block chan struct{}
}

func (d *fakeDocs) CreateDoc(_ context.Context, ownerKey, text string) (string, error) {
	if d.createErr != nil {
		return "", d.createErr
	}
	d.createdText = append(d.createdText, text)
	return "doc-" + ownerKey, nil
}

func (d *fakeDocs) ShareEditable(context.Context, string) error { return d.shareErr }

func (d *fakeDocs) ExportPDF(_ context.Context, docID, path string) error {
	if d.block != nil {
		<-d.block
	}
	if d.exportErr != nil {
		return d.exportErr
	}
	d.exported = append(d.exported, docID)
	return os.WriteFile(path, []byte("%PDF-1.4 "+docID), 0o644)
}

func (d *fakeDocs) EditURL(docID string) string {
	return "https://docs.google.com/document/d/" + docID + "/edit"
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (n *fakeNotifier) Notify(_ context.Context, msg notification.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return true
}

func (n *fakeNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.msgs))
	for _, m := range n.msgs {
		out = append(out, m.Title)
	}
	return out
}

func newRepo(t *testing.T, jobs ...*domain.JobRecord) repository.JobRepository {
	t.Helper()
	repo, err := repository.NewJSONJobRepository(filepath.Join(t.TempDir(), "jobs.json"))
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), jobs))
	return repo
}

func nopLog() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// pendingRecord is scenario A: drafted four days ago, nothing sent
func pendingRecord() *domain.JobRecord {
	return &domain.JobRecord{
		JobID:          "j1",
		Title:          "Backend Engineer",
		Company:        "Acme",
		ApplyEmail:     "a@b.com",
		EmailSubject:   "Application for Backend Engineer",
		DraftCreated:   true,
		DraftCreatedAt: timePtr(t0.Add(-4 * 24 * time.Hour)),
		GmailDraftID:   "draft-orig",
		GmailThreadID:  "thread-1",
		FollowUpDays:   3,
	}
}
