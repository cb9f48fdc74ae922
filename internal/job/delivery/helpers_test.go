package delivery

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/job/repository"
	"recruitpulse-backend/internal/job/scheduler"
	"recruitpulse-backend/internal/job/usecase"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDrafts struct {
	mu         sync.Mutex
	result     usecase.Result
	created    []string
	resumeText string
	updated    chan string
}

func newFakeDrafts(res usecase.Result) *fakeDrafts {
	return &fakeDrafts{result: res, updated: make(chan string, 8)}
}

func (f *fakeDrafts) CreateResumeDraft(_ context.Context, jobID, resumeText string) usecase.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, jobID)
	f.resumeText = resumeText
	res := f.result
	res.JobID = jobID
	return res
}

func (f *fakeDrafts) UpdateResumeDraft(_ context.Context, jobID string) usecase.Result {
	f.updated <- jobID
	res := f.result
	res.JobID = jobID
	return res
}

type fakeRunner struct {
	report scheduler.PassReport
	err    error
}

func (f fakeRunner) RunOnce(context.Context) (scheduler.PassReport, error) {
	return f.report, f.err
}

type fakeCallbackClient struct {
	mu       sync.Mutex
	answers  []string
	cleared  []int
	updates  [][]tgbotapi.Update
	offsets  []int
	fetchErr error
}

func (f *fakeCallbackClient) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeCallbackClient) ClearButtons(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, messageID)
	return nil
}

// GetUpdates hands out one queued batch per call, then blocks until ctx ends
func (f *fakeCallbackClient) GetUpdates(ctx context.Context, offset int) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if f.fetchErr != nil {
		err := f.fetchErr
		f.fetchErr = nil
		f.mu.Unlock()
		return nil, err
	}
	if len(f.updates) > 0 {
		batch := f.updates[0]
		f.updates = f.updates[1:]
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeCallbackClient) snapshot() (answers []string, cleared []int, offsets []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.answers...), append([]int(nil), f.cleared...), append([]int(nil), f.offsets...)
}

func newRepo(t *testing.T, jobs ...*domain.JobRecord) repository.JobRepository {
	t.Helper()
	repo, err := repository.NewJSONJobRepository(filepath.Join(t.TempDir(), "jobs.json"))
	require.NoError(t, err)
	if len(jobs) > 0 {
		require.NoError(t, repo.Save(context.Background(), jobs))
	}
	return repo
}

func nopLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func callback(id, data string, chatID int64, messageID int) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: messageID,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   id,
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: messageID,
				Chat:      &tgbotapi.Chat{ID: chatID},
			},
		},
	}
}
