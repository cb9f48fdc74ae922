package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	jobDelivery "recruitpulse-backend/internal/job/delivery"
	"recruitpulse-backend/internal/job/repository"
	"recruitpulse-backend/internal/job/scheduler"
	"recruitpulse-backend/internal/job/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noDrafts struct{}

func (noDrafts) CreateResumeDraft(_ context.Context, jobID, _ string) usecase.Result {
	return usecase.Result{JobID: jobID, Reason: usecase.ReasonJobNotFound}
}

func (noDrafts) UpdateResumeDraft(_ context.Context, jobID string) usecase.Result {
	return usecase.Result{JobID: jobID, Reason: usecase.ReasonJobNotFound}
}

type noRunner struct{}

func (noRunner) RunOnce(context.Context) (scheduler.PassReport, error) {
	return scheduler.PassReport{}, nil
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo, err := repository.NewJSONJobRepository(filepath.Join(t.TempDir(), "jobs.json"))
	require.NoError(t, err)
	jobs := jobDelivery.NewJobHandler(repo, noDrafts{}, noRunner{}, t.TempDir(), "", zap.NewNop().Sugar())
	return NewHandler(jobs, nil).Router()
}

func TestRoutes(t *testing.T) {
	r := newRouter(t)

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/jobs", http.StatusOK},
		{http.MethodGet, "/api/jobs/nope", http.StatusNotFound},
		{http.MethodPost, "/api/jobs/nope/update-draft", http.StatusNotFound},
		{http.MethodPost, "/api/followups/run", http.StatusOK},
		{http.MethodPost, "/api/telegram/webhook", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.status, w.Code, tt.method+" "+tt.path)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "chrome-extension://abc", w.Header().Get("Access-Control-Allow-Origin"))
}
