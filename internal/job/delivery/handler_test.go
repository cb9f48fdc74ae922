package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/job/repository"
	"recruitpulse-backend/internal/job/scheduler"
	"recruitpulse-backend/internal/job/usecase"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	repo   repository.JobRepository
	drafts *fakeDrafts
	dir    string
}

func newTestServer(t *testing.T, runner FollowUpRunner, jobs ...*domain.JobRecord) *testServer {
	t.Helper()
	s := &testServer{
		repo:   newRepo(t, jobs...),
		drafts: newFakeDrafts(usecase.Result{Success: true, DraftID: "d1"}),
		dir:    t.TempDir(),
	}
	h := NewJobHandler(s.repo, s.drafts, runner, s.dir, "http://localhost:5350", nopLog())
	r := gin.New()
	r.GET("/api/health", h.Health)
	r.GET("/api/jobs", h.ListJobs)
	r.GET("/api/jobs/:id", h.GetJob)
	r.POST("/api/jobs", h.UpsertJob)
	r.POST("/api/jobs/:id/draft", h.CreateDraft)
	r.POST("/api/jobs/:id/update-draft", h.UpdateDraft)
	r.POST("/api/followups/run", h.RunFollowUps)
	r.GET("/downloads/:filename", h.Download)
	s.router = r
	return s
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, fakeRunner{})

	w := s.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "RecruitPulse API", body["service"])
}

func TestUpsertInsertThenUpdate(t *testing.T) {
	s := newTestServer(t, fakeRunner{})

	w := s.do(http.MethodPost, "/api/jobs", `{"jobId":"j1","title":"Go Dev","applyEmail":"hr@acme.test","source":"linkedin"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Job inserted successfully", body["message"])
	assert.Equal(t, "j1", body["jobId"])

	w = s.do(http.MethodPost, "/api/jobs", `{"jobId":"j1","company":"Acme"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Job updated successfully", decode(t, w)["message"])

	rec, err := s.repo.FindByID(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "Go Dev", rec.Title)
	assert.Equal(t, "Acme", rec.Company)
	assert.Contains(t, rec.Extra, "source")
}

func TestUpsertCannotClearEmailSent(t *testing.T) {
	sent := &domain.JobRecord{JobID: "j1", EmailSent: true, FollowUpCancelled: true}
	s := newTestServer(t, fakeRunner{}, sent)

	w := s.do(http.MethodPost, "/api/jobs", `{"jobId":"j1","emailSent":false,"title":"Again"}`)
	require.Equal(t, http.StatusOK, w.Code)

	rec, err := s.repo.FindByID(context.Background(), "j1")
	require.NoError(t, err)
	assert.True(t, rec.EmailSent)
	assert.Equal(t, "Again", rec.Title)
}

func TestUpsertValidation(t *testing.T) {
	s := newTestServer(t, fakeRunner{})

	for _, body := range []string{
		`{"title":"no id"}`,
		`{"jobId":"j1","applyEmail":"not an address"}`,
		`{"jobId":"j1","followUpDays":-1}`,
		`{broken`,
	} {
		w := s.do(http.MethodPost, "/api/jobs", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, false, decode(t, w)["success"])
	}

	w := s.do(http.MethodPost, "/api/jobs", `{"jobId":"j2","applyEmail":"not-provided"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpsertCorruptStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	repo, err := repository.NewJSONJobRepository(path)
	require.NoError(t, err)

	h := NewJobHandler(repo, newFakeDrafts(usecase.Result{}), fakeRunner{}, dir, "", nopLog())
	r := gin.New()
	r.POST("/api/jobs", h.UpsertJob)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"jobId":"j1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data), "a corrupt store is never overwritten")
}

func TestListAndGetJobs(t *testing.T) {
	s := newTestServer(t, fakeRunner{}, &domain.JobRecord{JobID: "b"}, &domain.JobRecord{JobID: "a"})

	w := s.do(http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var jobs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0]["jobId"])
	assert.Equal(t, "a", jobs[1]["jobId"])

	w = s.do(http.MethodGet, "/api/jobs/a", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", decode(t, w)["jobId"])

	w = s.do(http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEmptyStoreIsArray(t *testing.T) {
	s := newTestServer(t, fakeRunner{})

	w := s.do(http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestCreateDraftPassesResumeText(t *testing.T) {
	s := newTestServer(t, fakeRunner{})
	s.drafts.result.File = "/tmp/out/Resume_j1_abcd1234.pdf"

	w := s.do(http.MethodPost, "/api/jobs/j1/draft", `{"resumeText":"Jane Doe"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "d1", body["draftId"])
	assert.Equal(t, "http://localhost:5350/downloads/Resume_j1_abcd1234.pdf", body["downloadUrl"])
	assert.Equal(t, []string{"j1"}, s.drafts.created)
	assert.Equal(t, "Jane Doe", s.drafts.resumeText)

	w = s.do(http.MethodPost, "/api/jobs/j2/draft", "")
	assert.Equal(t, http.StatusOK, w.Code, "body is optional")
}

func TestDraftFailureStatus(t *testing.T) {
	tests := []struct {
		reason string
		status int
	}{
		{usecase.ReasonJobNotFound, http.StatusNotFound},
		{usecase.ReasonAlreadyRunning, http.StatusConflict},
		{usecase.ReasonAlreadySent, http.StatusConflict},
		{usecase.ReasonNoDocument, http.StatusUnprocessableEntity},
		{usecase.ReasonNoDraft, http.StatusUnprocessableEntity},
		{usecase.ReasonStoreFailed, http.StatusInternalServerError},
		{usecase.ReasonExportFailed, http.StatusBadGateway},
		{usecase.ReasonMailUnavailable, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			s := newTestServer(t, fakeRunner{})
			s.drafts.result = usecase.Result{Reason: tt.reason, Detail: "boom"}

			w := s.do(http.MethodPost, "/api/jobs/j1/update-draft", "")
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.reason, body["reason"])
			assert.Equal(t, "j1", body["jobId"])
		})
	}
}

func TestRunFollowUps(t *testing.T) {
	s := newTestServer(t, fakeRunner{report: scheduler.PassReport{Checked: 3, Changed: 1}})

	w := s.do(http.MethodPost, "/api/followups/run", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"report":{"checked":3,"changed":1,"failed":0}}`, w.Body.String())

	s = newTestServer(t, fakeRunner{err: scheduler.ErrPassInProgress})
	w = s.do(http.MethodPost, "/api/followups/run", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	s = newTestServer(t, fakeRunner{err: repository.ErrStoreCorrupt})
	w = s.do(http.MethodPost, "/api/followups/run", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDownload(t *testing.T) {
	s := newTestServer(t, fakeRunner{})
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "Resume_j1.pdf"), []byte("%PDF"), 0o644))

	w := s.do(http.MethodGet, "/downloads/Resume_j1.pdf", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Resume_j1.pdf")

	w = s.do(http.MethodGet, "/downloads/missing.pdf", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/downloads/..", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
