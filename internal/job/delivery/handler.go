package delivery

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/job/repository"
	"recruitpulse-backend/internal/job/scheduler"
	"recruitpulse-backend/internal/job/usecase"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DraftWorkflows is the on-demand side of the draft service
type DraftWorkflows interface {
	usecase.DraftCreator
	usecase.DraftUpdater
}

// FollowUpRunner runs one follow-up pass synchronously
type FollowUpRunner interface {
	RunOnce(ctx context.Context) (scheduler.PassReport, error)
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	repo      repository.JobRepository
	drafts    DraftWorkflows
	followUps FollowUpRunner
	outputDir string
	baseURL   string
	log       *zap.SugaredLogger
}

// NewJobHandler creates a new JobHandler. baseURL is used to build download links.
func NewJobHandler(repo repository.JobRepository, drafts DraftWorkflows, followUps FollowUpRunner, outputDir, baseURL string, log *zap.SugaredLogger) *JobHandler {
	return &JobHandler{
		repo:      repo,
		drafts:    drafts,
		followUps: followUps,
		outputDir: outputDir,
		baseURL:   baseURL,
		log:       log.Named("http"),
	}
}

// CreateDraftRequest is the optional body of POST /api/jobs/:id/draft
type CreateDraftRequest struct {
	ResumeText string `json:"resumeText"`
}

type draftResponse struct {
	usecase.Result
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// Health reports liveness
// GET /api/health
func (h *JobHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "RecruitPulse API",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// ListJobs returns every stored record in stored order
// GET /api/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs, err := h.repo.Load(c.Request.Context())
	if err != nil {
		h.storeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*domain.JobRecord{}
	}
	c.JSON(http.StatusOK, jobs)
}

// GetJob returns one record
// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	rec, err := h.repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// UpsertJob inserts or merges a job sent by the browser extension. The
// extension can never clear emailSent.
// POST /api/jobs
func (h *JobHandler) UpsertJob(c *gin.Context) {
	var patch domain.JobPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	rec, inserted, err := h.repo.Upsert(c.Request.Context(), patch, domain.PolicyExternal)
	if err != nil {
		h.storeError(c, err)
		return
	}

	action := "updated"
	if inserted {
		action = "inserted"
	}
	h.log.Infow("Job "+action, "job_id", rec.JobID, "title", rec.Title)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Job " + action + " successfully",
		"jobId":   rec.JobID,
	})
}

// CreateDraft creates the resume document and the application draft
// POST /api/jobs/:id/draft
func (h *JobHandler) CreateDraft(c *gin.Context) {
	var req CreateDraftRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
	}
	res := h.drafts.CreateResumeDraft(c.Request.Context(), c.Param("id"), req.ResumeText)
	h.draftResult(c, res)
}

// UpdateDraft re-exports the resume and replaces the draft
// POST /api/jobs/:id/update-draft
func (h *JobHandler) UpdateDraft(c *gin.Context) {
	res := h.drafts.UpdateResumeDraft(c.Request.Context(), c.Param("id"))
	h.draftResult(c, res)
}

// RunFollowUps runs a follow-up pass now and reports what it did
// POST /api/followups/run
func (h *JobHandler) RunFollowUps(c *gin.Context) {
	report, err := h.followUps.RunOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrPassInProgress) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

// Download serves an exported resume
// GET /downloads/:filename
func (h *JobHandler) Download(c *gin.Context) {
	name := filepath.Base(c.Param("filename"))
	if name == "." || name == "/" || name != c.Param("filename") {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "File not found"})
		return
	}
	path := filepath.Join(h.outputDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "File not found"})
		return
	}
	c.FileAttachment(path, name)
}

func (h *JobHandler) draftResult(c *gin.Context, res usecase.Result) {
	resp := draftResponse{Result: res}
	if res.File != "" {
		resp.DownloadURL = h.baseURL + "/downloads/" + filepath.Base(res.File)
	}
	c.JSON(draftStatus(res), resp)
}

func draftStatus(res usecase.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Reason {
	case usecase.ReasonJobNotFound:
		return http.StatusNotFound
	case usecase.ReasonAlreadyRunning, usecase.ReasonAlreadySent, usecase.ReasonAlreadyDrafted:
		return http.StatusConflict
	case usecase.ReasonNoDocument, usecase.ReasonNoDraft, usecase.ReasonNoApplyEmail:
		return http.StatusUnprocessableEntity
	case usecase.ReasonStoreFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func (h *JobHandler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Job not found"})
	case errors.Is(err, domain.ErrInvariant):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	default:
		h.log.Errorw("Job store request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}
