package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/job/repository"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DraftService runs the on-demand resume workflows: creating the initial
// application draft and replacing it after the resume document was edited.
// Only one workflow runs per job at a time.
type DraftService struct {
	repo      repository.JobRepository
	mailers   MailerFactory
	docs      Documents
	notifier  Notifier
	outputDir string
	clock     func() time.Time
	log       *zap.SugaredLogger
	running   *inflight
}

func NewDraftService(
	repo repository.JobRepository,
	mailers MailerFactory,
	docs Documents,
	notifier Notifier,
	outputDir string,
	log *zap.SugaredLogger,
) *DraftService {
	return &DraftService{
		repo:      repo,
		mailers:   mailers,
		docs:      docs,
		notifier:  notifier,
		outputDir: outputDir,
		clock:     time.Now,
		log:       log.Named("draft"),
		running:   newInflight(),
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// pdfPath returns a fresh export path so a re-export never overwrites a file
// an earlier notification still points at.
func (s *DraftService) pdfPath(jobID string) (string, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create output dir %s", s.outputDir)
	}
	name := fmt.Sprintf("Resume_%s_%s.pdf", unsafeFileChars.ReplaceAllString(jobID, "_"), uuid.NewString()[:8])
	return filepath.Join(s.outputDir, name), nil
}

// applicationDraft is the original application mail with the resume attached
func applicationDraft(rec *domain.JobRecord, attachment string) domain.DraftMessage {
	title := rec.Title
	if title == "" {
		title = rec.JobID
	}
	subject := rec.EmailSubject
	if subject == "" {
		subject = "Application for " + title
	}
	body := rec.EmailBody
	if body == "" {
		body = "Please find my resume attached."
	}
	return domain.DraftMessage{
		To:             rec.ApplyEmail,
		Subject:        subject,
		Body:           body,
		AttachmentPath: attachment,
	}
}

// load fetches the record and maps store errors to failure reasons
func (s *DraftService) load(ctx context.Context, jobID string) (*domain.JobRecord, *Result) {
	rec, err := s.repo.FindByID(ctx, jobID)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, repository.ErrJobNotFound) {
		r := failure(jobID, ReasonJobNotFound, nil)
		return nil, &r
	}
	r := failure(jobID, ReasonStoreFailed, err)
	return nil, &r
}
