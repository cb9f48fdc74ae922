package usecase

import (
	"context"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/notification"

	"github.com/cockroachdb/errors"
)

// CreateResumeDraft puts resumeText into an editable document, exports it
// and creates the application draft with the PDF attached. A document left
// over from an earlier failed attempt is reused.
func (s *DraftService) CreateResumeDraft(ctx context.Context, jobID, resumeText string) Result {
	release, ok := s.running.acquire(jobID)
	if !ok {
		s.log.Infow("Draft workflow already running", "job_id", jobID)
		return failure(jobID, ReasonAlreadyRunning, nil)
	}
	defer release()

	res := s.createResumeDraft(ctx, jobID, resumeText)
	if !res.Success {
		s.log.Warnw("Resume draft creation failed", "job_id", jobID, "reason", res.Reason, "detail", res.Detail)
		s.notifier.Notify(ctx, notification.DraftCreateFailed(jobID, res.Reason, res.Detail))
	}
	return res
}

func (s *DraftService) createResumeDraft(ctx context.Context, jobID, resumeText string) Result {
	rec, fail := s.load(ctx, jobID)
	if fail != nil {
		return *fail
	}
	switch {
	case rec.EmailSent:
		return failure(jobID, ReasonAlreadySent, nil)
	case rec.DraftCreated && rec.GmailDraftID != "":
		return failure(jobID, ReasonAlreadyDrafted, nil)
	case !rec.HasRealApplyEmail():
		return failure(jobID, ReasonNoApplyEmail, nil)
	}

	mail, err := s.mailers.NewMailer(ctx)
	if err != nil {
		return failure(jobID, ReasonMailUnavailable, err)
	}

	docID := rec.GoogleDocID
	if docID == "" {
		if resumeText == "" {
			return failure(jobID, ReasonNoDocument, errors.New("resume text is empty"))
		}
		docID, err = s.docs.CreateDoc(ctx, jobID, resumeText)
		if err != nil {
			return failure(jobID, ReasonDocumentFailed, err)
		}
		if _, err := s.repo.Update(ctx, jobID, func(r *domain.JobRecord) error {
			r.GoogleDocID = docID
			return nil
		}); err != nil {
			return failure(jobID, ReasonStoreFailed, err)
		}
		if err := s.docs.ShareEditable(ctx, docID); err != nil {
			s.log.Warnw("Failed to share resume document", "job_id", jobID, "doc_id", docID, "error", err)
		}
	}

	path, err := s.pdfPath(jobID)
	if err != nil {
		return failure(jobID, ReasonExportFailed, err)
	}
	if err := s.docs.ExportPDF(ctx, docID, path); err != nil {
		return failure(jobID, ReasonExportFailed, err)
	}

	ref, err := mail.CreateDraft(ctx, applicationDraft(rec, path))
	if err != nil {
		return failure(jobID, ReasonDraftFailed, err)
	}

	now := s.clock()
	updated, err := s.repo.Update(ctx, jobID, func(r *domain.JobRecord) error {
		r.MarkDraftCreated(now, ref.ID, ref.ThreadID, docID)
		return nil
	})
	if err != nil {
		res := failure(jobID, ReasonStoreFailed, err)
		res.DraftID, res.ThreadID, res.File = ref.ID, ref.ThreadID, path
		return res
	}

	editURL := s.docs.EditURL(docID)
	s.log.Infow("Resume draft created", "job_id", jobID, "draft_id", ref.ID, "doc_id", docID)
	s.notifier.Notify(ctx, notification.DraftCreated(updated, editURL, path))
	return Result{
		Success:  true,
		JobID:    jobID,
		DraftID:  ref.ID,
		ThreadID: ref.ThreadID,
		File:     path,
		EditURL:  editURL,
	}
}
