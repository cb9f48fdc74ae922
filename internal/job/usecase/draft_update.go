package usecase

import (
	"context"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/notification"
)

// UpdateResumeDraft exports the linked document to a new PDF and swaps the
// job's draft for one carrying it. The old draft is deleted first; if that
// fails the update still goes ahead.
func (s *DraftService) UpdateResumeDraft(ctx context.Context, jobID string) Result {
	release, ok := s.running.acquire(jobID)
	if !ok {
		s.log.Infow("Draft workflow already running", "job_id", jobID)
		return failure(jobID, ReasonAlreadyRunning, nil)
	}
	defer release()

	res := s.updateResumeDraft(ctx, jobID)
	if !res.Success {
		s.log.Warnw("Resume draft update failed", "job_id", jobID, "reason", res.Reason, "detail", res.Detail)
		s.notifier.Notify(ctx, notification.DraftUpdateFailed(jobID, res.Reason, res.Detail))
	}
	return res
}

func (s *DraftService) updateResumeDraft(ctx context.Context, jobID string) Result {
	rec, fail := s.load(ctx, jobID)
	if fail != nil {
		return *fail
	}
	if rec.GoogleDocID == "" {
		return failure(jobID, ReasonNoDocument, nil)
	}
	if rec.GmailDraftID == "" || rec.GmailThreadID == "" {
		return failure(jobID, ReasonNoDraft, nil)
	}

	mail, err := s.mailers.NewMailer(ctx)
	if err != nil {
		return failure(jobID, ReasonMailUnavailable, err)
	}
	// checked live, the cached flag may be an hour old
	sent, err := mail.WasManuallySent(ctx, rec.GmailThreadID)
	if err != nil {
		return failure(jobID, ReasonMailCheckFailed, err)
	}
	if sent {
		return failure(jobID, ReasonAlreadySent, nil)
	}

	path, err := s.pdfPath(jobID)
	if err != nil {
		return failure(jobID, ReasonExportFailed, err)
	}
	if err := s.docs.ExportPDF(ctx, rec.GoogleDocID, path); err != nil {
		return failure(jobID, ReasonExportFailed, err)
	}

	if err := mail.DeleteDraft(ctx, rec.GmailDraftID); err != nil {
		s.log.Warnw("Failed to delete old draft, continuing", "job_id", jobID, "draft_id", rec.GmailDraftID, "error", err)
	}

	msg := applicationDraft(rec, path)
	ref, err := mail.CreateDraftInThread(ctx, msg, rec.GmailThreadID)
	if err != nil {
		s.log.Warnw("Failed to create draft in thread, creating a new one", "job_id", jobID, "thread_id", rec.GmailThreadID, "error", err)
		ref, err = mail.CreateDraft(ctx, msg)
		if err != nil {
			return failure(jobID, ReasonDraftFailed, err)
		}
	}

	updated, err := s.repo.Update(ctx, jobID, func(r *domain.JobRecord) error {
		r.ReplaceDraft(ref.ID, ref.ThreadID)
		return nil
	})
	if err != nil {
		res := failure(jobID, ReasonStoreFailed, err)
		res.DraftID, res.ThreadID, res.File = ref.ID, ref.ThreadID, path
		return res
	}

	s.log.Infow("Resume draft updated", "job_id", jobID, "draft_id", ref.ID, "file", path)
	s.notifier.Notify(ctx, notification.DraftUpdated(updated, path))
	return Result{
		Success:  true,
		JobID:    jobID,
		DraftID:  updated.GmailDraftID,
		ThreadID: updated.GmailThreadID,
		File:     path,
	}
}
