package usecase

import (
	"context"
	"fmt"
	"time"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/notification"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// FollowUpService applies engine decisions to a record and announces them
type FollowUpService struct {
	notifier Notifier
	clock    func() time.Time
	log      *zap.SugaredLogger
}

func NewFollowUpService(notifier Notifier, clock func() time.Time, log *zap.SugaredLogger) *FollowUpService {
	if clock == nil {
		clock = time.Now
	}
	return &FollowUpService{notifier: notifier, clock: clock, log: log.Named("followup")}
}

// Process evaluates rec and mutates it in place. It reports whether rec
// changed. On error rec is left as it was.
func (s *FollowUpService) Process(ctx context.Context, rec *domain.JobRecord, mail Mailer) (bool, error) {
	now := s.clock().UTC()

	transition, err := Decide(ctx, rec, now, mail)
	if err != nil {
		return false, errors.Wrapf(err, "check sent status for job %s", rec.JobID)
	}

	switch transition {
	case TransitionSentDetected:
		replied, err := mail.HasReply(ctx, rec.GmailThreadID)
		if err != nil {
			// the send itself is confirmed, the reply flag can wait
			s.log.Warnw("Failed to check for reply", "job_id", rec.JobID, "error", err)
		}
		rec.MarkSent(now, replied)
		s.log.Infow("Send detected", "job_id", rec.JobID, "title", rec.Title, "reply", replied)
		s.notifier.Notify(ctx, notification.SentDetected(rec))
		return true, nil

	case TransitionFollowUpDue:
		s.log.Infow("Follow-up due", "job_id", rec.JobID, "title", rec.Title)
		ref, err := mail.CreateDraft(ctx, FollowUpDraft(rec))
		if err != nil {
			s.notifier.Notify(ctx, notification.FollowUpFailed(rec, err))
			return false, errors.Wrapf(err, "create follow-up draft for job %s", rec.JobID)
		}
		if err := rec.MarkFollowUpSent(now, ref.ID); err != nil {
			s.log.Errorw("Follow-up draft created but record not updated", "job_id", rec.JobID, "draft_id", ref.ID, "error", err)
			s.notifier.Notify(ctx, notification.FollowUpFailed(rec, err))
			return false, err
		}
		s.notifier.Notify(ctx, notification.FollowUpCreated(rec))
		return true, nil
	}
	return false, nil
}

// FollowUpDraft builds the reminder mail for a record. It has no attachment.
func FollowUpDraft(rec *domain.JobRecord) domain.DraftMessage {
	title := rec.Title
	if title == "" {
		title = rec.JobID
	}
	subject := rec.EmailSubject
	if subject == "" {
		subject = "Application for " + title
	}
	role := "the " + title + " role"
	if rec.Company != "" {
		role += " at " + rec.Company
	}
	body := fmt.Sprintf("Hi,\n\n"+
		"I wanted to follow up on my application for %s.\n"+
		"I remain very interested in the opportunity and would love to discuss further.\n\n"+
		"Looking forward to hearing from you.\n\n"+
		"Best regards", role)

	return domain.DraftMessage{
		To:      rec.ApplyEmail,
		Subject: "Follow-up: " + subject,
		Body:    body,
	}
}
