package usecase

import (
	"context"
	"time"

	"recruitpulse-backend/internal/job/domain"
)

// Transition is the outcome of evaluating one record
type Transition int

const (
	NoTransition Transition = iota
	TransitionSentDetected
	TransitionFollowUpDue
)

func (t Transition) String() string {
	switch t {
	case TransitionSentDetected:
		return "sent_detected"
	case TransitionFollowUpDue:
		return "follow_up_due"
	default:
		return "none"
	}
}

// Decide evaluates the rules for one record in order: an already sent record
// is left alone, a manual send wins over a due follow-up, and a follow-up is
// due at draftCreatedAt + followUpDays inclusive. A probe error is returned
// as is; the caller must not fall through to the follow-up rule.
func Decide(ctx context.Context, rec *domain.JobRecord, now time.Time, probe MailProbe) (Transition, error) {
	if rec.EmailSent {
		return NoTransition, nil
	}

	if rec.GmailThreadID != "" {
		sent, err := probe.WasManuallySent(ctx, rec.GmailThreadID)
		if err != nil {
			return NoTransition, err
		}
		if sent {
			return TransitionSentDetected, nil
		}
	}

	if !rec.FollowUpEligible() {
		return NoTransition, nil
	}
	due, ok := rec.FollowUpDueAt()
	if !ok || now.UTC().Before(due) {
		return NoTransition, nil
	}
	return TransitionFollowUpDue, nil
}
