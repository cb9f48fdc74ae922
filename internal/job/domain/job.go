package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// NotProvidedEmail is the sentinel the extension posts when a listing has no
// apply address. It disables every email-dependent transition.
const NotProvidedEmail = "not-provided"

// DefaultFollowUpDays is used when a record carries no followUpDays.
const DefaultFollowUpDays = 3

// ErrInvariant marks a record whose flags contradict each other
var ErrInvariant = errors.New("job record invariant violated")

// State is the lifecycle position of a job record, derived from its flags
type State string

const (
	StateNoDraft      State = "no_draft"
	StateDraftPending State = "draft_pending"
	StateFollowUpSent State = "follow_up_sent"
	StateSent         State = "sent"
)

// JobRecord is one tracked application as it is persisted in the store
type JobRecord struct {
	JobID        string `json:"jobId"`
	Title        string `json:"title,omitempty"`
	Company      string `json:"company,omitempty"`
	ApplyEmail   string `json:"applyEmail,omitempty"`
	EmailSubject string `json:"emailSubject,omitempty"`
	EmailBody    string `json:"emailBody,omitempty"`

	DraftCreated   bool       `json:"draftCreated"`
	DraftCreatedAt *time.Time `json:"draftCreatedAt,omitempty"`
	GmailDraftID   string     `json:"gmailDraftId,omitempty"`
	GmailThreadID  string     `json:"gmailThreadId,omitempty"`
	GoogleDocID    string     `json:"googleDocId,omitempty"`

	EmailSent   bool       `json:"emailSent"`
	EmailSentAt *time.Time `json:"emailSentAt,omitempty"`

	FollowUpDays      int        `json:"followUpDays,omitempty"`
	FollowUpSent      bool       `json:"followUpSent"`
	FollowUpDraftID   string     `json:"followUpDraftId,omitempty"`
	LastFollowUpAt    *time.Time `json:"lastFollowUpAt,omitempty"`
	FollowUpCancelled bool       `json:"followUpCancelled"`
	ReplyReceived     bool       `json:"replyReceived"`

	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`

	// Extra holds fields the store does not interpret (posted by the browser
	// extension). They are written back untouched.
	Extra map[string]json.RawMessage `json:"-"`
}

// State derives the lifecycle state from the record flags
func (j *JobRecord) State() State {
	switch {
	case j.EmailSent:
		return StateSent
	case j.FollowUpSent:
		return StateFollowUpSent
	case j.DraftCreated:
		return StateDraftPending
	default:
		return StateNoDraft
	}
}

// Validate checks the flag invariants against the derived state
func (j *JobRecord) Validate() error {
	if strings.TrimSpace(j.JobID) == "" {
		return errors.Mark(errors.New("jobId is empty"), ErrInvariant)
	}
	if j.EmailSent && !j.FollowUpCancelled {
		return errors.Mark(errors.Newf("job %s: emailSent without followUpCancelled", j.JobID), ErrInvariant)
	}
	if j.FollowUpSent && !j.DraftCreated {
		return errors.Mark(errors.Newf("job %s: followUpSent without draftCreated", j.JobID), ErrInvariant)
	}
	return nil
}

// HasRealApplyEmail reports whether the record has an address drafts can go to
func (j *JobRecord) HasRealApplyEmail() bool {
	addr := strings.TrimSpace(j.ApplyEmail)
	return addr != "" && addr != NotProvidedEmail
}

// EffectiveFollowUpDays returns followUpDays or the default when unset
func (j *JobRecord) EffectiveFollowUpDays() int {
	if j.FollowUpDays <= 0 {
		return DefaultFollowUpDays
	}
	return j.FollowUpDays
}

// FollowUpDueAt returns when a follow-up becomes due, or false when the
// record has no draft timestamp.
func (j *JobRecord) FollowUpDueAt() (time.Time, bool) {
	if j.DraftCreatedAt == nil {
		return time.Time{}, false
	}
	days := time.Duration(j.EffectiveFollowUpDays()) * 24 * time.Hour
	return j.DraftCreatedAt.UTC().Add(days), true
}

// FollowUpEligible is true when nothing prevents a follow-up except time.
// A record without its initial draft never gets one, since MarkFollowUpSent
// would refuse it after the follow-up draft already exists.
func (j *JobRecord) FollowUpEligible() bool {
	return j.DraftCreated &&
		!j.EmailSent &&
		!j.FollowUpSent &&
		!j.FollowUpCancelled &&
		j.DraftCreatedAt != nil &&
		j.HasRealApplyEmail()
}

// MarkDraftCreated records the initial draft and its handles
func (j *JobRecord) MarkDraftCreated(now time.Time, draftID, threadID, docID string) {
	j.DraftCreated = true
	j.DraftCreatedAt = advance(j.DraftCreatedAt, now)
	j.GmailDraftID = draftID
	j.GmailThreadID = threadID
	if docID != "" {
		j.GoogleDocID = docID
	}
}

// MarkSent moves the record into the terminal sent state. It is a no-op on a
// record that is already sent.
func (j *JobRecord) MarkSent(now time.Time, replied bool) {
	if j.EmailSent {
		return
	}
	j.EmailSent = true
	j.EmailSentAt = advance(j.EmailSentAt, now)
	j.FollowUpCancelled = true
	if replied {
		j.ReplyReceived = true
	}
}

// MarkFollowUpSent records a created follow-up draft
func (j *JobRecord) MarkFollowUpSent(now time.Time, draftID string) error {
	if j.EmailSent || j.FollowUpCancelled {
		return errors.Mark(errors.Newf("job %s: follow-up after send", j.JobID), ErrInvariant)
	}
	if !j.DraftCreated {
		return errors.Mark(errors.Newf("job %s: follow-up without draft", j.JobID), ErrInvariant)
	}
	j.FollowUpSent = true
	j.LastFollowUpAt = advance(j.LastFollowUpAt, now)
	if draftID != "" {
		j.FollowUpDraftID = draftID
	}
	return nil
}

// ReplaceDraft points the record at a new draft in the given thread
func (j *JobRecord) ReplaceDraft(draftID, threadID string) {
	j.GmailDraftID = draftID
	if threadID != "" {
		j.GmailThreadID = threadID
	}
}

// Clone returns a deep copy
func (j *JobRecord) Clone() *JobRecord {
	c := *j
	c.DraftCreatedAt = cloneTime(j.DraftCreatedAt)
	c.EmailSentAt = cloneTime(j.EmailSentAt)
	c.LastFollowUpAt = cloneTime(j.LastFollowUpAt)
	c.ProcessedAt = cloneTime(j.ProcessedAt)
	c.UpdatedAt = cloneTime(j.UpdatedAt)
	if j.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(j.Extra))
		for k, v := range j.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// advance returns now in UTC unless the current value is already later
func advance(current *time.Time, now time.Time) *time.Time {
	now = now.UTC()
	if current != nil && current.After(now) {
		return current
	}
	return &now
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
