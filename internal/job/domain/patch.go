package domain

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// MergePolicy decides which side of an upsert may change which fields
type MergePolicy int

const (
	// PolicyExternal is used for writes coming from the HTTP surface. It can
	// never change emailSent.
	PolicyExternal MergePolicy = iota
	// PolicyEngine is used by the background engine. It may move emailSent
	// from false to true, never back.
	PolicyEngine
)

func (p MergePolicy) String() string {
	if p == PolicyEngine {
		return "engine"
	}
	return "external"
}

// JobPatch is a partial record. A nil field means "omitted by the caller".
type JobPatch struct {
	JobID        string  `json:"jobId" binding:"required"`
	Title        *string `json:"title,omitempty"`
	Company      *string `json:"company,omitempty"`
	ApplyEmail   *string `json:"applyEmail,omitempty" binding:"omitempty,email|eq=not-provided"`
	EmailSubject *string `json:"emailSubject,omitempty"`
	EmailBody    *string `json:"emailBody,omitempty"`

	DraftCreated   *bool      `json:"draftCreated,omitempty"`
	DraftCreatedAt *time.Time `json:"draftCreatedAt,omitempty"`
	GmailDraftID   *string    `json:"gmailDraftId,omitempty"`
	GmailThreadID  *string    `json:"gmailThreadId,omitempty"`
	GoogleDocID    *string    `json:"googleDocId,omitempty"`

	EmailSent   *bool      `json:"emailSent,omitempty"`
	EmailSentAt *time.Time `json:"emailSentAt,omitempty"`

	FollowUpDays      *int       `json:"followUpDays,omitempty" binding:"omitempty,min=0,max=365"`
	FollowUpSent      *bool      `json:"followUpSent,omitempty"`
	FollowUpDraftID   *string    `json:"followUpDraftId,omitempty"`
	LastFollowUpAt    *time.Time `json:"lastFollowUpAt,omitempty"`
	FollowUpCancelled *bool      `json:"followUpCancelled,omitempty"`
	ReplyReceived     *bool      `json:"replyReceived,omitempty"`

	ProcessedAt *time.Time `json:"processedAt,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type jobPatchJSON JobPatch

// UnmarshalJSON keeps unknown keys in Extra, the same way JobRecord does.
func (p *JobPatch) UnmarshalJSON(data []byte) error {
	var known jobPatchJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range jobRecordFields {
		delete(all, k)
	}
	// updatedAt is always stamped by the store
	delete(all, "updatedAt")
	if len(all) > 0 {
		known.Extra = all
	}
	*p = JobPatch(known)
	return nil
}

// Merge applies a patch on top of existing (nil for an insert) under the
// given policy and returns the resulting record. existing is not modified.
func Merge(existing *JobRecord, patch JobPatch, policy MergePolicy, now time.Time) (*JobRecord, error) {
	now = now.UTC()

	var rec *JobRecord
	if existing != nil {
		if existing.JobID != patch.JobID {
			return nil, errors.Newf("merge: jobId mismatch %q != %q", existing.JobID, patch.JobID)
		}
		rec = existing.Clone()
	} else {
		rec = &JobRecord{JobID: patch.JobID}
	}

	setString(&rec.Title, patch.Title)
	setString(&rec.Company, patch.Company)
	setString(&rec.ApplyEmail, patch.ApplyEmail)
	setString(&rec.EmailSubject, patch.EmailSubject)
	setString(&rec.EmailBody, patch.EmailBody)

	// Engine-owned fields: an omitted value keeps what the store already has.
	// Guard flags only ever go from false to true, so a follow-up cannot be
	// re-armed by a stale payload.
	raise(&rec.DraftCreated, patch.DraftCreated)
	rec.DraftCreatedAt = later(rec.DraftCreatedAt, patch.DraftCreatedAt)
	setString(&rec.GmailDraftID, patch.GmailDraftID)
	setString(&rec.GmailThreadID, patch.GmailThreadID)
	setString(&rec.GoogleDocID, patch.GoogleDocID)
	raise(&rec.FollowUpSent, patch.FollowUpSent)
	setString(&rec.FollowUpDraftID, patch.FollowUpDraftID)
	rec.LastFollowUpAt = later(rec.LastFollowUpAt, patch.LastFollowUpAt)
	raise(&rec.FollowUpCancelled, patch.FollowUpCancelled)
	raise(&rec.ReplyReceived, patch.ReplyReceived)

	if patch.FollowUpDays != nil && *patch.FollowUpDays > 0 {
		rec.FollowUpDays = *patch.FollowUpDays
	}

	if policy == PolicyEngine && patch.EmailSent != nil && *patch.EmailSent && !rec.EmailSent {
		sentAt := now
		if patch.EmailSentAt != nil {
			sentAt = *patch.EmailSentAt
		}
		rec.MarkSent(sentAt, false)
	}
	if rec.EmailSent {
		rec.FollowUpCancelled = true
	}

	if len(patch.Extra) > 0 {
		if rec.Extra == nil {
			rec.Extra = make(map[string]json.RawMessage, len(patch.Extra))
		}
		for k, v := range patch.Extra {
			rec.Extra[k] = v
		}
	}

	if rec.ProcessedAt == nil {
		if patch.ProcessedAt != nil {
			rec.ProcessedAt = cloneTime(patch.ProcessedAt)
		} else {
			rec.ProcessedAt = &now
		}
	}
	rec.UpdatedAt = advance(rec.UpdatedAt, now)

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func raise(dst *bool, v *bool) {
	if v != nil && *v {
		*dst = true
	}
}

// later keeps the current timestamp unless incoming moves it forward
func later(current, incoming *time.Time) *time.Time {
	if incoming == nil {
		return current
	}
	if current != nil && current.After(*incoming) {
		return current
	}
	v := incoming.UTC()
	return &v
}
