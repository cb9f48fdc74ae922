package usecase

import (
	"context"

	"recruitpulse-backend/internal/job/domain"
	"recruitpulse-backend/internal/notification"
)

// MailProbe answers questions about a Gmail thread
type MailProbe interface {
	// WasManuallySent reports whether the thread holds a message the user sent
	WasManuallySent(ctx context.Context, threadID string) (bool, error)

	// HasReply reports whether someone else wrote into the thread
	HasReply(ctx context.Context, threadID string) (bool, error)
}

// Mailer is the mail collaborator used by the follow-up and draft workflows
type Mailer interface {
	MailProbe

	CreateDraft(ctx context.Context, msg domain.DraftMessage) (domain.DraftRef, error)
	CreateDraftInThread(ctx context.Context, msg domain.DraftMessage, threadID string) (domain.DraftRef, error)
	DeleteDraft(ctx context.Context, draftID string) error
}

// MailerFactory builds a Mailer with fresh credentials. A pass that cannot
// build one does not run.
type MailerFactory interface {
	NewMailer(ctx context.Context) (Mailer, error)
}

// MailerFactoryFunc adapts a function to MailerFactory
type MailerFactoryFunc func(ctx context.Context) (Mailer, error)

func (f MailerFactoryFunc) NewMailer(ctx context.Context) (Mailer, error) {
	return f(ctx)
}

// Documents is the editable resume document collaborator
type Documents interface {
	CreateDoc(ctx context.Context, ownerKey, text string) (string, error)
	ShareEditable(ctx context.Context, docID string) error
	ExportPDF(ctx context.Context, docID, path string) error
	EditURL(docID string) string
}

// Notifier delivers status messages on a best-effort basis
type Notifier interface {
	Notify(ctx context.Context, msg notification.Message) bool
}

// FollowUpProcessor runs the transition engine for one record
type FollowUpProcessor interface {
	Process(ctx context.Context, rec *domain.JobRecord, mail Mailer) (bool, error)
}

// DraftUpdater re-exports the resume of a job and replaces its draft
type DraftUpdater interface {
	UpdateResumeDraft(ctx context.Context, jobID string) Result
}

// DraftCreator creates the resume document and the initial application draft
type DraftCreator interface {
	CreateResumeDraft(ctx context.Context, jobID, resumeText string) Result
}
