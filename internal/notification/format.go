package notification

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"recruitpulse-backend/internal/job/domain"
)

// SentDetected reports that the user sent the drafted application
func SentDetected(rec *domain.JobRecord) Message {
	lines := []string{
		"✅ <b>Email Sent Detected</b>",
		field("Job", jobTitle(rec)),
		field("Company", rec.Company),
		field("To", rec.ApplyEmail),
	}
	if rec.ReplyReceived {
		lines = append(lines, "📩 A reply is already in the thread")
	}
	return Message{Title: "Email Sent Detected", Text: join(lines)}
}

// FollowUpCreated reports a new follow-up draft
func FollowUpCreated(rec *domain.JobRecord) Message {
	return Message{
		Title: "Follow-up Draft Created",
		Text: join([]string{
			"⏳ <b>Follow-up Draft Created</b>",
			field("Job", jobTitle(rec)),
			field("Company", rec.Company),
			field("To", rec.ApplyEmail),
		}),
	}
}

// FollowUpFailed reports that the follow-up draft could not be created
func FollowUpFailed(rec *domain.JobRecord, err error) Message {
	return Message{
		Title: "Follow-up Draft Failed",
		Text: join([]string{
			"❌ <b>Follow-up Draft Failed</b>",
			field("Job", jobTitle(rec)),
			field("Error", errText(err, "could not create follow-up draft")),
		}),
	}
}

// DraftCreated reports the initial application draft, with the PDF attached
// and a button to re-export it after editing the document.
func DraftCreated(rec *domain.JobRecord, editURL, file string) Message {
	lines := []string{
		"✅ <b>Draft Created</b>",
		field("Job", jobTitle(rec)),
		field("Company", rec.Company),
		field("To", rec.ApplyEmail),
		field("Draft", rec.GmailDraftID),
	}
	if editURL != "" {
		lines = append(lines, fmt.Sprintf("📝 <a href=\"%s\">Edit resume</a>", html.EscapeString(editURL)))
	}
	msg := Message{Title: "Draft Created", Text: join(lines), Attachment: file}
	control := Control{Label: "🔄 Update resume draft", Action: ActionUpdateDraft, JobID: rec.JobID}
	if control.Fits() {
		msg.Control = &control
	}
	return msg
}

// DraftCreateFailed reports a failed initial draft
func DraftCreateFailed(jobID, reason, detail string) Message {
	return Message{
		Title: "Draft Creation Failed",
		Text: join([]string{
			"❌ <b>Draft Creation Failed</b>",
			field("Job ID", jobID),
			field("Reason", reason),
			field("Detail", detail),
		}),
	}
}

// DraftUpdated reports a replaced draft with the new PDF attached
func DraftUpdated(rec *domain.JobRecord, file string) Message {
	return Message{
		Title: "Resume Draft Updated",
		Text: join([]string{
			"✅ <b>Resume Draft Updated</b>",
			field("Job", jobTitle(rec)),
			field("Company", rec.Company),
			field("Draft", rec.GmailDraftID),
			field("File", filepath.Base(file)),
		}),
		Attachment: file,
	}
}

// DraftUpdateFailed reports a rejected or failed draft update
func DraftUpdateFailed(jobID, reason, detail string) Message {
	return Message{
		Title: "Resume Draft Update Failed",
		Text: join([]string{
			"❌ <b>Resume Draft Update Failed</b>",
			field("Job ID", jobID),
			field("Reason", reason),
			field("Detail", detail),
		}),
	}
}

func jobTitle(rec *domain.JobRecord) string {
	if rec.Title != "" {
		return rec.Title
	}
	return rec.JobID
}

// field renders "Name: value" and drops empty values
func field(name, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return name + ": " + html.EscapeString(value)
}

func join(lines []string) string {
	out := lines[:0:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func errText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
