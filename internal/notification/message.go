package notification

import (
	"html"
	"regexp"
	"strings"
)

// ActionUpdateDraft is the callback action that re-exports the resume and
// replaces the Gmail draft of a job.
const ActionUpdateDraft = "update_draft"

// maxCallbackData is Telegram's limit on inline button payloads
const maxCallbackData = 64

// Control is an interactive button attached to a notification
type Control struct {
	Label  string
	Action string
	JobID  string
}

// CallbackData encodes the control as "<action>:<jobId>"
func (c Control) CallbackData() string {
	return c.Action + ":" + c.JobID
}

// Fits reports whether the encoded payload is within Telegram's limit
func (c Control) Fits() bool {
	return len(c.CallbackData()) <= maxCallbackData
}

// ParseCallbackData splits "<action>:<jobId>"
func ParseCallbackData(data string) (action, jobID string, ok bool) {
	action, jobID, ok = strings.Cut(data, ":")
	if !ok || action == "" || jobID == "" {
		return "", "", false
	}
	return action, jobID, true
}

// Message is one status notification. Text is Telegram HTML.
type Message struct {
	Title      string
	Text       string
	Attachment string   // optional file path
	Control    *Control // optional
}

var markup = regexp.MustCompile(`<[^>]*>`)

// PlainText returns the message text without markup, for push channels
func (m Message) PlainText() string {
	return html.UnescapeString(markup.ReplaceAllString(m.Text, ""))
}
