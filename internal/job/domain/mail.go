package domain

// DraftMessage is the content of a draft to create at the mail provider
type DraftMessage struct {
	To             string
	Subject        string
	Body           string
	AttachmentPath string // optional
}

// DraftRef identifies a draft and the thread it lives in
type DraftRef struct {
	ID       string
	ThreadID string
}
