package usecase

// Reasons returned in a failed Result
const (
	ReasonJobNotFound     = "job not found"
	ReasonNoDocument      = "no document"
	ReasonNoDraft         = "no draft"
	ReasonAlreadySent     = "already sent"
	ReasonNoApplyEmail    = "no apply email"
	ReasonAlreadyDrafted  = "already drafted"
	ReasonMailUnavailable = "mail unavailable"
	ReasonMailCheckFailed = "mail check failed"
	ReasonExportFailed    = "export failed"
	ReasonDocumentFailed  = "document failed"
	ReasonDraftFailed     = "draft failed"
	ReasonStoreFailed     = "store failed"
	ReasonAlreadyRunning  = "already running"
)

// Result is the outcome of an on-demand draft workflow
type Result struct {
	Success  bool   `json:"success"`
	JobID    string `json:"jobId"`
	Reason   string `json:"reason,omitempty"`
	Detail   string `json:"detail,omitempty"`
	DraftID  string `json:"draftId,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	File     string `json:"file,omitempty"`
	EditURL  string `json:"editUrl,omitempty"`
}

func failure(jobID, reason string, err error) Result {
	r := Result{JobID: jobID, Reason: reason}
	if err != nil {
		r.Detail = err.Error()
	}
	return r
}
