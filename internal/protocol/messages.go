package protocol

import "time"

// TranslateRequest asks for a free-text translation.
type TranslateRequest struct {
	RequestID string `json:"request_id,omitempty"`
	Text      string `json:"text"`
	Language  string `json:"language,omitempty"`
}

type TranslateReply struct {
	RequestID   string `json:"request_id"`
	Translation string `json:"translation"`
	Language    string `json:"language"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error,omitempty"`
}

// NarrateRequest asks for the narration of one message. Mode is "generate"
// (default), "speak" or "script".
type NarrateRequest struct {
	RequestID string `json:"request_id,omitempty"`
	ItemID    string `json:"item_id"`
	Language  string `json:"language,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

type NarrateReply struct {
	RequestID   string   `json:"request_id"`
	ItemID      string   `json:"item_id"`
	Language    string   `json:"language"`
	Subject     string   `json:"subject,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	DisplayBody string   `json:"display_body,omitempty"`
	Script      string   `json:"script,omitempty"`
	Audio       bool     `json:"audio"`
	Warnings    []string `json:"warnings,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// ArtifactRequest addresses one cached narration for play or cleanup.
type ArtifactRequest struct {
	RequestID string `json:"request_id,omitempty"`
	ItemID    string `json:"item_id"`
	Language  string `json:"language"`
}

type ArtifactReply struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// Status is broadcast after every handled request.
type Status struct {
	RequestID string    `json:"request_id"`
	Subject   string    `json:"subject"`
	ItemID    string    `json:"item_id,omitempty"`
	Language  string    `json:"language,omitempty"`
	OK        bool      `json:"ok"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranslate = "narrator.translate"
	SubjectNarrate   = "narrator.narrate"
	SubjectPlay      = "narrator.play"
	SubjectCleanup   = "narrator.cleanup"
	SubjectStatus    = "narrator.status"

	StatusStream = "NARRATOR_STATUS"
)
