package model

import "time"

// Severity ranks a proctoring alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Alert is a transient proctoring verdict shown to the candidate.
// Seq is assigned by the presenter; two alerts with the same message are
// still two distinct alerts.
type Alert struct {
	Seq       uint64    `json:"seq"`
	SessionID string    `json:"session_id,omitempty"`
	ExamID    string    `json:"exam_id,omitempty"`
	Severity  Severity  `json:"severity"`
	Event     string    `json:"event,omitempty"`
	Message   string    `json:"message"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Messages surfaced by the agent itself.
const (
	MsgConnectionLost   = "Connection to the proctoring service was lost. Stay in view of the camera."
	MsgExamLoadFailed   = "The exam could not be loaded. Returning to the dashboard."
	MsgFaceRegistration = "Face registration is required before taking this exam."
)
