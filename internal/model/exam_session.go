package model

import (
	"math"
	"time"
)

// SessionState enumerates exam session states.
type SessionState string

const (
	SessionStateLoading                  SessionState = "LOADING"
	SessionStateAwaitingFaceRegistration SessionState = "AWAITING_FACE_REGISTRATION"
	SessionStateFailed                   SessionState = "FAILED"
	SessionStateActive                   SessionState = "ACTIVE"
	SessionStateSubmitting               SessionState = "SUBMITTING"
	SessionStateDone                     SessionState = "DONE"
)

// Terminal reports whether no further transition can happen.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionStateAwaitingFaceRegistration, SessionStateFailed, SessionStateDone:
		return true
	}
	return false
}

// EndReason records why an attempt was submitted.
type EndReason string

const (
	EndReasonManual  EndReason = "manual"
	EndReasonTimeout EndReason = "time_out"
)

// View names a screen of the hosting UI.
type View string

const (
	ViewResults      View = "results"
	ViewFaceRegister View = "face-register"
	ViewDashboard    View = "dashboard"
)

// Route asks the hosting UI to leave the exam screen.
type Route struct {
	View   View    `json:"view"`
	Result *Result `json:"result,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// PassPercentage is the pass mark shown on the results view.
const PassPercentage = 60

// Result is what the results view shows after submission.
type Result struct {
	SessionID      string    `json:"session_id"`
	ExamID         string    `json:"exam_id"`
	ExamTitle      string    `json:"exam_title"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Answered       int       `json:"answered"`
	Percentage     int       `json:"percentage"`
	Passed         bool      `json:"passed"`
	ServerScore    *float64  `json:"server_score,omitempty"`
	EndReason      EndReason `json:"end_reason"`
	SubmitError    string    `json:"submit_error,omitempty"`
	DurationSecs   int       `json:"duration_seconds"`
	AlertCount     int       `json:"alert_count"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Grade fills Percentage and Passed from Score and TotalQuestions.
func (r *Result) Grade() {
	if r.TotalQuestions <= 0 {
		r.Percentage = 0
		r.Passed = false
		return
	}
	r.Percentage = int(math.Round(float64(r.Score) / float64(r.TotalQuestions) * 100))
	r.Passed = r.Percentage >= PassPercentage
}

// Snapshot is a read-only view of a live session for the UI.
type Snapshot struct {
	SessionID      string       `json:"session_id"`
	ExamID         string       `json:"exam_id"`
	State          SessionState `json:"state"`
	ExamTitle      string       `json:"exam_title,omitempty"`
	QuestionIndex  int          `json:"question_index"`
	TotalQuestions int          `json:"total_questions"`
	Question       *Question    `json:"question,omitempty"`
	SelectedOption *int         `json:"selected_option,omitempty"`
	Answered       int          `json:"answered"`
	Remaining      int          `json:"remaining_seconds"`
	Clock          string       `json:"clock"`
	LowTime        bool         `json:"low_time"`
	LastAlert      *Alert       `json:"last_alert,omitempty"`
	Proctoring     bool         `json:"proctoring"`
}

// StartSessionRequest is the payload for opening an exam attempt. Exam may be
// supplied by the caller when the UI already holds the paper.
type StartSessionRequest struct {
	ExamID string `json:"exam_id" binding:"required,max=64"`
	Exam   *Exam  `json:"exam" binding:"omitempty"`
}

// SelectAnswerRequest records an answer for a question.
type SelectAnswerRequest struct {
	QuestionIndex *int `json:"question_index" binding:"required,min=0"`
	OptionIndex   *int `json:"option_index" binding:"required,min=0"`
}

// GoToRequest jumps to a question.
type GoToRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// Submission is the attempt posted to the exam API. Answers map question id
// to the chosen option's answer key.
type Submission struct {
	ExamID          string            `json:"exam_id"`
	Answers         map[string]string `json:"answers"`
	DurationSeconds int               `json:"duration_seconds"`
}

// SubmitReceipt is the exam API's answer to a submission.
type SubmitReceipt struct {
	Message string   `json:"msg"`
	Score   *float64 `json:"score,omitempty"`
}
