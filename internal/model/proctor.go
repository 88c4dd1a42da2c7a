package model

// Proctoring events reported by the exam API for each frame.
const (
	EventFaceOK           = "face_ok"
	EventNoFace           = "no_face"
	EventMultiFace        = "multi_face"
	EventIdentityMismatch = "identity_mismatch"
	EventUploadFailed     = "upload_failed"
)

// Frame is one still image taken by a capture source.
type Frame struct {
	Data []byte
	MIME string
}

// FrameUpload is one capture tick's payload to the proctoring endpoint.
type FrameUpload struct {
	ExamID    string
	SessionID string
	Frame     Frame
}

// Verdict is the proctoring endpoint's answer for a frame. An empty Message
// means no concern this tick.
type Verdict struct {
	Event    string
	Severity Severity
	Message  string
}

// HasAlert reports whether the verdict carries an alert for the candidate.
func (v Verdict) HasAlert() bool {
	return v.Message != ""
}

// SeverityForEvent maps a proctoring event to the severity shown when the
// API does not state one.
func SeverityForEvent(event string) Severity {
	switch event {
	case EventNoFace, EventUploadFailed:
		return SeverityError
	case EventMultiFace, EventIdentityMismatch:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
