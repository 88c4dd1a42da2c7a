package session

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Controller errors.
var (
	ErrNotActive          = errors.New("session is not active")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrEmptyExam          = errors.New("exam has no questions")
	ErrQuestionOutOfRange = errors.New("question index out of range")
	ErrOptionOutOfRange   = errors.New("option index out of range")
	ErrSessionNotFound    = errors.New("session not found")
)

// RedirectKind says why Initialize sent the candidate away.
type RedirectKind string

const (
	RedirectFaceRegistration RedirectKind = "face_registration"
	RedirectExamUnavailable  RedirectKind = "exam_unavailable"
)

// RedirectError is returned by Initialize when the exam cannot start. Route
// is the navigation already published to the UI.
type RedirectError struct {
	Kind  RedirectKind
	Route model.Route
	Err   error
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect to %s (%s): %v", e.Route.View, e.Kind, e.Err)
}

func (e *RedirectError) Unwrap() error { return e.Err }
