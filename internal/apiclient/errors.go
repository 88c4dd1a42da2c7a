package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for exam API failures callers branch on.
var (
	// ErrFaceNotRegistered is the exam API's 403 on exam fetch: the candidate
	// must register a face before taking the exam.
	ErrFaceNotRegistered = errors.New("face not registered")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidExam       = errors.New("invalid exam payload")
)

// APIError is a non-2xx answer from the exam API.
type APIError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Detail)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap maps well-known status codes onto sentinel errors so callers can use
// errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if e.Op == opFetchExam {
			return ErrFaceNotRegistered
		}
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// InvalidExamError lists the fields that failed validation.
type InvalidExamError struct {
	Fields map[string]string
}

func (e *InvalidExamError) Error() string {
	return fmt.Sprintf("%v: %d invalid field(s)", ErrInvalidExam, len(e.Fields))
}

func (e *InvalidExamError) Unwrap() error { return ErrInvalidExam }

// IsUnavailable reports whether err means the exam API could not be reached
// or failed on its side: a transport error, a timeout or a 5xx status.
// Answers the API gave on purpose (4xx, malformed exams) are not.
func IsUnavailable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidExam) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
