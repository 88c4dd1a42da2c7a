// Package offline supplies exam papers when the exam API cannot.
package offline

import (
	"context"
	"fmt"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ModeDemo serves the built-in demo exam.
const ModeDemo = "demo"

// Strategy provides a fallback exam after a failed fetch. Implementations
// must not be used for face-registration failures.
type Strategy interface {
	Name() string
	Exam(ctx context.Context, examID string) (*model.Exam, error)
}

// New returns the strategy for mode, or nil when offline mode is disabled.
func New(mode string) (Strategy, error) {
	switch mode {
	case "":
		return nil, nil
	case ModeDemo:
		return Demo{}, nil
	default:
		return nil, fmt.Errorf("unknown offline mode %q", mode)
	}
}

// Demo serves a short Python quiz with known answers.
type Demo struct{}

func (Demo) Name() string { return ModeDemo }

// Exam returns a fresh copy of the demo paper under examID.
func (Demo) Exam(_ context.Context, examID string) (*model.Exam, error) {
	return &model.Exam{
		ID:              examID,
		Title:           "Python Basics",
		Description:     "Demo exam served while the exam API is unreachable.",
		DurationMinutes: 30,
		Questions: []model.Question{
			{
				ID:            "1",
				Text:          "Which of the following is a mutable data type in Python?",
				Options:       []string{"String", "Tuple", "List", "Integer"},
				CorrectOption: model.IntPtr(2),
			},
			{
				ID:            "2",
				Text:          "What is the default port number for HTTP?",
				Options:       []string{"21", "80", "443", "8080"},
				CorrectOption: model.IntPtr(1),
			},
			{
				ID:            "3",
				Text:          "Which protocol is used for secure web communication?",
				Options:       []string{"HTTP", "FTP", "HTTPS", "SMTP"},
				CorrectOption: model.IntPtr(2),
			},
		},
	}, nil
}
