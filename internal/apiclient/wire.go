package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type wireExam struct {
	ID              flexID         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	DurationMinutes *int           `json:"duration_minutes"`
	Duration        *int           `json:"duration"`
	Questions       []wireQuestion `json:"questions"`
}

type wireQuestion struct {
	ID            flexID          `json:"id"`
	Text          string          `json:"text"`
	QuestionText  string          `json:"question_text"`
	Options       json.RawMessage `json:"options"`
	CorrectOption json.RawMessage `json:"correct_option"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
}

type wireOption struct {
	OptionID flexID `json:"option_id"`
	ID       flexID `json:"id"`
	Text     string `json:"text"`
}

// decodeExam normalizes the exam payload shapes the exam API has shipped
// and validates the result.
func decodeExam(body []byte, requestedID string) (*model.Exam, error) {
	var w wireExam
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExam, err)
	}

	exam := &model.Exam{
		ID:          string(w.ID),
		Title:       w.Title,
		Description: w.Description,
		Questions:   make([]model.Question, 0, len(w.Questions)),
	}
	if exam.ID == "" {
		exam.ID = requestedID
	}
	switch {
	case w.DurationMinutes != nil:
		exam.DurationMinutes = *w.DurationMinutes
	case w.Duration != nil:
		exam.DurationMinutes = *w.Duration
	}

	for i, wq := range w.Questions {
		q, err := decodeQuestion(wq)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrInvalidExam, i, err)
		}
		if q.ID == "" {
			q.ID = strconv.Itoa(i)
		}
		exam.Questions = append(exam.Questions, q)
	}

	if fields := validator.Struct(exam); fields != nil {
		return nil, &InvalidExamError{Fields: fields}
	}
	return exam, nil
}

func decodeQuestion(wq wireQuestion) (model.Question, error) {
	q := model.Question{ID: string(wq.ID), Text: wq.Text}
	if q.Text == "" {
		q.Text = wq.QuestionText
	}

	texts, ids, err := decodeOptions(wq.Options)
	if err != nil {
		return q, err
	}
	q.Options = texts
	q.OptionIDs = ids

	correct := wq.CorrectOption
	if isNull(correct) {
		correct = wq.CorrectAnswer
	}
	q.CorrectOption = resolveCorrect(correct, ids, len(texts))
	return q, nil
}

// decodeOptions accepts a list of strings, a list of {option_id, text}
// objects, or an object of option id → text. Object options are ordered by id.
func decodeOptions(raw json.RawMessage) (texts, ids []string, err error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil, nil, nil
	}

	switch raw[0] {
	case '[':
		var plain []string
		if err := json.Unmarshal(raw, &plain); err == nil {
			return plain, nil, nil
		}
		var objs []wireOption
		if err := json.Unmarshal(raw, &objs); err != nil {
			return nil, nil, fmt.Errorf("options: %w", err)
		}
		for _, o := range objs {
			id := o.OptionID
			if id == "" {
				id = o.ID
			}
			texts = append(texts, o.Text)
			ids = append(ids, string(id))
		}
		if !distinctIDs(ids) {
			// Answers are keyed by index when ids cannot tell options apart.
			ids = nil
		}
		return texts, ids, nil

	case '{':
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, nil, fmt.Errorf("options: %w", err)
		}
		ids = make([]string, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return lessID(ids[i], ids[j]) })
		for _, id := range ids {
			texts = append(texts, m[id])
		}
		return texts, ids, nil
	}
	return nil, nil, fmt.Errorf("options: unexpected %q", string(raw[:1]))
}

// resolveCorrect turns a correct answer given as an index or option id into
// an option index. Unknown answers yield nil.
func resolveCorrect(raw json.RawMessage, ids []string, n int) *int {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil
	}
	var id flexID
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil
	}
	s := strings.TrimSpace(string(id))

	for i, candidate := range ids {
		if candidate == s {
			return model.IntPtr(i)
		}
	}
	if len(ids) > 0 && raw[0] == '"' {
		return nil
	}
	if idx, err := strconv.Atoi(s); err == nil && idx >= 0 && idx < n {
		return model.IntPtr(idx)
	}
	return nil
}

func distinctIDs(ids []string) bool {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

func lessID(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
