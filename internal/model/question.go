package model

import "strconv"

// Question represents a single multiple-choice exam question.
//
// CorrectOption is only known client side in offline/demo mode; the exam API
// never sends it for networked exams.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text" binding:"required,max=2000"`
	Options       []string `json:"options" binding:"required,min=1,dive,required"`
	OptionIDs     []string `json:"option_ids,omitempty"`
	CorrectOption *int     `json:"correct_option,omitempty" binding:"omitempty,min=0"`
}

// HasOption reports whether i indexes one of the question's options.
func (q Question) HasOption(i int) bool {
	return i >= 0 && i < len(q.Options)
}

// IsCorrect reports whether option i is the known correct option.
// Questions without a known answer are never correct.
func (q Question) IsCorrect(i int) bool {
	return q.CorrectOption != nil && *q.CorrectOption == i
}

// AnswerKey is how option i is named on submission: the API's option id when
// the exam keyed its options, otherwise the option index.
func (q Question) AnswerKey(i int) string {
	if i >= 0 && i < len(q.OptionIDs) {
		return q.OptionIDs[i]
	}
	return strconv.Itoa(i)
}

// ForCandidate returns the question stripped of its answer key.
func (q Question) ForCandidate() Question {
	q.CorrectOption = nil
	return q
}

// IntPtr is a small helper for building questions with known answers.
func IntPtr(i int) *int {
	return &i
}
