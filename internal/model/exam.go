package model

// Exam is the exam paper as delivered to the candidate.
type Exam struct {
	ID              string     `json:"id" binding:"required"`
	Title           string     `json:"title" binding:"required,max=255"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"duration_minutes" binding:"min=0,max=1440"`
	Questions       []Question `json:"questions" binding:"required,min=1,dive"`
}

// DurationSeconds returns the countdown length for an attempt. Exams that do
// not state a duration get DefaultDurationMinutes.
func (e *Exam) DurationSeconds() int {
	if e.DurationMinutes <= 0 {
		return DefaultDurationMinutes * 60
	}
	return e.DurationMinutes * 60
}

// ForCandidate returns a copy of the exam without answer keys.
func (e *Exam) ForCandidate() *Exam {
	out := *e
	out.Questions = make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		out.Questions[i] = q.ForCandidate()
	}
	return &out
}

// DefaultDurationMinutes is used when the exam carries no duration.
const DefaultDurationMinutes = 30
