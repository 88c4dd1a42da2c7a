package session

import "github.com/stemsi/exstem-proctor/internal/model"

// Score counts answers matching each question's known correct option.
// Questions without a known answer never score.
func Score(exam *model.Exam, answers map[int]int) int {
	score := 0
	for qi, opt := range answers {
		if qi < 0 || qi >= len(exam.Questions) {
			continue
		}
		if exam.Questions[qi].IsCorrect(opt) {
			score++
		}
	}
	return score
}

// answerKeys converts index answers into the exam API's question id →
// option key form.
func answerKeys(exam *model.Exam, answers map[int]int) map[string]string {
	out := make(map[string]string, len(answers))
	for qi, opt := range answers {
		if qi < 0 || qi >= len(exam.Questions) {
			continue
		}
		q := exam.Questions[qi]
		out[q.ID] = q.AnswerKey(opt)
	}
	return out
}
