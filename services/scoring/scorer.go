// Package scoring marks mock theory tests.
package scoring

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AnswerFieldPrefix prefixes the form field carrying the answer for a question id.
const AnswerFieldPrefix = "answer_"

// QuestionKey is a question id with its correct answer letter.
type QuestionKey struct {
	ID            uint
	CorrectAnswer string
}

// QuestionResult is the marking of a single question.
type QuestionResult struct {
	QuestionID uint   `json:"question_id"`
	Selected   string `json:"selected"` // empty when unanswered
	Correct    string `json:"correct"`
	IsCorrect  bool   `json:"is_correct"`
}

// Result is the marking of a whole attempt.
type Result struct {
	PerQuestion    []QuestionResult `json:"per_question"`
	CorrectCount   int              `json:"correct_count"`
	TotalQuestions int              `json:"total_questions"`
	Percentage     decimal.Decimal  `json:"percentage"`
}

var hundred = decimal.NewFromInt(100)

// Score marks submitted answers against the question keys. A question missing
// from submitted, or answered with an empty string, counts as incorrect.
func Score(questions []QuestionKey, submitted map[uint]string) Result {
	res := Result{
		PerQuestion:    make([]QuestionResult, 0, len(questions)),
		TotalQuestions: len(questions),
		Percentage:     decimal.Zero,
	}

	for _, q := range questions {
		selected := normalize(submitted[q.ID])
		correct := normalize(q.CorrectAnswer)
		ok := selected != "" && selected == correct
		if ok {
			res.CorrectCount++
		}
		res.PerQuestion = append(res.PerQuestion, QuestionResult{
			QuestionID: q.ID,
			Selected:   selected,
			Correct:    correct,
			IsCorrect:  ok,
		})
	}

	if res.TotalQuestions > 0 {
		res.Percentage = decimal.NewFromInt(int64(res.CorrectCount)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(res.TotalQuestions))).
			Round(2)
	}
	return res
}

// ParseAnswers extracts answer_<questionId> form fields into a submission map.
// Fields with a malformed id are ignored.
func ParseAnswers(form map[string]string) map[uint]string {
	out := make(map[uint]string, len(form))
	for key, value := range form {
		rest, ok := strings.CutPrefix(key, AnswerFieldPrefix)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(rest, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		out[uint(id)] = value
	}
	return out
}

func normalize(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}
