package scoring

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(n int) []QuestionKey {
	letters := []string{"A", "B", "C", "D"}
	out := make([]QuestionKey, n)
	for i := range out {
		out[i] = QuestionKey{ID: uint(i + 1), CorrectAnswer: letters[i%len(letters)]}
	}
	return out
}

func TestScoreAllCorrect(t *testing.T) {
	qs := keys(10)
	submitted := map[uint]string{}
	for _, q := range qs {
		submitted[q.ID] = q.CorrectAnswer
	}

	res := Score(qs, submitted)

	assert.Equal(t, 10, res.CorrectCount)
	assert.Equal(t, 10, res.TotalQuestions)
	assert.True(t, res.Percentage.Equal(decimal.RequireFromString("100.00")), "got %s", res.Percentage)
	for _, pq := range res.PerQuestion {
		assert.True(t, pq.IsCorrect)
	}
}

func TestScoreNoAnswers(t *testing.T) {
	res := Score(keys(5), nil)

	assert.Equal(t, 0, res.CorrectCount)
	assert.True(t, res.Percentage.Equal(decimal.Zero), "got %s", res.Percentage)
	require.Len(t, res.PerQuestion, 5)
	for _, pq := range res.PerQuestion {
		assert.False(t, pq.IsCorrect)
		assert.Empty(t, pq.Selected)
	}
}

func TestScoreMixedRoundsToTwoPlaces(t *testing.T) {
	tests := []struct {
		total, correct int
		want           string
	}{
		{total: 3, correct: 2, want: "66.67"},
		{total: 3, correct: 1, want: "33.33"},
		{total: 12, correct: 7, want: "58.33"},
		{total: 8, correct: 5, want: "62.5"},
		{total: 40, correct: 37, want: "92.5"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(fmt.Sprintf("%d_of_%d", tc.correct, tc.total), func(t *testing.T) {
			qs := keys(tc.total)
			submitted := map[uint]string{}
			for i, q := range qs {
				if i < tc.correct {
					submitted[q.ID] = q.CorrectAnswer
				} else {
					submitted[q.ID] = "Z"
				}
			}

			res := Score(qs, submitted)

			assert.Equal(t, tc.correct, res.CorrectCount)
			assert.True(t, res.Percentage.Equal(decimal.RequireFromString(tc.want)), "expected %s, got %s", tc.want, res.Percentage)
		})
	}
}

func TestScoreNormalizesLetters(t *testing.T) {
	res := Score([]QuestionKey{{ID: 1, CorrectAnswer: "b"}}, map[uint]string{1: " B "})
	assert.Equal(t, 1, res.CorrectCount)
	assert.Equal(t, "B", res.PerQuestion[0].Selected)
}

func TestScoreZeroQuestions(t *testing.T) {
	res := Score(nil, map[uint]string{1: "A"})
	assert.Equal(t, 0, res.TotalQuestions)
	assert.True(t, res.Percentage.IsZero())
	assert.Empty(t, res.PerQuestion)
}

func TestParseAnswers(t *testing.T) {
	got := ParseAnswers(map[string]string{
		"answer_12":  "C",
		"answer_3":   "",
		"answer_abc": "A",
		"answer_0":   "A",
		"csrf":       "x",
	})

	assert.Equal(t, map[uint]string{12: "C", 3: ""}, got)
}
