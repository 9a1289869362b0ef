// Package scoring computes attempt scores. Every function is pure.
package scoring

import (
	"errors"
	"math"

	"github.com/stemsi/exstem-academy/internal/model"
)

// ErrDivisionUndefined is returned when a percentage is requested for a
// test without questions.
var ErrDivisionUndefined = errors.New("percentage undefined for zero total")

// Summary is the score triple shown in the catalog and after submission.
type Summary struct {
	Score      int `json:"score"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Score counts the questions whose answer equals the correct answer.
// Unanswered or out-of-range indices never match.
func Score(questions []model.Question, answers map[int]string) int {
	correct := 0
	for i := range questions {
		if ans, ok := answers[i]; ok && ans == questions[i].CorrectAnswer {
			correct++
		}
	}
	return correct
}

// Percentage returns round(score * 100 / total).
func Percentage(score, total int) (int, error) {
	if total == 0 {
		return 0, ErrDivisionUndefined
	}
	return int(math.Round(float64(score) * 100 / float64(total))), nil
}

// Summarize builds a Summary for score out of total.
func Summarize(score, total int) (Summary, error) {
	pct, err := Percentage(score, total)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Score: score, Total: total, Percentage: pct}, nil
}
