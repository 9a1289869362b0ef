// Package review derives the post-submission review of an attempt.
package review

import (
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/scoring"
)

// OptionClass classifies one option of a reviewed question.
type OptionClass string

const (
	OptionCorrect             OptionClass = "CORRECT_OPTION"
	OptionIncorrectlySelected OptionClass = "INCORRECTLY_SELECTED"
	OptionNeutral             OptionClass = "NEUTRAL"
)

// Outcome summarises how the taker did on a question.
type Outcome string

const (
	OutcomeCorrect    Outcome = "correct"
	OutcomeIncorrect  Outcome = "incorrect"
	OutcomeUnanswered Outcome = "unanswered"
)

// Option is one option of a reviewed question.
type Option struct {
	Text     string      `json:"text"`
	Class    OptionClass `json:"class"`
	Selected bool        `json:"selected"`
}

// Question is the review row of one question.
type Question struct {
	Index         int      `json:"index"`
	Prompt        string   `json:"prompt"`
	Selected      *string  `json:"selected,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
	Outcome       Outcome  `json:"outcome"`
	Options       []Option `json:"options"`
}

// Review is the full post-submission view of an attempt.
type Review struct {
	TestID    string          `json:"test_id"`
	Title     string          `json:"title"`
	Summary   scoring.Summary `json:"summary"`
	Questions []Question      `json:"questions"`
}

// Render classifies every option of every question against answers.
// It never modifies its inputs and can be called repeatedly.
func Render(test *model.Test, answers map[int]string) Review {
	rows := make([]Question, len(test.Questions))
	for i := range test.Questions {
		rows[i] = renderQuestion(i, &test.Questions[i], answers)
	}

	total := len(test.Questions)
	score := scoring.Score(test.Questions, answers)
	sum, err := scoring.Summarize(score, total)
	if err != nil {
		sum = scoring.Summary{Score: score, Total: total}
	}

	return Review{
		TestID:    test.ID.String(),
		Title:     test.Title,
		Summary:   sum,
		Questions: rows,
	}
}

// FromResult renders the review of a stored result.
func FromResult(test *model.Test, result *model.Result) Review {
	return Render(test, result.Answers)
}

func renderQuestion(index int, q *model.Question, answers map[int]string) Question {
	row := Question{
		Index:         index,
		Prompt:        q.Prompt,
		CorrectAnswer: q.CorrectAnswer,
		Outcome:       OutcomeUnanswered,
		Options:       make([]Option, len(q.Options)),
	}

	selected, answered := answers[index]
	if answered {
		s := selected
		row.Selected = &s
		if selected == q.CorrectAnswer {
			row.Outcome = OutcomeCorrect
		} else {
			row.Outcome = OutcomeIncorrect
		}
	}

	for j, opt := range q.Options {
		o := Option{Text: opt, Class: OptionNeutral, Selected: answered && opt == selected}
		switch {
		case opt == q.CorrectAnswer:
			o.Class = OptionCorrect
		case o.Selected:
			o.Class = OptionIncorrectlySelected
		}
		row.Options[j] = o
	}
	return row
}
