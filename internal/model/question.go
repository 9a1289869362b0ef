package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Question is a single multiple-choice item of a Test.
// CorrectAnswer must be one of Options.
type Question struct {
	ID            *uuid.UUID `json:"id,omitempty"`
	Prompt        string     `json:"prompt"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
}

// HasOption reports whether option is one of the question's options.
func (q *Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Validate checks the question invariants: a non-empty set of distinct
// options that contains the correct answer.
func (q *Question) Validate() error {
	if len(q.Options) == 0 {
		return fmt.Errorf("%w: question has no options", ErrInvalidTest)
	}

	seen := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if _, dup := seen[o]; dup {
			return fmt.Errorf("%w: duplicate option %q", ErrInvalidTest, o)
		}
		seen[o] = struct{}{}
	}

	if !q.HasOption(q.CorrectAnswer) {
		return fmt.Errorf("%w: correct answer %q is not an option", ErrInvalidTest, q.CorrectAnswer)
	}
	return nil
}
