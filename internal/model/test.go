package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Test is an immutable assessment definition owned by the Test Catalog.
// The engine never mutates a Test.
type Test struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	CourseID        string     `json:"course_id"`
	DurationMinutes int        `json:"duration_minutes"`
	Questions       []Question `json:"questions"`
}

// DurationSeconds returns the countdown length of an attempt.
func (t *Test) DurationSeconds() int {
	return t.DurationMinutes * 60
}

// Validate checks that the test can be delivered to a taker.
func (t *Test) Validate() error {
	if t.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidTest)
	}
	if len(t.Questions) == 0 {
		return ErrNoQuestions
	}
	for i := range t.Questions {
		if err := t.Questions[i].Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}
