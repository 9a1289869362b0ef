package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is the persisted, immutable outcome of a completed attempt.
// 0 <= Score <= Total and Total equals the number of questions of the test.
type Result struct {
	ID            uuid.UUID      `json:"id"`
	TestID        uuid.UUID      `json:"test_id"`
	TakerID       string         `json:"taker_id"`
	Score         int            `json:"score"`
	Total         int            `json:"total"`
	Answers       map[int]string `json:"answers"`
	AutoSubmitted bool           `json:"auto_submitted"`
	SubmittedAt   time.Time      `json:"submitted_at"`
}

// ResultFilter selects results from the Result Store. Nil fields do not filter.
type ResultFilter struct {
	TestID  *uuid.UUID
	TakerID *string
}

// Matches reports whether r satisfies the filter.
func (f ResultFilter) Matches(r *Result) bool {
	if f.TestID != nil && *f.TestID != r.TestID {
		return false
	}
	if f.TakerID != nil && *f.TakerID != r.TakerID {
		return false
	}
	return true
}

// ForPair builds a filter for one (test, taker) pair.
func ForPair(testID uuid.UUID, takerID string) ResultFilter {
	return ResultFilter{TestID: &testID, TakerID: &takerID}
}

// ForTaker builds a filter for every result of one taker.
func ForTaker(takerID string) ResultFilter {
	return ResultFilter{TakerID: &takerID}
}
