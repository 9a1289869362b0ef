package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the states of an attempt session.
type AttemptStatus string

const (
	AttemptStatusIdle       AttemptStatus = "IDLE"
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusReviewing  AttemptStatus = "REVIEWING"
)

// Finished reports whether the attempt has been scored.
func (s AttemptStatus) Finished() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusReviewing
}

// Attempt is the ephemeral state of one taker working through one test.
// It lives only inside a session and is never persisted.
type Attempt struct {
	TestID           uuid.UUID      `json:"test_id"`
	TakerID          string         `json:"taker_id"`
	StartedAt        time.Time      `json:"started_at"`
	RemainingSeconds int            `json:"remaining_seconds"`
	Answers          map[int]string `json:"answers"`
	CurrentIndex     int            `json:"current_index"`
	Status           AttemptStatus  `json:"status"`
}

// SelectAnswerRequest is the payload for answering a question.
type SelectAnswerRequest struct {
	Option string `json:"option" binding:"required,notblank,max=2000"`
}

// NavigateRequest is the payload for moving the question pointer. Range
// checks belong to the session, which answers with ErrInvalidIndex.
type NavigateRequest struct {
	Index *int `json:"index" binding:"required"`
}

// AssessmentURI addresses one test in a route.
type AssessmentURI struct {
	TestID string `uri:"test_id" binding:"required,uuid"`
}

// AnswerURI addresses one question of a test in a route.
type AnswerURI struct {
	TestID string `uri:"test_id" binding:"required,uuid"`
	Index  *int   `uri:"index" binding:"required"`
}
