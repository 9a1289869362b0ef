package model

import "errors"

// Domain errors shared by the engine, its stores and the transport layer.
var (
	ErrNotFound          = errors.New("test not found")
	ErrInvalidTest       = errors.New("invalid test definition")
	ErrNoQuestions       = errors.New("test has no questions")
	ErrInvalidIndex      = errors.New("question index out of range")
	ErrInvalidOption     = errors.New("option is not offered by the question")
	ErrInvalidTransition = errors.New("invalid attempt state transition")
	ErrNotStarted        = errors.New("attempt has not started")
	ErrAlreadyStarted    = errors.New("attempt already started")
	ErrSessionClosed     = errors.New("attempt session is closed")
	ErrNoSession         = errors.New("no live attempt session")
	ErrAlreadyCompleted  = errors.New("test already completed by this taker")
	ErrDuplicateResult   = errors.New("result already recorded for this test and taker")
	ErrPersist           = errors.New("persist result")
)
