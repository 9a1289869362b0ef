// Package session implements the attempt session controller: the state
// machine that owns one timed attempt from start to review.
//
//	Idle -> InProgress -> Submitted <-> Reviewing
//
// Nothing ever returns to InProgress. The controller mutex makes it the
// single logical actor for its attempt; ticks and user intents are
// serialised through it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/review"
	"github.com/stemsi/exstem-academy/internal/scheduler"
	"github.com/stemsi/exstem-academy/internal/scoring"
)

const (
	DefaultTickInterval  = time.Second
	DefaultAppendTimeout = 10 * time.Second
)

// ResultStore is the append side of the Result Store.
type ResultStore interface {
	Append(ctx context.Context, r *model.Result) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTickInterval overrides the one-second tick. Each tick still counts
// as one second of remaining time.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tickInterval = d
		}
	}
}

// WithAppendTimeout bounds the Result Store append made by an auto-submit.
func WithAppendTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.appendTimeout = d
		}
	}
}

// Controller owns one attempt.
type Controller struct {
	store         ResultStore
	sched         scheduler.Scheduler
	log           zerolog.Logger
	now           func() time.Time
	tickInterval  time.Duration
	appendTimeout time.Duration

	mu         sync.Mutex
	test       *model.Test
	attempt    model.Attempt
	cancelTick scheduler.CancelFunc
	result     *model.Result
	persistErr error
	closed     bool

	watchers    map[int]chan ViewState
	nextWatcher int
}

// New creates an idle controller.
func New(store ResultStore, sched scheduler.Scheduler, opts ...Option) *Controller {
	c := &Controller{
		store:         store,
		sched:         sched,
		log:           zerolog.Nop(),
		now:           time.Now,
		tickInterval:  DefaultTickInterval,
		appendTimeout: DefaultAppendTimeout,
		attempt:       model.Attempt{Status: model.AttemptStatusIdle},
		watchers:      make(map[int]chan ViewState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins the attempt and schedules the countdown.
func (c *Controller) Start(test *model.Test, takerID string) error {
	if test == nil {
		return model.ErrNotFound
	}
	if err := test.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrSessionClosed
	}
	if c.attempt.Status != model.AttemptStatusIdle {
		return model.ErrAlreadyStarted
	}

	c.test = test
	c.attempt = model.Attempt{
		TestID:           test.ID,
		TakerID:          takerID,
		StartedAt:        c.now(),
		RemainingSeconds: test.DurationSeconds(),
		Answers:          make(map[int]string),
		CurrentIndex:     0,
		Status:           model.AttemptStatusInProgress,
	}
	c.log = c.log.With().
		Str("test_id", test.ID.String()).
		Str("taker_id", takerID).
		Logger()
	c.cancelTick = c.sched.ScheduleTick(c.tickInterval, c.tick)

	c.log.Info().
		Int("questions", len(test.Questions)).
		Int("remaining_seconds", c.attempt.RemainingSeconds).
		Msg("Attempt started")

	c.publishLocked()
	return nil
}

// SelectAnswer records option as the answer of question index, replacing
// any earlier answer. It is a no-op unless the attempt is in progress.
func (c *Controller) SelectAnswer(index int, option string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrSessionClosed
	}
	if c.attempt.Status != model.AttemptStatusInProgress {
		return nil
	}
	if err := c.checkIndexLocked(index); err != nil {
		c.log.Warn().Int("index", index).Msg("Answer for out-of-range question ignored")
		return err
	}
	if !c.test.Questions[index].HasOption(option) {
		c.log.Warn().Int("index", index).Str("option", option).Msg("Answer with unknown option ignored")
		return model.ErrInvalidOption
	}

	c.attempt.Answers[index] = option
	c.publishLocked()
	return nil
}

// ClearAnswer removes the answer of question index while in progress.
func (c *Controller) ClearAnswer(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrSessionClosed
	}
	if c.attempt.Status != model.AttemptStatusInProgress {
		return nil
	}
	if err := c.checkIndexLocked(index); err != nil {
		c.log.Warn().Int("index", index).Msg("Clear for out-of-range question ignored")
		return err
	}

	delete(c.attempt.Answers, index)
	c.publishLocked()
	return nil
}

// Navigate moves the current-question pointer. Allowed in any started
// state, including review.
func (c *Controller) Navigate(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrSessionClosed
	}
	if c.attempt.Status == model.AttemptStatusIdle {
		return model.ErrNotStarted
	}
	if err := c.checkIndexLocked(index); err != nil {
		c.log.Warn().Int("index", index).Msg("Navigation out of range ignored")
		return err
	}

	c.attempt.CurrentIndex = index
	c.publishLocked()
	return nil
}

// Next moves to the following question, staying on the last one.
func (c *Controller) Next() error {
	return c.step(1)
}

// Previous moves to the preceding question, staying on the first one.
func (c *Controller) Previous() error {
	return c.step(-1)
}

func (c *Controller) step(delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrSessionClosed
	}
	if c.attempt.Status == model.AttemptStatusIdle {
		return model.ErrNotStarted
	}

	idx := c.attempt.CurrentIndex + delta
	if idx < 0 {
		idx = 0
	}
	if last := len(c.test.Questions) - 1; idx > last {
		idx = last
	}
	if idx != c.attempt.CurrentIndex {
		c.attempt.CurrentIndex = idx
		c.publishLocked()
	}
	return nil
}

// Submit scores and persists the attempt. Only the first call that finds
// the attempt in progress has an effect; later calls report false.
func (c *Controller) Submit(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, model.ErrSessionClosed
	}
	submitted, err := c.submitLocked(ctx, false)
	if submitted {
		c.publishLocked()
	}
	return submitted, err
}

// tick is the scheduler callback. Each call is one second of countdown.
func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.attempt.Status != model.AttemptStatusInProgress {
		return
	}

	if c.attempt.RemainingSeconds > 0 {
		c.attempt.RemainingSeconds--
	}

	if c.attempt.RemainingSeconds == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), c.appendTimeout)
		if _, err := c.submitLocked(ctx, true); err != nil {
			c.log.Error().Err(err).Msg("Auto-submit could not persist result")
		}
		cancel()
	}

	c.publishLocked()
}

// submitLocked is the single place where an attempt leaves InProgress.
// The append is issued before the status flips so a catalog read made after
// observing Submitted already sees the result.
func (c *Controller) submitLocked(ctx context.Context, auto bool) (bool, error) {
	if c.attempt.Status != model.AttemptStatusInProgress {
		return false, nil
	}

	c.stopTickLocked()

	answers := make(map[int]string, len(c.attempt.Answers))
	for k, v := range c.attempt.Answers {
		answers[k] = v
	}

	res := &model.Result{
		ID:            uuid.New(),
		TestID:        c.test.ID,
		TakerID:       c.attempt.TakerID,
		Score:         scoring.Score(c.test.Questions, answers),
		Total:         len(c.test.Questions),
		Answers:       answers,
		AutoSubmitted: auto,
		SubmittedAt:   c.now(),
	}

	err := c.store.Append(ctx, res)

	c.result = res
	c.attempt.Status = model.AttemptStatusSubmitted

	c.log.Info().
		Bool("auto", auto).
		Int("score", res.Score).
		Int("total", res.Total).
		Int("remaining_seconds", c.attempt.RemainingSeconds).
		Msg("Attempt submitted")

	if err == nil {
		return true, nil
	}
	if errors.Is(err, model.ErrDuplicateResult) {
		c.log.Warn().Msg("Result already recorded by another session")
		return true, err
	}

	c.persistErr = err
	if !errors.Is(err, model.ErrPersist) {
		err = fmt.Errorf("%w: %w", model.ErrPersist, err)
	}
	return true, err
}

// EnterReview switches a submitted attempt to review mode.
func (c *Controller) EnterReview() error {
	return c.toggle(model.AttemptStatusSubmitted, model.AttemptStatusReviewing)
}

// ExitReview returns from review mode to the submitted summary.
func (c *Controller) ExitReview() error {
	return c.toggle(model.AttemptStatusReviewing, model.AttemptStatusSubmitted)
}

func (c *Controller) toggle(from, to model.AttemptStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrSessionClosed
	}
	if c.attempt.Status != from {
		return model.ErrInvalidTransition
	}

	c.attempt.Status = to
	c.publishLocked()
	return nil
}

// Close ends the session without persisting an unfinished attempt and
// releases the ticker and every watcher.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.stopTickLocked()

	if c.attempt.Status == model.AttemptStatusInProgress {
		c.log.Info().Msg("Attempt abandoned before submission")
	}

	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
}

// stopTickLocked cancels the scheduler handle at most once.
func (c *Controller) stopTickLocked() {
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
}

func (c *Controller) checkIndexLocked(index int) error {
	if c.test == nil || index < 0 || index >= len(c.test.Questions) {
		return model.ErrInvalidIndex
	}
	return nil
}

// Status returns the current attempt status.
func (c *Controller) Status() model.AttemptStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.Status
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Attempt returns a copy of the attempt.
func (c *Controller) Attempt() model.Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.attempt
	a.Answers = make(map[int]string, len(c.attempt.Answers))
	for k, v := range c.attempt.Answers {
		a.Answers[k] = v
	}
	return a
}

// Result returns the result of the winning submit, or nil before it.
func (c *Controller) Result() *model.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}

// PersistErr returns the append error of the winning submit, if any.
func (c *Controller) PersistErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistErr
}

// Review renders the review of a submitted attempt.
func (c *Controller) Review() (*review.Review, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.attempt.Status.Finished() {
		return nil, model.ErrInvalidTransition
	}
	r := review.FromResult(c.test, c.result)
	return &r, nil
}
