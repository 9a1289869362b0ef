package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/catalog"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/review"
	"github.com/stemsi/exstem-academy/internal/scheduler"
	"github.com/stemsi/exstem-academy/internal/scoring"
	"github.com/stemsi/exstem-academy/internal/session"
)

// TestCatalog is the read side of the Test Catalog.
type TestCatalog interface {
	GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error)
	ListTests(ctx context.Context) ([]model.Test, error)
}

// ResultQuerier is the read side of the Result Store.
type ResultQuerier interface {
	Query(ctx context.Context, filter model.ResultFilter) ([]model.Result, error)
}

// SessionSettings tunes the controllers created by the service.
type SessionSettings struct {
	TickInterval  time.Duration
	AppendTimeout time.Duration
	// Retention is how long a finished session stays live for review
	// before the janitor evicts it.
	Retention time.Duration
}

type sessionKey struct {
	takerID string
	testID  uuid.UUID
}

// AssessmentService hosts the live attempt sessions, one per taker and test.
type AssessmentService struct {
	tests    TestCatalog
	results  ResultQuerier
	appender session.ResultStore
	sched    scheduler.Scheduler
	catalog  *catalog.Catalog
	settings SessionSettings
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*session.Controller
	// pending holds results accepted at submit whose append has not been
	// confirmed by the Result Store. They outlive their sessions.
	pending map[sessionKey]model.Result
}

// NewAssessmentService creates a new AssessmentService. appender is the
// append path of the Result Store, usually a RetryingResultStore.
func NewAssessmentService(
	tests TestCatalog,
	results ResultQuerier,
	appender session.ResultStore,
	sched scheduler.Scheduler,
	settings SessionSettings,
	log zerolog.Logger,
) *AssessmentService {
	log = log.With().Str("component", "assessment_service").Logger()
	return &AssessmentService{
		tests:    tests,
		results:  results,
		appender: appender,
		sched:    sched,
		catalog:  catalog.New(tests, results, log),
		settings: settings,
		log:      log,
		sessions: make(map[sessionKey]*session.Controller),
		pending:  make(map[sessionKey]model.Result),
	}
}

// ListAssessments returns the taker's assessments narrowed by filter.
func (s *AssessmentService) ListAssessments(ctx context.Context, takerID string, filter catalog.StatusFilter) ([]catalog.Assessment, error) {
	list, err := s.catalog.ListAssessments(ctx, takerID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	s.mu.Lock()
	for i := range list {
		a := &list[i]
		if a.Status == catalog.StatusCompleted {
			continue
		}
		res, ok := s.pending[sessionKey{takerID: takerID, testID: a.TestID}]
		if !ok {
			continue
		}
		a.Status = catalog.StatusCompleted
		if sum, err := scoring.Summarize(res.Score, res.Total); err == nil {
			a.Summary = &sum
		}
	}
	s.mu.Unlock()

	return catalog.FilterByStatus(list, filter), nil
}

// Start opens an attempt on testID. A live session for the pair is
// returned as is, so a refresh rejoins the running countdown.
func (s *AssessmentService) Start(ctx context.Context, takerID string, testID uuid.UUID) (session.ViewState, error) {
	key := sessionKey{takerID: takerID, testID: testID}

	if ctrl := s.live(key); ctrl != nil {
		return ctrl.State(), nil
	}
	if s.isPending(key) {
		return session.ViewState{}, model.ErrAlreadyCompleted
	}

	done, err := s.results.Query(ctx, model.ForPair(testID, takerID))
	if err != nil {
		return session.ViewState{}, fmt.Errorf("query results: %w", err)
	}
	if len(done) > 0 {
		return session.ViewState{}, model.ErrAlreadyCompleted
	}

	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return session.ViewState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have started the pair while the catalog was read.
	if ctrl, ok := s.sessions[key]; ok && !ctrl.Closed() {
		return ctrl.State(), nil
	}
	if _, ok := s.pending[key]; ok {
		return session.ViewState{}, model.ErrAlreadyCompleted
	}

	ctrl := session.New(s.appender, s.sched,
		session.WithLogger(s.log.With().Str("taker_id", takerID).Str("test_id", testID.String()).Logger()),
		session.WithTickInterval(s.settings.TickInterval),
		session.WithAppendTimeout(s.settings.AppendTimeout),
	)
	if err := ctrl.Start(test, takerID); err != nil {
		return session.ViewState{}, err
	}
	s.sessions[key] = ctrl

	s.log.Info().
		Str("taker_id", takerID).
		Str("test_id", testID.String()).
		Int("duration_seconds", test.DurationSeconds()).
		Msg("Attempt started")

	return ctrl.State(), nil
}

// SelectAnswer records option for the question at index.
func (s *AssessmentService) SelectAnswer(takerID string, testID uuid.UUID, index int, option string) (session.ViewState, error) {
	return s.apply(takerID, testID, func(c *session.Controller) error {
		return c.SelectAnswer(index, option)
	})
}

// ClearAnswer removes the answer for the question at index.
func (s *AssessmentService) ClearAnswer(takerID string, testID uuid.UUID, index int) (session.ViewState, error) {
	return s.apply(takerID, testID, func(c *session.Controller) error {
		return c.ClearAnswer(index)
	})
}

// Navigate moves the current question pointer.
func (s *AssessmentService) Navigate(takerID string, testID uuid.UUID, index int) (session.ViewState, error) {
	return s.apply(takerID, testID, func(c *session.Controller) error {
		return c.Navigate(index)
	})
}

// Next moves to the following question, staying on the last one.
func (s *AssessmentService) Next(takerID string, testID uuid.UUID) (session.ViewState, error) {
	return s.apply(takerID, testID, (*session.Controller).Next)
}

// Previous moves to the preceding question, staying on the first one.
func (s *AssessmentService) Previous(takerID string, testID uuid.UUID) (session.ViewState, error) {
	return s.apply(takerID, testID, (*session.Controller).Previous)
}

// Submit ends the attempt. submitted is false when the attempt had already
// been submitted, manually or by the timer. A persistence failure is
// returned wrapped in model.ErrPersist alongside the submitted state.
func (s *AssessmentService) Submit(ctx context.Context, takerID string, testID uuid.UUID) (bool, session.ViewState, error) {
	ctrl, err := s.lookup(takerID, testID)
	if err != nil {
		return false, session.ViewState{}, err
	}

	submitted, err := ctrl.Submit(ctx)
	if errors.Is(err, model.ErrDuplicateResult) {
		// Recorded by an earlier attempt; the local submit still stands.
		err = nil
	}
	if err != nil && errors.Is(err, model.ErrPersist) {
		s.log.Error().Err(err).
			Str("taker_id", takerID).
			Str("test_id", testID.String()).
			Msg("Result not persisted, handed to reconciliation")
	}
	return submitted, ctrl.State(), err
}

// EnterReview switches a submitted attempt to review mode.
func (s *AssessmentService) EnterReview(takerID string, testID uuid.UUID) (session.ViewState, error) {
	return s.apply(takerID, testID, func(c *session.Controller) error {
		return c.EnterReview()
	})
}

// ExitReview leaves review mode.
func (s *AssessmentService) ExitReview(takerID string, testID uuid.UUID) (session.ViewState, error) {
	return s.apply(takerID, testID, func(c *session.Controller) error {
		return c.ExitReview()
	})
}

// State returns the live session snapshot.
func (s *AssessmentService) State(takerID string, testID uuid.UUID) (session.ViewState, error) {
	ctrl, err := s.lookup(takerID, testID)
	if err != nil {
		return session.ViewState{}, err
	}
	return ctrl.State(), nil
}

// Watch subscribes to the live session's state changes.
func (s *AssessmentService) Watch(takerID string, testID uuid.UUID) (<-chan session.ViewState, func(), error) {
	ctrl, err := s.lookup(takerID, testID)
	if err != nil {
		return nil, nil, err
	}
	ch, stop := ctrl.Watch()
	return ch, stop, nil
}

// Abandon closes the live session. An unsubmitted attempt is discarded.
func (s *AssessmentService) Abandon(takerID string, testID uuid.UUID) error {
	key := sessionKey{takerID: takerID, testID: testID}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctrl, ok := s.sessions[key]
	if !ok {
		return model.ErrNoSession
	}
	s.retireLocked(key, ctrl)
	return nil
}

// Review renders the review of a finished attempt, from the live session
// when there is one and from the stored Result otherwise.
func (s *AssessmentService) Review(ctx context.Context, takerID string, testID uuid.UUID) (*review.Review, error) {
	if ctrl := s.live(sessionKey{takerID: takerID, testID: testID}); ctrl != nil {
		if ctrl.Status().Finished() {
			return ctrl.Review()
		}
		return nil, model.ErrInvalidTransition
	}
	return s.CompletedReview(ctx, takerID, testID)
}

// CompletedReview renders the review of a stored Result. The earliest
// Result wins when more than one exists for the pair.
func (s *AssessmentService) CompletedReview(ctx context.Context, takerID string, testID uuid.UUID) (*review.Review, error) {
	results, err := s.results.Query(ctx, model.ForPair(testID, takerID))
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	if len(results) == 0 {
		s.mu.Lock()
		res, ok := s.pending[sessionKey{takerID: takerID, testID: testID}]
		s.mu.Unlock()
		if !ok {
			return nil, model.ErrNoSession
		}
		results = []model.Result{res}
	}

	earliest := results[0]
	for _, r := range results[1:] {
		if r.SubmittedAt.Before(earliest.SubmittedAt) {
			earliest = r
		}
	}

	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	r := review.FromResult(test, &earliest)
	return &r, nil
}

// ReapFinished evicts closed sessions and finished sessions whose result
// is older than the retention window. It returns the number evicted.
func (s *AssessmentService) ReapFinished(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, ctrl := range s.sessions {
		if !ctrl.Closed() {
			res := ctrl.Result()
			if res == nil || now.Sub(res.SubmittedAt) < s.settings.Retention {
				continue
			}
		}
		s.retireLocked(key, ctrl)
		evicted++
	}
	return evicted
}

// StartJanitor reaps finished sessions periodically until ctx is cancelled.
func (s *AssessmentService) StartJanitor(ctx context.Context) {
	interval := s.settings.Retention / 2
	if interval < time.Minute {
		interval = time.Minute
	}

	s.log.Info().Dur("interval", interval).Msg("Session janitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Session janitor stopped")
			return
		case now := <-ticker.C:
			if n := s.ReapFinished(now); n > 0 {
				s.log.Debug().Int("evicted", n).Msg("Finished sessions reaped")
			}
			if n := s.ConfirmPending(ctx); n > 0 {
				s.log.Info().Int("confirmed", n).Msg("Reconciled results confirmed")
			}
		}
	}
}

// Shutdown closes every live session. Unsubmitted attempts are discarded.
func (s *AssessmentService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	open := 0
	for key, ctrl := range s.sessions {
		if ctrl.Status() == model.AttemptStatusInProgress {
			open++
		}
		s.retireLocked(key, ctrl)
	}
	if open > 0 {
		s.log.Warn().Int("in_progress", open).Msg("Shutdown discarded unsubmitted attempts")
	}
}

// LiveSessions returns the number of hosted sessions.
func (s *AssessmentService) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ConfirmPending drops pending results that have reached the Result Store
// and returns how many were confirmed. Store errors keep the entry.
func (s *AssessmentService) ConfirmPending(ctx context.Context) int {
	s.mu.Lock()
	keys := make([]sessionKey, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	confirmed := 0
	for _, key := range keys {
		stored, err := s.results.Query(ctx, model.ForPair(key.testID, key.takerID))
		if err != nil {
			s.log.Warn().Err(err).Msg("Pending result check failed")
			continue
		}
		if len(stored) == 0 {
			continue
		}

		s.mu.Lock()
		delete(s.pending, key)
		s.mu.Unlock()
		confirmed++
	}
	return confirmed
}

// PendingResults reports how many accepted results await confirmation.
func (s *AssessmentService) PendingResults() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// retireLocked closes and evicts a session. A result whose append failed
// is kept in pending so the pair cannot be attempted again.
func (s *AssessmentService) retireLocked(key sessionKey, ctrl *session.Controller) {
	if res := ctrl.Result(); res != nil && ctrl.PersistErr() != nil {
		s.pending[key] = *res
		s.log.Warn().
			Str("taker_id", key.takerID).
			Str("test_id", key.testID.String()).
			Str("result_id", res.ID.String()).
			Msg("Session evicted with unconfirmed result")
	}
	ctrl.Close()
	delete(s.sessions, key)
}

func (s *AssessmentService) isPending(key sessionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

func (s *AssessmentService) live(key sessionKey) *session.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctrl, ok := s.sessions[key]
	if !ok || ctrl.Closed() {
		return nil
	}
	return ctrl
}

func (s *AssessmentService) lookup(takerID string, testID uuid.UUID) (*session.Controller, error) {
	ctrl := s.live(sessionKey{takerID: takerID, testID: testID})
	if ctrl == nil {
		return nil, model.ErrNoSession
	}
	return ctrl, nil
}

func (s *AssessmentService) apply(takerID string, testID uuid.UUID, fn func(*session.Controller) error) (session.ViewState, error) {
	ctrl, err := s.lookup(takerID, testID)
	if err != nil {
		return session.ViewState{}, err
	}
	if err := fn(ctrl); err != nil {
		return ctrl.State(), err
	}
	return ctrl.State(), nil
}
