package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/session"
)

// reconcileTimeout bounds the hand-off of an unpersisted result.
const reconcileTimeout = 5 * time.Second

// Reconciler takes results the store could not accept and persists them
// later.
type Reconciler interface {
	Enqueue(ctx context.Context, r *model.Result) error
}

// RetryingResultStore retries failed appends with a linear back-off and
// hands exhausted results to a Reconciler.
type RetryingResultStore struct {
	next       session.ResultStore
	reconciler Reconciler
	retries    int
	delay      time.Duration
	log        zerolog.Logger
}

// NewRetryingResultStore wraps next. reconciler may be nil, in which case
// exhausted results are only logged.
func NewRetryingResultStore(next session.ResultStore, reconciler Reconciler, retries int, delay time.Duration, log zerolog.Logger) *RetryingResultStore {
	if retries < 0 {
		retries = 0
	}
	return &RetryingResultStore{
		next:       next,
		reconciler: reconciler,
		retries:    retries,
		delay:      delay,
		log:        log.With().Str("component", "result_store").Logger(),
	}
}

// Append tries the wrapped store up to retries+1 times. ErrDuplicateResult
// is returned immediately. On exhaustion the error wraps model.ErrPersist.
func (s *RetryingResultStore) Append(ctx context.Context, r *model.Result) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			if waitErr := sleepCtx(ctx, s.delay*time.Duration(attempt)); waitErr != nil {
				err = errors.Join(err, waitErr)
				break
			}
		}

		err = s.next.Append(ctx, r)
		if err == nil || errors.Is(err, model.ErrDuplicateResult) {
			return err
		}

		s.log.Warn().Err(err).
			Int("attempt", attempt+1).
			Str("result_id", r.ID.String()).
			Msg("Result append failed")
	}

	s.reconcile(ctx, r)
	return fmt.Errorf("%w: %w", model.ErrPersist, err)
}

func (s *RetryingResultStore) reconcile(ctx context.Context, r *model.Result) {
	if s.reconciler == nil {
		s.log.Error().Str("result_id", r.ID.String()).Msg("Result dropped, no reconciler configured")
		return
	}

	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reconcileTimeout)
	defer cancel()

	if err := s.reconciler.Enqueue(qctx, r); err != nil {
		s.log.Error().Err(err).Str("result_id", r.ID.String()).Msg("Failed to enqueue result for reconciliation")
		return
	}
	s.log.Info().Str("result_id", r.ID.String()).Msg("Result queued for reconciliation")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
