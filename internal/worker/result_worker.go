package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ErrInvalidPayload marks a queue entry that is not a result.
var ErrInvalidPayload = errors.New("invalid result payload")

// ResultSource is the queue the worker drains.
type ResultSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*model.Result, error)
	Requeue(ctx context.Context, r *model.Result) error
}

// ResultSink is the Result Store append path.
type ResultSink interface {
	Append(ctx context.Context, r *model.Result) error
}

// BatchAppender is implemented by stores that can insert many results in
// one round trip.
type BatchAppender interface {
	AppendBatch(ctx context.Context, results []*model.Result) ([]uuid.UUID, error)
}

// ResultWorker drains the reconciliation queue into the Result Store.
type ResultWorker struct {
	source ResultSource
	sink   ResultSink
	log    zerolog.Logger
}

func NewResultWorker(source ResultSource, sink ResultSink, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		source: source,
		sink:   sink,
		log:    log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.Result, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			r, err := w.source.Pop(ctx, ResultPollTimeout)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error().Err(err).Msg("Queue pop failed")
				}
				continue
			}
			if r == nil {
				continue
			}
			batch = append(batch, r)
		}
	}
}

// ----------------------------------------------------------------
// Batch append with per-result fallback
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.Result) {
	if len(batch) == 0 {
		return
	}

	if ba, ok := w.sink.(BatchAppender); ok {
		inserted, err := ba.AppendBatch(ctx, batch)
		if err == nil {
			w.log.Info().
				Int("batch", len(batch)).
				Int("inserted", len(inserted)).
				Msg("Reconciled results")

			kept := make(map[uuid.UUID]struct{}, len(inserted))
			for _, id := range inserted {
				kept[id] = struct{}{}
			}
			for _, r := range batch {
				if _, ok := kept[r.ID]; !ok {
					w.warnDuplicate(r)
				}
			}
			return
		}
		w.log.Warn().Err(err).Msg("bulk result append failed, using fallback")
	}

	for _, r := range batch {
		err := w.sink.Append(ctx, r)
		switch {
		case err == nil:
		case errors.Is(err, model.ErrDuplicateResult):
			w.warnDuplicate(r)
		default:
			w.log.Error().Err(err).Str("result_id", r.ID.String()).Msg("append failed, requeueing")
			if qerr := w.source.Requeue(ctx, r); qerr != nil {
				w.log.Error().Err(qerr).Str("result_id", r.ID.String()).Msg("requeue failed, result lost")
			}
		}
	}
}

// warnDuplicate reports a queued result that lost to a result already
// stored for the same pair. The queued one is dropped.
func (w *ResultWorker) warnDuplicate(r *model.Result) {
	w.log.Warn().
		Str("result_id", r.ID.String()).
		Str("test_id", r.TestID.String()).
		Str("taker_id", r.TakerID).
		Time("submitted_at", r.SubmittedAt).
		Msg("Queued result rejected, pair already has a stored result")
}
