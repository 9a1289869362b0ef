package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/model"
)

// ResultQueue is the Redis list holding results that could not be appended
// synchronously.
type ResultQueue struct {
	rdb *redis.Client
	key string
}

// NewResultQueue creates a queue on config.WorkerKey.PersistResultsQueue.
func NewResultQueue(rdb *redis.Client) *ResultQueue {
	return &ResultQueue{rdb: rdb, key: config.WorkerKey.PersistResultsQueue}
}

// Enqueue pushes r to the tail of the queue.
func (q *ResultQueue) Enqueue(ctx context.Context, r *model.Result) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, raw).Err()
}

// Requeue puts r back after a failed flush.
func (q *ResultQueue) Requeue(ctx context.Context, r *model.Result) error {
	return q.Enqueue(ctx, r)
}

// Pop blocks up to timeout for the next result. It returns nil, nil when
// the queue stayed empty.
func (q *ResultQueue) Pop(ctx context.Context, timeout time.Duration) (*model.Result, error) {
	item, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(item) < 2 {
		return nil, nil
	}

	var r model.Result
	if err := json.Unmarshal([]byte(item[1]), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &r, nil
}

// Len returns the number of queued results.
func (q *ResultQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
