package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/model"
)

// TestSource is any Test Catalog backend.
type TestSource interface {
	GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error)
	ListTests(ctx context.Context) ([]model.Test, error)
}

// CachedTestCatalog is a read-through Redis cache in front of a TestSource.
// Test definitions are immutable, so entries are only refreshed by TTL or
// by an explicit Warm.
type CachedTestCatalog struct {
	source TestSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedTestCatalog wraps source with a Redis cache. A zero ttl keeps
// entries until they are overwritten.
func NewCachedTestCatalog(source TestSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedTestCatalog {
	return &CachedTestCatalog{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "test_cache").Logger(),
	}
}

// GetTest serves the definition from Redis, falling back to the source on
// a miss or a Redis error.
func (c *CachedTestCatalog) GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	key := config.CacheKey.TestDefinitionKey(id.String())

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t model.Test
		if jsonErr := json.Unmarshal(data, &t); jsonErr == nil {
			return &t, nil
		}
		c.log.Warn().Str("test_id", id.String()).Msg("Corrupt cache entry, reloading")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Str("test_id", id.String()).Msg("Redis read failed, using source")
	}

	t, err := c.source.GetTest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.put(ctx, t); err != nil {
		c.log.Warn().Err(err).Str("test_id", id.String()).Msg("Cache fill failed")
	}
	return t, nil
}

// ListTests always reads the source; it owns the catalog order.
func (c *CachedTestCatalog) ListTests(ctx context.Context) ([]model.Test, error) {
	return c.source.ListTests(ctx)
}

// Warm loads every test definition into Redis before traffic arrives.
func (c *CachedTestCatalog) Warm(ctx context.Context) error {
	tests, err := c.source.ListTests(ctx)
	if err != nil {
		return fmt.Errorf("list tests: %w", err)
	}
	if len(tests) == 0 {
		c.log.Info().Msg("No tests to prewarm")
		return nil
	}

	pipe := c.rdb.Pipeline()
	for i := range tests {
		data, err := json.Marshal(&tests[i])
		if err != nil {
			return fmt.Errorf("marshal test %s: %w", tests[i].ID, err)
		}
		pipe.Set(ctx, config.CacheKey.TestDefinitionKey(tests[i].ID.String()), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	c.log.Info().Int("tests", len(tests)).Msg("Prewarming complete")
	return nil
}

func (c *CachedTestCatalog) put(ctx context.Context, t *model.Test) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, config.CacheKey.TestDefinitionKey(t.ID.String()), data, c.ttl).Err()
}
