package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// connectBackoff is the wait before the second ping; it doubles after
// every failed attempt.
var connectBackoff = 500 * time.Millisecond

// pingWithRetry calls ping until it succeeds, attempts run out or ctx is
// done. Fewer than one attempt is treated as one.
func pingWithRetry(ctx context.Context, log zerolog.Logger, target string, attempts int, ping func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	wait := connectBackoff
	var err error
	for i := 1; i <= attempts; i++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}

		log.Warn().
			Err(err).
			Str("target", target).
			Int("attempt", i).
			Dur("retry_in", wait).
			Msg("Connection not ready, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("ping %s: %w", target, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("ping %s after %d attempts: %w", target, attempts, err)
}
