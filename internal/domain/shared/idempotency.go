package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers which event ids were already handled so an
// at-least-once delivery channel can be consumed exactly once.
type IdempotencyStore interface {
	// MarkProcessed atomically records eventID. It returns false when the
	// id was already present.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// Forget drops eventID so the next delivery is handled again.
	Forget(ctx context.Context, eventID string) error
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig keeps processed ids for a day.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
