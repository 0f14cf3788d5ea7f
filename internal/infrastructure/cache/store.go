package cache

import (
	"context"
	"time"

	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const defaultDialTimeout = 5 * time.Second

type storeOptions struct {
	logger      *zap.Logger
	fallback    bool
	dialTimeout time.Duration
}

type Option func(*storeOptions)

func WithLogger(l *zap.Logger) Option {
	return func(o *storeOptions) { o.logger = l }
}

// WithFallback controls whether an unreachable Redis degrades to the
// in-process store instead of failing. It is on by default.
func WithFallback(allow bool) Option {
	return func(o *storeOptions) { o.fallback = allow }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *storeOptions) { o.dialTimeout = d }
}

// NewIdempotencyStore returns a Redis store when cfg.Host is set and a
// memory store otherwise.
func NewIdempotencyStore(ctx context.Context, cfg config.RedisConfig, opts ...Option) (shared.IdempotencyStore, error) {
	o := storeOptions{logger: zap.NewNop(), fallback: true, dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Host == "" {
		o.logger.Info("idempotency store: memory")
		return NewMemoryStore(), nil
	}

	store, err := DialRedis(ctx, cfg, o.dialTimeout)
	if err == nil {
		o.logger.Info("idempotency store: redis", zap.String("addr", cfg.Addr()))
		return store, nil
	}
	if !o.fallback {
		return nil, err
	}
	// Duplicates become possible across instances, never within one.
	o.logger.Warn("redis unavailable, using in-process idempotency store", zap.Error(err))
	return NewMemoryStore(), nil
}
