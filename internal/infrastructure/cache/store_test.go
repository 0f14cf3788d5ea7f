package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/infrastructure/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemoryStore_MarkProcessed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	isNew, err := s.MarkProcessed(ctx, "webhook:evt-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = s.MarkProcessed(ctx, "webhook:evt-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, isNew, "second delivery of the same event is a duplicate")

	isNew, err = s.MarkProcessed(ctx, "audit:evt-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew, "keys are independent")
}

func TestMemoryStore_ExpiryAndForget(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = s.MarkProcessed(ctx, "k", time.Minute)
	now = now.Add(time.Minute)
	isNew, err := s.MarkProcessed(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, isNew, "an expired key can be claimed again")

	require.NoError(t, s.Forget(ctx, "k"))
	isNew, _ = s.MarkProcessed(ctx, "k", time.Minute)
	assert.True(t, isNew)
}

func TestMemoryStore_SweepsExpiredKeys(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < sweepEvery-1; i++ {
		_, _ = s.MarkProcessed(ctx, time.Duration(i).String(), time.Second)
	}
	require.Equal(t, sweepEvery-1, s.Len())

	now = now.Add(time.Hour)
	_, _ = s.MarkProcessed(ctx, "fresh", time.Hour)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	s := NewMemoryStore()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.MarkProcessed(context.Background(), "same", time.Hour); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestNewIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	// Nothing listens on port 1, so the dial fails fast.
	unreachable := config.RedisConfig{Host: "127.0.0.1", Port: 1}

	t.Run("no host uses memory", func(t *testing.T) {
		s, err := NewIdempotencyStore(ctx, config.RedisConfig{})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		s, err := NewIdempotencyStore(ctx, unreachable,
			WithLogger(zap.New(core)), WithDialTimeout(200*time.Millisecond))
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, s)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("fallback disabled", func(t *testing.T) {
		_, err := NewIdempotencyStore(ctx, unreachable,
			WithFallback(false), WithDialTimeout(200*time.Millisecond))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "127.0.0.1:1")
	})
}
