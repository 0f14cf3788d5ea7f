package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/infrastructure/config"
)

// KeyPrefix namespaces hub keys in a shared Redis.
const KeyPrefix = "unihub:delivered:"

// RedisStore shares delivered keys between hub instances, so a webhook
// goes out once even when several processors claim the same entry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix means KeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = KeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects to cfg and pings it within timeout.
func DialRedis(ctx context.Context, cfg config.RedisConfig, timeout time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr(), err)
	}
	return NewRedisStore(client, ""), nil
}

// MarkProcessed is a single SET NX with expiry.
func (s *RedisStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("forget %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ shared.IdempotencyStore = (*RedisStore)(nil)
