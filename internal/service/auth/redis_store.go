package auth

import (
	"context"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "neev:login:"
	redisOpTimeout  = 250 * time.Millisecond
	redisPingWindow = 2 * time.Second
)

// redisAttemptStore keeps throttle counters in Redis so concurrent failed
// attempts across processes never lose increments.
type redisAttemptStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisAttemptStore connects to Redis and verifies it responds.
func NewRedisAttemptStore(addr, password string, db int, logger *slog.Logger) (AttemptStore, func(), error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingWindow)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	store := &redisAttemptStore{client: client, logger: logger}
	return store, func() { _ = client.Close() }, nil
}

// NewRedisAttemptStoreFromClient wraps an existing client, used by tests.
func NewRedisAttemptStoreFromClient(client *redis.Client, logger *slog.Logger) AttemptStore {
	return &redisAttemptStore{client: client, logger: logger}
}

func (s *redisAttemptStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	counterKey := s.counterKey(key)
	count, err := s.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, counterKey, ttl).Err(); err != nil {
			s.logger.Error("attempt counter expire failed", "key", key, "error", err)
		}
	}
	return count, nil
}

func (s *redisAttemptStore) SetLockout(ctx context.Context, key string, d time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.client.Set(ctx, s.lockKey(key), "1", d).Err()
}

func (s *redisAttemptStore) LockoutRemaining(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	ttl, err := s.client.PTTL(ctx, s.lockKey(key)).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		// -1 (no expiry) and -2 (no key) both mean no active window.
		return 0, nil
	}
	return ttl, nil
}

func (s *redisAttemptStore) Clear(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.client.Del(ctx, s.counterKey(key), s.lockKey(key)).Err()
}

func (s *redisAttemptStore) counterKey(key string) string {
	return redisKeyPrefix + "attempts:" + key
}

func (s *redisAttemptStore) lockKey(key string) string {
	return redisKeyPrefix + "lock:" + key
}
