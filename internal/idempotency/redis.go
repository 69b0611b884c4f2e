package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "__pending__"

// RedisStore keeps idempotency keys in Redis so replays work across API
// instances.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a RedisStore. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client:  client,
		prefix:  "locum:idem:",
		ttl:     ttl,
		lockTTL: DefaultLockTTL,
	}
}

func (s *RedisStore) Begin(ctx context.Context, key string) (*Response, error) {
	k := s.prefix + key
	ok, err := s.client.SetNX(ctx, k, pendingMarker, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("claiming idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as still owned by someone else.
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("reading idempotency key: %w", err)
	}
	if string(raw) == pendingMarker {
		return nil, ErrInFlight
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding cached response: %w", err)
	}
	return &resp, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, resp *Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	return s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
