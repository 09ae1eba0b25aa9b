// Package session provides Redis-backed storage for editing-session state
// that has to survive API restarts, such as pending media payloads.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// RedisStore owns the Redis connection shared by every session registry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "pending:",
	}
}

// Registry returns the pending-media registry for one editing session. The
// whole hash expires ttl after the last write.
func (s *RedisStore) Registry(sessionID string, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisRegistry{
		client: s.client,
		key:    s.prefix + sessionID,
		ttl:    ttl,
	}
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RedisRegistry implements media.Registry on a single Redis hash keyed by
// ephemeral reference.
type RedisRegistry struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ media.Registry = (*RedisRegistry)(nil)

func (r *RedisRegistry) Register(ctx context.Context, p media.Pending) (string, error) {
	if len(p.Data) == 0 {
		return "", media.ErrEmptyPayload
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal pending media: %w", err)
	}

	ref := media.NewEphemeralReference()
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key, ref, payload)
	pipe.Expire(ctx, r.key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("register pending media: %w", err)
	}
	return ref, nil
}

func (r *RedisRegistry) Get(ctx context.Context, ref string) (media.Pending, bool, error) {
	raw, err := r.client.HGet(ctx, r.key, ref).Bytes()
	if err == redis.Nil {
		return media.Pending{}, false, nil
	}
	if err != nil {
		return media.Pending{}, false, fmt.Errorf("lookup pending media: %w", err)
	}

	var p media.Pending
	if err := json.Unmarshal(raw, &p); err != nil {
		return media.Pending{}, false, fmt.Errorf("unmarshal pending media: %w", err)
	}
	return p, true, nil
}

func (r *RedisRegistry) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear pending media: %w", err)
	}
	return nil
}

// Len returns the number of pending entries.
func (r *RedisRegistry) Len(ctx context.Context) (int64, error) {
	n, err := r.client.HLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count pending media: %w", err)
	}
	return n, nil
}
