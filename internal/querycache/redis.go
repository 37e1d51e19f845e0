package querycache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "crmconsole:querycache:"

// ErrMissingRedisURL indicates the redis backend was selected without an address.
var ErrMissingRedisURL = errors.New("querycache: missing redis url")

// ConnectRedis builds a client from a redis:// URL or a bare host:port.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	trimmed := strings.TrimSpace(redisURL)
	if trimmed == "" {
		return nil, ErrMissingRedisURL
	}
	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		options, parseErr := redis.ParseURL(trimmed)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(options), nil
	}
	return redis.NewClient(&redis.Options{Addr: trimmed}), nil
}

// RedisStore keeps entries in Redis so several console replicas share them.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore wraps a redis client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, prefix: defaultRedisKeyPrefix}
}

func (store *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, getErr := store.client.Get(ctx, store.prefix+key).Bytes()
	if getErr != nil {
		if errors.Is(getErr, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, getErr
	}
	return raw, nil
}

func (store *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return store.client.Set(ctx, store.prefix+key, value, ttl).Err()
}

func (store *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, store.prefix+key)
	}
	return store.client.Del(ctx, prefixed...).Err()
}
