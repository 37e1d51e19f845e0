package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	keySeparator     = ":"
	scopeDigestBytes = 16

	logEventCacheReadFailed   = "query_cache_read_failed"
	logEventCacheWriteFailed  = "query_cache_write_failed"
	logEventCacheDecodeFailed = "query_cache_decode_failed"
	logEventCacheEvictFailed  = "query_cache_evict_failed"
)

// Key identifies one cached query for one caller.
type Key struct {
	Scope string
	Name  string
}

func (key Key) String() string {
	return key.Scope + keySeparator + key.Name
}

// ScopeForToken derives a cache scope from a CRM bearer token so entries are
// never shared between callers and the token itself is never stored.
func ScopeForToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:scopeDigestBytes])
}

// InvalidationObserver is notified once per evicted query name.
type InvalidationObserver interface {
	ObserveCacheInvalidation(name string)
}

// Cache is a read-through response cache over a Store. Concurrent misses on
// the same key share one load.
type Cache struct {
	store    Store
	ttl      time.Duration
	logger   *zap.Logger
	observer InvalidationObserver
	group    singleflight.Group
}

// NewCache constructs a Cache. ttl is the default entry lifetime.
func NewCache(store Store, ttl time.Duration, logger *zap.Logger, observer InvalidationObserver) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: store, ttl: ttl, logger: logger, observer: observer}
}

// Fetch returns the cached value for key or loads, stores and returns it.
// Store failures degrade to a direct load. A ttl of zero uses the cache default.
func Fetch[T any](ctx context.Context, cache *Cache, key Key, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if cache == nil || cache.store == nil {
		return load(ctx)
	}
	if ttl <= 0 {
		ttl = cache.ttl
	}
	cacheKey := key.String()

	if cached, found := readEntry[T](ctx, cache, cacheKey); found {
		return cached, nil
	}

	value, loadErr, _ := cache.group.Do(cacheKey, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return loaded, err
		}
		cache.writeEntry(ctx, cacheKey, loaded, ttl)
		return loaded, nil
	})
	if loadErr != nil {
		var zero T
		return zero, loadErr
	}
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, nil
	}
	return typed, nil
}

// Invalidate evicts the provided keys.
func (cache *Cache) Invalidate(ctx context.Context, keys ...Key) error {
	if cache == nil || cache.store == nil || len(keys) == 0 {
		return nil
	}
	rendered := make([]string, 0, len(keys))
	for _, key := range keys {
		rendered = append(rendered, key.String())
	}
	if deleteErr := cache.store.Delete(ctx, rendered...); deleteErr != nil {
		cache.logger.Warn(logEventCacheEvictFailed, zap.Strings("keys", rendered), zap.Error(deleteErr))
		return deleteErr
	}
	if cache.observer != nil {
		for _, key := range keys {
			cache.observer.ObserveCacheInvalidation(key.Name)
		}
	}
	return nil
}

func readEntry[T any](ctx context.Context, cache *Cache, cacheKey string) (T, bool) {
	var cached T
	raw, getErr := cache.store.Get(ctx, cacheKey)
	if getErr != nil {
		if !errors.Is(getErr, ErrCacheMiss) {
			cache.logger.Warn(logEventCacheReadFailed, zap.String("key", cacheKey), zap.Error(getErr))
		}
		return cached, false
	}
	if decodeErr := json.Unmarshal(raw, &cached); decodeErr != nil {
		cache.logger.Warn(logEventCacheDecodeFailed, zap.String("key", cacheKey), zap.Error(decodeErr))
		return cached, false
	}
	return cached, true
}

func (cache *Cache) writeEntry(ctx context.Context, cacheKey string, value any, ttl time.Duration) {
	encoded, encodeErr := json.Marshal(value)
	if encodeErr != nil {
		cache.logger.Warn(logEventCacheWriteFailed, zap.String("key", cacheKey), zap.Error(encodeErr))
		return
	}
	if setErr := cache.store.Set(ctx, cacheKey, encoded, ttl); setErr != nil {
		cache.logger.Warn(logEventCacheWriteFailed, zap.String("key", cacheKey), zap.Error(setErr))
	}
}
