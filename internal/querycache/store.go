package querycache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned by Store.Get when no live entry exists.
var ErrCacheMiss = errors.New("querycache: cache miss")

// Store is a byte-oriented key value store with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mutex   sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (store *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, found := store.entries[key]
	if !found {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && !store.now().Before(entry.expiresAt) {
		delete(store.entries, key)
		return nil, ErrCacheMiss
	}
	copied := make([]byte, len(entry.value))
	copy(copied, entry.value)
	return copied, nil
}

// Set stores value. A ttl of zero or less keeps the entry until deleted.
func (store *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	copied := make([]byte, len(value))
	copy(copied, value)
	entry := memoryEntry{value: copied}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if ttl > 0 {
		entry.expiresAt = store.now().Add(ttl)
	}
	store.entries[key] = entry
	return nil
}

func (store *MemoryStore) Delete(_ context.Context, keys ...string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, key := range keys {
		delete(store.entries, key)
	}
	return nil
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (store *MemoryStore) Len() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.entries)
}
