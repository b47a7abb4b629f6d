package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is the in-process Cache backend used when Redis is not configured
// or unreachable at startup. Same TTL semantics, no cross-process sharing.
type Memory struct {
	store *gocache.Cache
}

// NewMemory creates an in-memory cache with background expiry sweeps
func NewMemory() *Memory {
	return &Memory{store: gocache.New(gocache.NoExpiration, time.Minute)}
}

// Get fetches a key; expired entries are misses
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

// Set stores a copy of value with the given TTL
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	m.store.Set(key, buf, ttl)
	return nil
}

// Delete removes a key
func (m *Memory) Delete(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}
