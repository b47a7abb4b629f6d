// Package cache provides the TTL'd byte cache used for forecast results and
// generic memoization. Two backends implement the same contract: Redis when
// REDIS_ADDR is configured and reachable, an in-process store otherwise.
// Absence is normal - callers must never treat a miss or a backend failure
// as an error.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is the TTL get/set contract over opaque bytes
type Cache interface {
	// Get returns (value, true, nil) on a hit and (nil, false, nil) on a
	// miss. Backend failures are reported but callers treat them as misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON unmarshals a cached value into out. Returns false on miss,
// backend failure or corrupt payload.
func GetJSON(ctx context.Context, c Cache, key string, out interface{}) bool {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetJSON marshals v and stores it with the given TTL
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

// VolumeForecastKey is the key for an N-day volume forecast (TTL 24h)
func VolumeForecastKey(days int) string {
	return fmt.Sprintf("volume_forecast:%d_days", days)
}

// VolumeForecastTTL is how long a cached forecast stays fresh
const VolumeForecastTTL = 86400 * time.Second

// MemoKey builds a generic memoization key: cache:{function}:{8-hex hash of
// the canonically marshaled arguments}.
func MemoKey(function string, args ...interface{}) string {
	payload, _ := json.Marshal(args)
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("cache:%s:%s", function, hex.EncodeToString(sum[:])[:8])
}
