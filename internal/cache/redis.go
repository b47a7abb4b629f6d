package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is the Cache backend over a Redis server
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedis connects to addr and verifies the server with a ping.
// A failed ping is returned to the caller so wiring can fall back to the
// in-memory backend.
func NewRedis(ctx context.Context, addr string, log zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Redis{
		client: client,
		log:    log.With().Str("component", "redis_cache").Logger(),
	}, nil
}

// Get fetches a key. redis.Nil is a plain miss, anything else is a backend
// failure the caller should also treat as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Cache get failed")
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a key with TTL
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Cache set failed")
		return err
	}
	return nil
}

// Delete removes a key
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close releases the connection pool
func (r *Redis) Close() error {
	return r.client.Close()
}
