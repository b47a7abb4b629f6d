// Package clientdata provides persistent caching for external API client
// responses. Payloads are stored as JSON blobs with expiration timestamps
// for cache-first behavior.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository provides cache operations over the api_cache table in cache.db
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new client data repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Store saves data with expiration = now + ttl, upserting on key
func (r *Repository) Store(key string, data interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()
	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO api_cache (key, data, expires_at) VALUES (?, ?, ?)",
		key, string(jsonData), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// GetIfFresh returns data only if expires_at > now. Returns nil, nil when the
// key is missing or expired; use Get to read stale data as a fallback when
// the upstream API is down.
func (r *Repository) GetIfFresh(key string) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRow(
		"SELECT data FROM api_cache WHERE key = ? AND expires_at > ?",
		key, time.Now().Unix()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return json.RawMessage(data), nil
}

// Get returns data regardless of expiration, nil when absent
func (r *Repository) Get(key string) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRow("SELECT data FROM api_cache WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return json.RawMessage(data), nil
}

// Delete removes one entry
func (r *Repository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM api_cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// PurgeExpired removes every expired entry; the nightly cleanup sweep
func (r *Repository) PurgeExpired() (int64, error) {
	res, err := r.db.Exec("DELETE FROM api_cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
