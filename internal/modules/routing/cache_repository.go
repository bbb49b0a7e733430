package routing

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CacheSchema for the route_cache table (cache.db). The table is owned
// exclusively by this repository.
const CacheSchema = `
CREATE TABLE IF NOT EXISTS route_cache (
	cache_key     TEXT NOT NULL UNIQUE,
	source_asset  TEXT NOT NULL,
	dest_asset    TEXT NOT NULL,
	source_amount TEXT NOT NULL,
	graph_version INTEGER NOT NULL,
	routes_json   BLOB NOT NULL,
	computed_at   INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_route_cache_expires ON route_cache(expires_at);
`

// CacheRepository is the persistent route-cache tier
type CacheRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCacheRepository creates the persistent cache repository
func NewCacheRepository(db *sql.DB, log zerolog.Logger) *CacheRepository {
	return &CacheRepository{
		db:  db,
		log: log.With().Str("repo", "route_cache").Logger(),
	}
}

// persistedEntry is one row of the route_cache table
type persistedEntry struct {
	Payload      []byte
	GraphVersion uint64
	ComputedAt   time.Time
	ExpiresAt    time.Time
}

// Put upserts a cache row with an absolute expiry
func (r *CacheRepository) Put(key, source, dest, amount string, version uint64, payload []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(
		`INSERT INTO route_cache (cache_key, source_asset, dest_asset, source_amount, graph_version, routes_json, computed_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   graph_version = excluded.graph_version,
		   routes_json   = excluded.routes_json,
		   computed_at   = excluded.computed_at,
		   expires_at    = excluded.expires_at`,
		key, source, dest, amount, int64(version), payload, now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Get returns a non-expired row for key, or nil. Expired rows are left
// for the sweep job.
func (r *CacheRepository) Get(key string) (*persistedEntry, error) {
	row := r.db.QueryRow(
		`SELECT routes_json, graph_version, computed_at, expires_at
		 FROM route_cache WHERE cache_key = ? AND expires_at > ?`,
		key, time.Now().Unix(),
	)

	var e persistedEntry
	var version, computedAt, expiresAt int64
	err := row.Scan(&e.Payload, &version, &computedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	e.GraphVersion = uint64(version)
	e.ComputedAt = time.Unix(computedAt, 0).UTC()
	e.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &e, nil
}

// Delete removes one row
func (r *CacheRepository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM route_cache WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Clear drops every row. Called on graph version bumps.
func (r *CacheRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM route_cache"); err != nil {
		return fmt.Errorf("failed to clear route cache: %w", err)
	}
	return nil
}

// DeleteExpired removes rows past their expiry and returns the count
func (r *CacheRepository) DeleteExpired() (int64, error) {
	res, err := r.db.Exec("DELETE FROM route_cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of rows, expired or not
func (r *CacheRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM route_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}
