package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CacheRepository is the raw SQL surface backing the UnifiedCache (C2). The
// semantic/spatial matching logic lives in internal/cache; this type only
// knows how to read and write cache_entries rows.
type CacheRepository struct {
	db *sqlx.DB
}

func NewCacheRepository(db *sqlx.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// GetExact returns the live row for key, or ok=false on miss/expiry.
func (r *CacheRepository) GetExact(ctx context.Context, key string) (CacheEntry, bool, error) {
	var entry CacheEntry
	const query = `SELECT * FROM cache_entries WHERE key = $1 AND expires_at > NOW()`
	if err := sqlx.GetContext(ctx, r.db, &entry, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CacheEntry{}, false, nil
		}
		return CacheEntry{}, false, fmt.Errorf("loading cache entry: %w", err)
	}
	return entry, true, nil
}

// LiveRowsForOperation returns every non-expired row for operation, used by
// the semantic (geocode) and spatial (poi_search) fallback scans.
func (r *CacheRepository) LiveRowsForOperation(ctx context.Context, operation string) ([]CacheEntry, error) {
	var rows []CacheEntry
	const query = `SELECT * FROM cache_entries WHERE operation = $1 AND expires_at > NOW()`
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, operation); err != nil {
		return nil, fmt.Errorf("loading live cache rows: %w", err)
	}
	return rows, nil
}

// Upsert inserts or replaces a cache row, resetting hit_count to 0 — matching
// the source's write-through semantics (a write always looks "fresh").
func (r *CacheRepository) Upsert(ctx context.Context, entry *CacheEntry) error {
	const query = `
		INSERT INTO cache_entries (key, data, provider, operation, params, expires_at, hit_count)
		VALUES (:key, :data, :provider, :operation, :params, :expires_at, 0)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			expires_at = EXCLUDED.expires_at,
			hit_count = 0`
	_, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return fmt.Errorf("upserting cache entry: %w", err)
	}
	return nil
}

// IncrementHitCount bumps hit_count for key by one.
func (r *CacheRepository) IncrementHitCount(ctx context.Context, key string) error {
	const query = `UPDATE cache_entries SET hit_count = hit_count + 1 WHERE key = $1`
	_, err := r.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("incrementing cache hit count: %w", err)
	}
	return nil
}

// CleanupExpired deletes every row past its expiry and returns the count
// removed.
func (r *CacheRepository) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("cleaning up expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

// InvalidatePattern deletes rows whose key matches a SQL LIKE pattern
// (the caller is responsible for glob-to-LIKE conversion).
func (r *CacheRepository) InvalidatePattern(ctx context.Context, likePattern string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key LIKE $1`, likePattern)
	if err != nil {
		return 0, fmt.Errorf("invalidating cache pattern: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every cache row.
func (r *CacheRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// Count returns the number of live (non-expired) cache rows.
func (r *CacheRepository) Count(ctx context.Context) (int, error) {
	var n int
	const query = `SELECT COUNT(*) FROM cache_entries WHERE expires_at > NOW()`
	if err := r.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// NewExpiresAt computes an expiry timestamp ttl from now.
func NewExpiresAt(ttl time.Duration) time.Time {
	return time.Now().Add(ttl)
}
