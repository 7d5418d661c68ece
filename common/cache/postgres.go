package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atmopics/share/common/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool used by PostgresCache
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema creates the table used by PostgresCache
const Schema = `
CREATE TABLE IF NOT EXISTS identity_cache (
	cache_key  TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS identity_cache_expires_at_idx ON identity_cache (expires_at);
`

// PostgresCache persists entries so identity mappings survive restarts
type PostgresCache struct {
	db  Querier
	now func() time.Time
}

// NewPostgresCache creates a cache over an existing pool
func NewPostgresCache(db Querier) *PostgresCache {
	return &PostgresCache{db: db, now: time.Now}
}

// Get retrieves a value that has not yet expired
func (c *PostgresCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRow(ctx,
		`SELECT value FROM identity_cache WHERE cache_key = $1 AND expires_at > $2`,
		key, c.now(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache entry %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a value with TTL
func (c *PostgresCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.Exec(ctx,
		`INSERT INTO identity_cache (cache_key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (cache_key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, c.now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry %s: %w", key, err)
	}
	return nil
}

// Delete removes a value
func (c *PostgresCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.Exec(ctx, `DELETE FROM identity_cache WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}

// Purge removes expired rows and reports how many were dropped
func (c *PostgresCache) Purge(ctx context.Context) (int64, error) {
	tag, err := c.db.Exec(ctx, `DELETE FROM identity_cache WHERE expires_at <= $1`, c.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunPurge deletes expired rows every interval until ctx is done. Reads
// already skip expired rows; this only keeps the table from growing.
func (c *PostgresCache) RunPurge(ctx context.Context, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Purge(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("identity cache purge failed", "error", err)
				}
				continue
			}
			if n > 0 {
				log.Debug("purged expired identity cache entries", "count", n)
			}
		}
	}
}

// Close is a no-op; the pool is owned by bootstrap
func (c *PostgresCache) Close() error {
	return nil
}
