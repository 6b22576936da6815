package sim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const progressCacheSchema = `
CREATE TABLE IF NOT EXISTS mission_progress_cache (
  mission_id     TEXT PRIMARY KEY,
  progress       REAL NOT NULL,
  waypoint_index INTEGER NOT NULL,
  updated_at     TEXT NOT NULL
)`

const cacheQueryTimeout = 2 * time.Second

// SQLiteCache persists progress so a paused run resumes after a restart.
// Storage errors are logged and read as a miss.
type SQLiteCache struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLiteCache opens (or creates) the cache database at path.
func OpenSQLiteCache(path string, log *slog.Logger) (*SQLiteCache, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// Single writer; the feed loop is the only caller anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), cacheQueryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}
	if _, err := db.ExecContext(ctx, progressCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	log.Info("progress cache opened", "path", path)
	return &SQLiteCache{db: db, log: log}, nil
}

// Get implements Cache.
func (c *SQLiteCache) Get(missionID string) (CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheQueryTimeout)
	defer cancel()
	var e CacheEntry
	err := c.db.QueryRowContext(ctx,
		`SELECT progress, waypoint_index FROM mission_progress_cache WHERE mission_id = ?`,
		missionID).Scan(&e.Progress, &e.WaypointIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false
	}
	if err != nil {
		c.log.Warn("progress cache read failed", "mission_id", missionID, "err", err)
		return CacheEntry{}, false
	}
	return e, true
}

// Set implements Cache.
func (c *SQLiteCache) Set(missionID string, e CacheEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheQueryTimeout)
	defer cancel()
	_, err := c.db.ExecContext(ctx, `
INSERT INTO mission_progress_cache (mission_id, progress, waypoint_index, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(mission_id) DO UPDATE SET
  progress = excluded.progress,
  waypoint_index = excluded.waypoint_index,
  updated_at = excluded.updated_at`,
		missionID, e.Progress, e.WaypointIndex, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		c.log.Warn("progress cache write failed", "mission_id", missionID, "err", err)
	}
}

// Clear implements Cache.
func (c *SQLiteCache) Clear(missionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheQueryTimeout)
	defer cancel()
	if _, err := c.db.ExecContext(ctx, `DELETE FROM mission_progress_cache WHERE mission_id = ?`, missionID); err != nil {
		c.log.Warn("progress cache clear failed", "mission_id", missionID, "err", err)
	}
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
