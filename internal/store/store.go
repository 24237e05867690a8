// Package store persists extraction results in a local SQLite database, one
// record per distinct URL, together with the settings key-value table. It is
// the only shared mutable state in the process; SQLite serializes the
// per-key writes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/gumob/AISummarizer-sub000/internal/article"
)

const (
	// DefaultMaxAge is how long a record may sit untouched before the
	// sweep removes it.
	DefaultMaxAge = 24 * time.Hour
	// DefaultMaxCount caps the table size after the age phase.
	DefaultMaxCount = 200
	// DefaultSweepInterval collapses repeated cleanup triggers into one
	// sweep per interval.
	DefaultSweepInterval = time.Hour

	lastCleanupKey = "cache.last_cleanup"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	lang TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	is_success INTEGER NOT NULL DEFAULT 0,
	date INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_date ON articles(date);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

// Store is the SQLite-backed article cache.
type Store struct {
	db *sql.DB

	MaxAge        time.Duration
	MaxCount      int
	SweepInterval time.Duration
}

// Open opens (or creates) the database at path and prepares the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create tables: %w", err)
	}
	return &Store{
		db:            db,
		MaxAge:        DefaultMaxAge,
		MaxCount:      DefaultMaxCount,
		SweepInterval: DefaultSweepInterval,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key normalizes a URL into its cache key: the exact URL string with the
// fragment stripped, so anchor variants of the same page share one record.
func Key(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		rawURL = rawURL[:i]
	}
	return rawURL
}

// Upsert writes the extraction result for a URL, overwriting a previous
// record in place while preserving its id. The returned id doubles as the
// deep-link token for injection.
func (s *Store) Upsert(ctx context.Context, rawURL string, res article.Result, now time.Time) (string, error) {
	key := Key(rawURL)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin upsert: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM articles WHERE url = ?`, key).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO articles (id, url, title, lang, content, is_success, date)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, key, res.Title, res.Lang, res.Content, boolToInt(res.IsSuccess), now.UnixMilli(),
		)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE articles SET title = ?, lang = ?, content = ?, is_success = ?, date = ? WHERE id = ?`,
			res.Title, res.Lang, res.Content, boolToInt(res.IsSuccess), now.UnixMilli(), id,
		)
	default:
		return "", fmt.Errorf("store: lookup %q: %w", key, err)
	}
	if err != nil {
		return "", fmt.Errorf("store: upsert %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit upsert: %w", err)
	}
	return id, nil
}

// GetByURL returns the record for a URL, or nil when none is cached.
func (s *Store) GetByURL(ctx context.Context, rawURL string) (*article.Record, error) {
	var (
		rec     article.Record
		success int
		date    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, lang, content, is_success, date FROM articles WHERE url = ?`,
		Key(rawURL),
	).Scan(&rec.ID, &rec.URL, &rec.Title, &rec.Lang, &rec.Content, &success, &date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", rawURL, err)
	}
	rec.IsSuccess = success != 0
	rec.Date = time.UnixMilli(date)
	return &rec, nil
}

// GetByID returns the record with the given id, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*article.Record, error) {
	var (
		rec     article.Record
		success int
		date    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, lang, content, is_success, date FROM articles WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.URL, &rec.Title, &rec.Lang, &rec.Content, &success, &date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get id %q: %w", id, err)
	}
	rec.IsSuccess = success != 0
	rec.Date = time.UnixMilli(date)
	return &rec, nil
}

// CleanupStats reports what a sweep did.
type CleanupStats struct {
	Ran        bool
	AgeDeleted int
	CapDeleted int
}

// Cleanup runs the two-phase eviction sweep: first drop everything older
// than MaxAge, then trim the oldest records until the count is back at
// MaxCount. Repeated triggers inside SweepInterval collapse into a no-op via
// the persisted last-cleanup timestamp. Records written after the sweep
// starts are never eligible: every delete is bounded by the sweep start
// time.
func (s *Store) Cleanup(ctx context.Context, now time.Time) (CleanupStats, error) {
	last, err := s.lastCleanup(ctx)
	if err != nil {
		return CleanupStats{}, err
	}
	if !last.IsZero() && now.Sub(last) < s.SweepInterval {
		return CleanupStats{}, nil
	}

	stats := CleanupStats{Ran: true}
	start := now.UnixMilli()
	cutoff := now.Add(-s.MaxAge).UnixMilli()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM articles WHERE date < ? AND date <= ?`, cutoff, start)
	if err != nil {
		return stats, fmt.Errorf("store: age sweep: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		stats.AgeDeleted = int(n)
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE date <= ?`, start).Scan(&count); err != nil {
		return stats, fmt.Errorf("store: count sweep: %w", err)
	}
	if count > s.MaxCount {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM articles WHERE id IN (
				SELECT id FROM articles WHERE date <= ? ORDER BY date ASC LIMIT ?
			)`, start, count-s.MaxCount)
		if err != nil {
			return stats, fmt.Errorf("store: cap sweep: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			stats.CapDeleted = int(n)
		}
	}

	if err := s.SetSetting(ctx, lastCleanupKey, strconv.FormatInt(start, 10)); err != nil {
		return stats, err
	}
	if stats.AgeDeleted > 0 || stats.CapDeleted > 0 {
		log.Debug().Int("aged_out", stats.AgeDeleted).Int("over_cap", stats.CapDeleted).Msg("cache sweep")
	}
	return stats, nil
}

func (s *Store) lastCleanup(ctx context.Context) (time.Time, error) {
	v, err := s.Setting(ctx, lastCleanupKey)
	if err != nil {
		return time.Time{}, err
	}
	if v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// Malformed timestamp: treat as never swept rather than failing.
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// Clear drops every article record. Used by the explicit user reset; the
// settings table is left alone.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM articles`); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

// Count returns the number of cached records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Setting returns the value for a settings key, "" when unset.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get setting %q: %w", key, err)
	}
	return v, nil
}

// SetSetting inserts or replaces a settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("store: set setting %q: %w", key, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
