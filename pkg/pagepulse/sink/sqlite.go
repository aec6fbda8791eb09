package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/pagepulse/pagepulse/pkg/pagepulse/record"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("analytics store is closed")

// ErrNotFound is returned when no row exists for a page_url.
var ErrNotFound = errors.New("page not found")

// AnalyticsStore is the analytical sink backed by SQLite.
// It is suitable for single-process production use.
type AnalyticsStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Sink = (*AnalyticsStore)(nil)

// NewAnalyticsStore opens (or creates) the analytics store.
// The path should be a file path (e.g., "./metrics.db") or ":memory:" for
// testing.
func NewAnalyticsStore(path string) (*AnalyticsStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS page_metrics (
			page_url TEXT NOT NULL PRIMARY KEY,
			avg_tti REAL NOT NULL,
			avg_ttar REAL NOT NULL,
			event_count INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &AnalyticsStore{db: db}, nil
}

// Name implements Sink.
func (s *AnalyticsStore) Name() string { return "analytics" }

// Upsert implements Sink. Writing the same row twice leaves the same stored
// state.
func (s *AnalyticsStore) Upsert(ctx context.Context, row record.AggregateRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_metrics (page_url, avg_tti, avg_ttar, event_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(page_url) DO UPDATE SET
			avg_tti = excluded.avg_tti,
			avg_ttar = excluded.avg_ttar,
			event_count = excluded.event_count,
			updated_at = excluded.updated_at
	`, row.PageURL, row.AvgTTI, row.AvgTTAR, row.EventCount,
		time.Now().UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("upsert page metrics: %w", err)
	}
	return nil
}

// Get reads back the stored row for a page_url.
func (s *AnalyticsStore) Get(ctx context.Context, pageURL string) (record.AggregateRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return record.AggregateRow{}, ErrStoreClosed
	}

	var row record.AggregateRow
	err := s.db.QueryRowContext(ctx, `
		SELECT page_url, avg_tti, avg_ttar, event_count
		FROM page_metrics
		WHERE page_url = ?
	`, pageURL).Scan(&row.PageURL, &row.AvgTTI, &row.AvgTTAR, &row.EventCount)

	if err == sql.ErrNoRows {
		return record.AggregateRow{}, ErrNotFound
	}
	if err != nil {
		return record.AggregateRow{}, fmt.Errorf("get page metrics: %w", err)
	}
	return row, nil
}

// Count returns the number of stored rows.
func (s *AnalyticsStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_metrics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count page metrics: %w", err)
	}
	return n, nil
}

// Close releases the underlying database.
func (s *AnalyticsStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
