// Package db provides structured access and database migrations for the SQLite persistence layer.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vigil/internal/models"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:   db,
		path: dbPath,
	}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	migrations := []string{
		// Monitors
		`CREATE TABLE IF NOT EXISTS monitors (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			status TEXT DEFAULT 'unknown',
			avg_response_ms REAL DEFAULT 0,
			total_checks INTEGER DEFAULT 0,
			error_count INTEGER DEFAULT 0,
			first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// Events
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			monitor_id TEXT,
			type TEXT NOT NULL,
			source TEXT,
			message TEXT,
			severity TEXT,
			raw_data TEXT,
			diagnose INTEGER DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		// Error patterns per monitor
		`CREATE TABLE IF NOT EXISTS error_patterns (
			monitor_id TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			count INTEGER DEFAULT 0,
			first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (monitor_id, fingerprint)
		)`,
		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_events_monitor ON events(monitor_id, type, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// InsertEvent persists an event record.
func (db *DB) InsertEvent(ctx context.Context, event *models.Event) error {
	var rawData []byte
	if event.RawData != nil {
		var err error
		rawData, err = json.Marshal(event.RawData)
		if err != nil {
			return fmt.Errorf("failed to marshal raw data: %w", err)
		}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO events (id, project_id, monitor_id, type, source, message, severity, raw_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.ProjectID, event.MonitorID, event.Type, event.Source,
		event.Message, event.Severity, string(rawData), event.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// MarkEventForDiagnosis flags an event so the diagnosis pipeline picks it up.
func (db *DB) MarkEventForDiagnosis(ctx context.Context, eventID string) error {
	_, err := db.ExecContext(ctx, `UPDATE events SET diagnose = 1 WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event for diagnosis: %w", err)
	}
	return nil
}

// RecordErrorPattern upserts the occurrence count of a fingerprint for a monitor.
func (db *DB) RecordErrorPattern(ctx context.Context, monitorID, fingerprint string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO error_patterns (monitor_id, fingerprint, count, last_seen)
		 VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT(monitor_id, fingerprint)
		 DO UPDATE SET count = count + 1, last_seen = CURRENT_TIMESTAMP`,
		monitorID, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("failed to record error pattern: %w", err)
	}
	return nil
}

// PatternSeenCount reports how many prior events for the monitor carried the fingerprint.
func (db *DB) PatternSeenCount(ctx context.Context, monitorID, fingerprint string) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx,
		`SELECT count FROM error_patterns WHERE monitor_id = ? AND fingerprint = ?`,
		monitorID, fingerprint,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query pattern count: %w", err)
	}
	return count, nil
}

// RecentErrorCount reports the monitor's error-event count over the trailing window.
func (db *DB) RecentErrorCount(ctx context.Context, monitorID string, window time.Duration) (int64, error) {
	since := time.Now().Add(-window).UTC()
	var count int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE monitor_id = ? AND type = 'error' AND created_at >= ?`,
		monitorID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to query recent error count: %w", err)
	}
	return count, nil
}

// BaselineErrorRate scales the monitor's lifetime error count to the
// given window. A monitor younger than one window reports its raw
// error count.
func (db *DB) BaselineErrorRate(ctx context.Context, monitorID string, window time.Duration) (float64, error) {
	state, err := db.GetMonitorState(ctx, monitorID)
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}

	lifetime := time.Since(state.FirstSeen)
	if lifetime <= window {
		return float64(state.ErrorCount), nil
	}
	windows := float64(lifetime) / float64(window)
	return float64(state.ErrorCount) / windows, nil
}

// UpsertMonitorState records the monitor's current rolled-up state.
func (db *DB) UpsertMonitorState(ctx context.Context, projectID string, state *models.MonitorRunState) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO monitors (id, project_id, status, avg_response_ms, total_checks, error_count)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			avg_response_ms = excluded.avg_response_ms,
			total_checks = excluded.total_checks,
			error_count = excluded.error_count,
			updated_at = CURRENT_TIMESTAMP`,
		state.MonitorID, projectID, state.Status, state.AvgResponseMs, state.TotalChecks, state.ErrorCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert monitor state: %w", err)
	}
	return nil
}

// GetMonitorState returns the monitor's rolled-up state, nil if unknown.
func (db *DB) GetMonitorState(ctx context.Context, monitorID string) (*models.MonitorRunState, error) {
	state := &models.MonitorRunState{MonitorID: monitorID}
	err := db.QueryRowContext(ctx,
		`SELECT status, avg_response_ms, total_checks, error_count, first_seen
		 FROM monitors WHERE id = ?`,
		monitorID,
	).Scan(&state.Status, &state.AvgResponseMs, &state.TotalChecks, &state.ErrorCount, &state.FirstSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query monitor state: %w", err)
	}
	return state, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
