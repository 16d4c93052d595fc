package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "vigil.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func insertErrorEvent(t *testing.T, db *DB, id, monitorID string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, db.InsertEvent(context.Background(), &models.Event{
		ID:        id,
		ProjectID: "proj-1",
		MonitorID: monitorID,
		Type:      "error",
		Message:   "HTTP 500",
		Severity:  models.SeverityError,
		CreatedAt: createdAt,
	}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	assert.NoError(t, db.Migrate())
}

func TestInsertEventWithRawData(t *testing.T) {
	db := testDB(t)

	err := db.InsertEvent(context.Background(), &models.Event{
		ID:        "evt-1",
		ProjectID: "proj-1",
		Type:      "error",
		Message:   "boom",
		CreatedAt: time.Now(),
		RawData:   map[string]interface{}{"trace_id": "t1"},
	})
	require.NoError(t, err)

	var raw string
	require.NoError(t, db.QueryRow(`SELECT raw_data FROM events WHERE id = ?`, "evt-1").Scan(&raw))
	assert.Contains(t, raw, `"trace_id":"t1"`)
}

func TestMarkEventForDiagnosis(t *testing.T) {
	db := testDB(t)
	insertErrorEvent(t, db, "evt-1", "mon-1", time.Now())

	require.NoError(t, db.MarkEventForDiagnosis(context.Background(), "evt-1"))

	var flagged int
	require.NoError(t, db.QueryRow(`SELECT diagnose FROM events WHERE id = ?`, "evt-1").Scan(&flagged))
	assert.Equal(t, 1, flagged)
}

func TestRecordErrorPatternCounts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	count, err := db.PatternSeenCount(ctx, "mon-1", "timeout after <N>s")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	require.NoError(t, db.RecordErrorPattern(ctx, "mon-1", "timeout after <N>s"))
	require.NoError(t, db.RecordErrorPattern(ctx, "mon-1", "timeout after <N>s"))
	require.NoError(t, db.RecordErrorPattern(ctx, "mon-1", "connection refused"))

	count, err = db.PatternSeenCount(ctx, "mon-1", "timeout after <N>s")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Counts are scoped per monitor.
	count, err = db.PatternSeenCount(ctx, "mon-2", "timeout after <N>s")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestRecentErrorCountWindow(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	insertErrorEvent(t, db, "evt-1", "mon-1", now)
	insertErrorEvent(t, db, "evt-2", "mon-1", now.Add(-5*time.Minute))
	insertErrorEvent(t, db, "evt-3", "mon-1", now.Add(-2*time.Hour)) // outside window
	insertErrorEvent(t, db, "evt-4", "mon-2", now)                   // other monitor

	// Non-error events are not counted.
	require.NoError(t, db.InsertEvent(context.Background(), &models.Event{
		ID: "evt-5", ProjectID: "proj-1", MonitorID: "mon-1",
		Type: "check", CreatedAt: now,
	}))

	count, err := db.RecentErrorCount(context.Background(), "mon-1", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestBaselineErrorRateUnknownMonitor(t *testing.T) {
	db := testDB(t)

	rate, err := db.BaselineErrorRate(context.Background(), "mon-missing", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}

func TestBaselineErrorRateYoungMonitor(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// first_seen defaults to now, so the monitor is younger than one
	// window and reports its raw error count.
	require.NoError(t, db.UpsertMonitorState(ctx, "proj-1", &models.MonitorRunState{
		MonitorID:  "mon-1",
		Status:     "up",
		ErrorCount: 4,
	}))

	rate, err := db.BaselineErrorRate(ctx, "mon-1", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 4.0, rate)
}

func TestUpsertMonitorStateUpdates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertMonitorState(ctx, "proj-1", &models.MonitorRunState{
		MonitorID: "mon-1", Status: "up", TotalChecks: 10, ErrorCount: 1,
	}))
	require.NoError(t, db.UpsertMonitorState(ctx, "proj-1", &models.MonitorRunState{
		MonitorID: "mon-1", Status: "down", TotalChecks: 11, ErrorCount: 2,
	}))

	state, err := db.GetMonitorState(ctx, "mon-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "down", state.Status)
	assert.Equal(t, int64(11), state.TotalChecks)
	assert.Equal(t, int64(2), state.ErrorCount)
	assert.False(t, state.FirstSeen.IsZero())
}

func TestGetMonitorStateUnknown(t *testing.T) {
	db := testDB(t)

	state, err := db.GetMonitorState(context.Background(), "mon-missing")
	require.NoError(t, err)
	assert.Nil(t, state)
}
