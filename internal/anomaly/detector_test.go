package anomaly

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/models"
)

func TestExtractErrorPatternHTTPCodesStayDistinct(t *testing.T) {
	a := ExtractErrorPattern("HTTP 404 on /api/users")
	b := ExtractErrorPattern("HTTP 500 on /api/users")

	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "404")
	assert.Contains(t, b, "500")
}

func TestExtractErrorPatternNumbersCollapse(t *testing.T) {
	a := ExtractErrorPattern("timeout after 30s")
	b := ExtractErrorPattern("timeout after 60s")

	assert.Equal(t, a, b)
	assert.Contains(t, a, "<N>")
}

func TestExtractErrorPatternUUIDsCollapse(t *testing.T) {
	a := ExtractErrorPattern("user 550e8400-e29b-41d4-a716-446655440000 not found")
	b := ExtractErrorPattern("user 123e4567-e89b-12d3-a456-426614174000 not found")

	assert.Equal(t, a, b)
	assert.Contains(t, a, "<UUID>")
}

func TestExtractErrorPatternDates(t *testing.T) {
	a := ExtractErrorPattern("backup failed on 2024-01-15")
	b := ExtractErrorPattern("backup failed on 2024-03-22")

	assert.Equal(t, a, b)
	assert.Contains(t, a, "<DATE>")
}

func TestExtractErrorPatternTruncation(t *testing.T) {
	long := "connection refused while contacting upstream gateway service during handshake phase"
	require.Greater(t, len(long), FingerprintLen)

	got := ExtractErrorPattern(long)
	assert.Len(t, got, FingerprintLen)
}

type fakeStats struct {
	seen     int64
	recent   int64
	baseline float64
	err      error
}

func (f *fakeStats) PatternSeenCount(ctx context.Context, monitorID, fingerprint string) (int64, error) {
	return f.seen, f.err
}

func (f *fakeStats) RecentErrorCount(ctx context.Context, monitorID string, window time.Duration) (int64, error) {
	return f.recent, f.err
}

func (f *fakeStats) BaselineErrorRate(ctx context.Context, monitorID string, window time.Duration) (float64, error) {
	return f.baseline, f.err
}

func errorEvent() *models.Event {
	return &models.Event{
		ID:        "evt-1",
		ProjectID: "proj-1",
		MonitorID: "mon-1",
		Type:      "error",
		Message:   "HTTP 500 from upstream",
		Severity:  models.SeverityError,
		CreatedAt: time.Now(),
	}
}

func TestAnalyzeEventNovelty(t *testing.T) {
	d := NewDetector(&fakeStats{seen: 0}, 15*time.Minute, 3.0, 1.0, nil, nil)

	verdict := d.AnalyzeEvent(context.Background(), errorEvent())

	assert.True(t, verdict.IsAnomaly)
	assert.True(t, verdict.ShouldDiagnose)
	assert.Contains(t, verdict.Reason, "new error type")
}

func TestAnalyzeEventRateSpike(t *testing.T) {
	// 15 recent vs baseline 3 is a 5x spike, above the 3x threshold.
	d := NewDetector(&fakeStats{seen: 5, recent: 15, baseline: 3}, 15*time.Minute, 3.0, 1.0, nil, nil)

	verdict := d.AnalyzeEvent(context.Background(), errorEvent())

	assert.True(t, verdict.IsAnomaly)
	assert.Contains(t, verdict.Reason, "3x")
}

func TestAnalyzeEventBelowThreshold(t *testing.T) {
	d := NewDetector(&fakeStats{seen: 5, recent: 2, baseline: 3}, 15*time.Minute, 3.0, 1.0, nil, nil)

	verdict := d.AnalyzeEvent(context.Background(), errorEvent())

	assert.False(t, verdict.IsAnomaly)
}

func TestAnalyzeEventBaselineFloor(t *testing.T) {
	// 10 recent vs baseline 0.5 is nominally 20x, but the baseline is
	// below the floor so spike detection is skipped.
	d := NewDetector(&fakeStats{seen: 5, recent: 10, baseline: 0.5}, 15*time.Minute, 3.0, 1.0, nil, nil)

	verdict := d.AnalyzeEvent(context.Background(), errorEvent())

	assert.False(t, verdict.IsAnomaly)
}

func TestAnalyzeEventSkipsNonErrors(t *testing.T) {
	d := NewDetector(&fakeStats{seen: 0}, 15*time.Minute, 3.0, 1.0, nil, nil)

	event := errorEvent()
	event.Type = "check"
	assert.False(t, d.AnalyzeEvent(context.Background(), event).IsAnomaly)
}

func TestAnalyzeEventSkipsWithoutMonitor(t *testing.T) {
	d := NewDetector(&fakeStats{seen: 0}, 15*time.Minute, 3.0, 1.0, nil, nil)

	event := errorEvent()
	event.MonitorID = ""
	assert.False(t, d.AnalyzeEvent(context.Background(), event).IsAnomaly)
}

func TestAnalyzeEventDegradesOnStatsFailure(t *testing.T) {
	d := NewDetector(&fakeStats{err: errors.New("db down")}, 15*time.Minute, 3.0, 1.0, nil, nil)

	verdict := d.AnalyzeEvent(context.Background(), errorEvent())

	assert.False(t, verdict.IsAnomaly)
	assert.False(t, verdict.ShouldDiagnose)
}

func TestExtractErrorPatternMixed(t *testing.T) {
	got := ExtractErrorPattern("HTTP 503 for job 42 at 2024-06-01")

	assert.Contains(t, got, "503")
	assert.Contains(t, got, "<N>")
	assert.Contains(t, got, "<DATE>")
	assert.False(t, strings.Contains(got, "42"))
}
