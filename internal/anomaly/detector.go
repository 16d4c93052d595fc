// Package anomaly classifies monitor error events as anomalous based
// on message fingerprinting, novelty, and error-rate spikes.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"vigil/internal/metrics"
	"vigil/internal/models"
)

// FingerprintLen is the bound on normalized error patterns.
const FingerprintLen = 50

var (
	uuidRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	dateRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	// HTTP-adjacent 3-digit codes stay distinguishing; all other
	// numeric runs collapse to <N>.
	numRe = regexp.MustCompile(`HTTP[ :/]?\d{3}|\d+`)
)

// ExtractErrorPattern reduces a raw error message to a bounded grouping
// key. Status codes next to "HTTP" are preserved because they are
// diagnostically significant; UUIDs, ISO dates and remaining numbers
// become placeholders.
func ExtractErrorPattern(message string) string {
	s := uuidRe.ReplaceAllString(message, "<UUID>")
	s = dateRe.ReplaceAllString(s, "<DATE>")
	s = numRe.ReplaceAllStringFunc(s, func(m string) string {
		if strings.HasPrefix(m, "HTTP") {
			return m
		}
		return "<N>"
	})
	if len(s) > FingerprintLen {
		s = s[:FingerprintLen]
	}
	return s
}

// StatsSource supplies the externally-persisted counters the detector
// compares against. Implemented by the persistence layer.
type StatsSource interface {
	// PatternSeenCount reports how many prior events for the monitor
	// carried this fingerprint.
	PatternSeenCount(ctx context.Context, monitorID, fingerprint string) (int64, error)
	// RecentErrorCount reports the monitor's error count over the
	// trailing window.
	RecentErrorCount(ctx context.Context, monitorID string, window time.Duration) (int64, error)
	// BaselineErrorRate reports the monitor's long-term error rate
	// scaled to the same window.
	BaselineErrorRate(ctx context.Context, monitorID string, window time.Duration) (float64, error)
}

// Verdict is the classification result for one event.
type Verdict struct {
	IsAnomaly      bool   `json:"is_anomaly"`
	ShouldDiagnose bool   `json:"should_diagnose"`
	Reason         string `json:"reason,omitempty"`
}

// Detector evaluates error events against a monitor's history.
type Detector struct {
	stats           StatsSource
	recentWindow    time.Duration
	spikeMultiplier float64
	minBaseline     float64
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

// NewDetector creates a detector. Zero-valued tunables fall back to
// the stock 15m window, 3x spike threshold and 1.0 baseline floor.
func NewDetector(stats StatsSource, recentWindow time.Duration, spikeMultiplier, minBaseline float64, m *metrics.Metrics, logger *slog.Logger) *Detector {
	if recentWindow <= 0 {
		recentWindow = 15 * time.Minute
	}
	if spikeMultiplier <= 0 {
		spikeMultiplier = 3.0
	}
	if minBaseline <= 0 {
		minBaseline = 1.0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		stats:           stats,
		recentWindow:    recentWindow,
		spikeMultiplier: spikeMultiplier,
		minBaseline:     minBaseline,
		logger:          logger,
		metrics:         m,
	}
}

// AnalyzeEvent classifies one event. Only error events with a monitor
// association are ever flagged; everything else degrades to a negative
// verdict, including stats-source failures.
func (d *Detector) AnalyzeEvent(ctx context.Context, event *models.Event) Verdict {
	if !event.IsError() || event.MonitorID == "" {
		return Verdict{}
	}

	fingerprint := ExtractErrorPattern(event.Message)

	seen, err := d.stats.PatternSeenCount(ctx, event.MonitorID, fingerprint)
	if err != nil {
		d.logger.Error("pattern lookup failed", "monitor_id", event.MonitorID, "error", err)
		return Verdict{}
	}
	if seen == 0 {
		d.metrics.IncAnomaliesFlagged()
		return Verdict{
			IsAnomaly:      true,
			ShouldDiagnose: true,
			Reason:         fmt.Sprintf("new error type: %s", fingerprint),
		}
	}

	recent, err := d.stats.RecentErrorCount(ctx, event.MonitorID, d.recentWindow)
	if err != nil {
		d.logger.Error("recent error count lookup failed", "monitor_id", event.MonitorID, "error", err)
		return Verdict{}
	}
	baseline, err := d.stats.BaselineErrorRate(ctx, event.MonitorID, d.recentWindow)
	if err != nil {
		d.logger.Error("baseline rate lookup failed", "monitor_id", event.MonitorID, "error", err)
		return Verdict{}
	}

	// Near-zero baselines amplify noise; skip spike detection below
	// the floor.
	if baseline >= d.minBaseline && float64(recent) >= d.spikeMultiplier*baseline {
		d.metrics.IncAnomaliesFlagged()
		return Verdict{
			IsAnomaly:      true,
			ShouldDiagnose: true,
			Reason: fmt.Sprintf("error rate spike: %d errors in %s vs baseline %.1f (%.1fx, threshold %.0fx)",
				recent, d.recentWindow, baseline, float64(recent)/baseline, d.spikeMultiplier),
		}
	}

	return Verdict{}
}
