package schema

import (
	"log/slog"
	"sync"

	"vigil/internal/metrics"
)

// Tracker keeps a shape baseline per (method, route) and decides when
// an observed divergence is drift worth reporting versus a stable new
// contract to adopt silently.
type Tracker struct {
	promoteAfter int
	logger       *slog.Logger
	metrics      *metrics.Metrics

	mu        sync.Mutex
	baselines map[string]*baselineEntry
}

type baselineEntry struct {
	route          string
	baseline       *Node
	pending        *Node
	pendingMatches int
}

// NewTracker creates a tracker that promotes a pending shape after
// promoteAfter consecutive matches (3 per the stock configuration).
func NewTracker(promoteAfter int, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	if promoteAfter <= 0 {
		promoteAfter = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		promoteAfter: promoteAfter,
		logger:       logger,
		metrics:      m,
		baselines:    make(map[string]*baselineEntry),
	}
}

// ProcessResponse compares a successful JSON response body against the
// route's baseline and returns the drift diffs, if any. Callers must
// submit only 2xx JSON bodies.
//
// The first response for a key seeds the baseline silently. Later
// divergent responses are reported; a divergent shape seen promoteAfter
// times in a row is promoted to baseline and its promoting response is
// suppressed.
func (t *Tracker) ProcessResponse(method, route string, body interface{}) []Diff {
	shape := Infer(body)
	key := method + " " + route

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.baselines[key]
	if !ok {
		t.baselines[key] = &baselineEntry{route: route, baseline: shape}
		return nil
	}

	diffs := Compare(entry.baseline, shape)
	if len(diffs) == 0 {
		// Back on baseline; any pending candidate was noise.
		entry.pending = nil
		entry.pendingMatches = 0
		return nil
	}

	if entry.pending != nil && len(Compare(entry.pending, shape)) == 0 {
		entry.pendingMatches++
		if entry.pendingMatches >= t.promoteAfter {
			t.logger.Info("promoting new response shape to baseline",
				"method", method, "route", route, "matches", entry.pendingMatches)
			entry.baseline = entry.pending
			entry.pending = nil
			entry.pendingMatches = 0
			return nil
		}
	} else {
		// A different divergent shape restarts the candidate.
		entry.pending = shape
		entry.pendingMatches = 1
	}

	t.metrics.AddSchemaDiffs(len(diffs))
	return diffs
}

// ResetRoute discards the baselines for every method on the route, so
// the next observed response reseeds them. Called when the source files
// behind a route change: an intentional edit is not drift.
func (t *Tracker) ResetRoute(route string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.baselines {
		if entry.route == route {
			delete(t.baselines, key)
		}
	}
}

// BaselineCount returns the number of tracked (method, route) keys.
func (t *Tracker) BaselineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.baselines)
}
