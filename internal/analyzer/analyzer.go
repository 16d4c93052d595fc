// Package analyzer runs diagnostic rules over assembled traces and
// tracks the lifecycle of the issues they raise.
package analyzer

import (
	"time"

	"vigil/internal/models"
)

// Severity levels for findings and issues.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Issue states.
const (
	StateActive   = "active"
	StateResolved = "resolved"
)

// Finding is a single detection produced by one analyzer for one trace.
type Finding struct {
	Rule        string `json:"rule"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	Detail      string `json:"detail,omitempty"`
	Suggestion  string `json:"suggestion,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// Analyzer inspects the spans of one trace and reports findings. An
// analyzer must be a pure function of its input: no shared state,
// deterministic, safe to run repeatedly on the same trace.
type Analyzer interface {
	Name() string
	Analyze(spans []models.Span) []Finding
}

// Issue is a live finding with lifecycle state. At most one issue is
// active per (rule, fingerprint) pair; re-detection refreshes it.
type Issue struct {
	ID          string    `json:"id"`
	Rule        string    `json:"rule"`
	Severity    string    `json:"severity"`
	Message     string    `json:"message"`
	Detail      string    `json:"detail,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	State       string    `json:"state"`

	// missedPasses counts consecutive reconciliation passes in which
	// the issue was not re-found. Reset to zero on re-detection.
	missedPasses int
}

// Summary is the read-only snapshot exposed for status reporting.
type Summary struct {
	Active   int            `json:"active"`
	Resolved int            `json:"resolved"`
	ByRule   map[string]int `json:"by_rule"`
}
