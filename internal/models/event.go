package models

import "time"

// Event severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Event represents a persisted monitoring or error event.
type Event struct {
	ID        string                 `json:"id"`
	ProjectID string                 `json:"project_id"`
	MonitorID string                 `json:"monitor_id,omitempty"`
	Type      string                 `json:"type"` // e.g. "error", "check", "deploy"
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity"`
	CreatedAt time.Time              `json:"created_at"`
	RawData   map[string]interface{} `json:"raw_data,omitempty"`
}

// IsError returns true if the event describes an error condition.
func (e *Event) IsError() bool {
	return e.Type == "error"
}

// RawString returns a string field from the raw payload, empty string if not found.
func (e *Event) RawString(key string) string {
	if e.RawData == nil {
		return ""
	}
	if v, ok := e.RawData[key].(string); ok {
		return v
	}
	return ""
}

// MonitorRunState is the current rolled-up state of a monitor,
// read by the anomaly detector to compute baselines. Owned by the
// persistence layer, not by the engine.
type MonitorRunState struct {
	MonitorID     string    `json:"monitor_id"`
	Status        string    `json:"status"` // up, down, unknown
	AvgResponseMs float64   `json:"avg_response_ms"`
	TotalChecks   int64     `json:"total_checks"`
	ErrorCount    int64     `json:"error_count"`
	FirstSeen     time.Time `json:"first_seen"`
}

// Incident groups one or more events believed to represent a single
// underlying problem, enriched with correlated trace context.
type Incident struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Reason    string    `json:"reason"`
	Events    []Event   `json:"events"`
	Spans     []Span    `json:"spans,omitempty"`
	Diagnosis string    `json:"diagnosis,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
