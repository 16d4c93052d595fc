// Package metrics exposes Prometheus collectors for the ingestion and
// analysis paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors. A nil *Metrics is a valid no-op
// receiver so tests can pass nil without registering collectors.
type Metrics struct {
	SpansIngested    prometheus.Counter
	PayloadsRejected prometheus.Counter
	TracesAnalyzed   prometheus.Counter
	AnalysisDropped  prometheus.Counter
	ActiveIssues     prometheus.Gauge
	ResolvedIssues   prometheus.Gauge
	SchemaDiffs      prometheus.Counter
	AnomaliesFlagged prometheus.Counter
}

// New registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SpansIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_spans_ingested_total",
			Help: "Spans accepted by the trace ingestion normalizer.",
		}),
		PayloadsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_payloads_rejected_total",
			Help: "Trace export payloads rejected as unparsable.",
		}),
		TracesAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_traces_analyzed_total",
			Help: "Analysis passes completed by the analyzer engine.",
		}),
		AnalysisDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_analysis_dropped_total",
			Help: "Trace analysis requests dropped because the queue was full.",
		}),
		ActiveIssues: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_issues_active",
			Help: "Issues currently in the active state.",
		}),
		ResolvedIssues: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_issues_resolved",
			Help: "Issues currently in the resolved state.",
		}),
		SchemaDiffs: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_schema_diffs_total",
			Help: "Schema drift diffs reported to callers.",
		}),
		AnomaliesFlagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "vigil_anomalies_flagged_total",
			Help: "Events classified as anomalous.",
		}),
	}
}

// AddSpansIngested increments the ingested span counter.
func (m *Metrics) AddSpansIngested(n int) {
	if m == nil {
		return
	}
	m.SpansIngested.Add(float64(n))
}

// IncPayloadsRejected increments the rejected payload counter.
func (m *Metrics) IncPayloadsRejected() {
	if m == nil {
		return
	}
	m.PayloadsRejected.Inc()
}

// IncTracesAnalyzed increments the analysis pass counter.
func (m *Metrics) IncTracesAnalyzed() {
	if m == nil {
		return
	}
	m.TracesAnalyzed.Inc()
}

// IncAnalysisDropped increments the dropped analysis counter.
func (m *Metrics) IncAnalysisDropped() {
	if m == nil {
		return
	}
	m.AnalysisDropped.Inc()
}

// SetIssueCounts records the current issue totals.
func (m *Metrics) SetIssueCounts(active, resolved int) {
	if m == nil {
		return
	}
	m.ActiveIssues.Set(float64(active))
	m.ResolvedIssues.Set(float64(resolved))
}

// AddSchemaDiffs increments the schema diff counter.
func (m *Metrics) AddSchemaDiffs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SchemaDiffs.Add(float64(n))
}

// IncAnomaliesFlagged increments the anomaly counter.
func (m *Metrics) IncAnomaliesFlagged() {
	if m == nil {
		return
	}
	m.AnomaliesFlagged.Inc()
}
