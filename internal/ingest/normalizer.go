package ingest

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"vigil/internal/models"
)

// SpanAppender is the subset of the span store the normalizer writes to.
type SpanAppender interface {
	AppendBatch(spans []models.Span)
}

// EventSink receives events derived from notable spans (errors, slow
// database calls). Implementations must not block.
type EventSink func(models.Event)

// Normalizer converts wire-format payloads into stored spans.
type Normalizer struct {
	store           SpanAppender
	sink            EventSink
	slowDBThreshold int64
	logger          *slog.Logger
}

// NewNormalizer creates a normalizer writing to the given store. sink
// may be nil if derived events are not wanted.
func NewNormalizer(store SpanAppender, sink EventSink, slowDBThresholdMs int64, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if slowDBThresholdMs <= 0 {
		slowDBThresholdMs = 500
	}
	return &Normalizer{
		store:           store,
		sink:            sink,
		slowDBThreshold: slowDBThresholdMs,
		logger:          logger,
	}
}

// Ingest normalizes every span in the payload, appends them to the
// store, and returns the distinct trace ids touched by this delivery.
// Malformed individual spans are skipped; siblings still land.
func (n *Normalizer) Ingest(projectID string, payload *ExportPayload) []string {
	var batch []models.Span
	var traceIDs []string
	seen := make(map[string]bool)

	for _, rs := range payload.ResourceSpans {
		serviceName := resolveServiceName(rs.Resource.Attributes)
		for _, ss := range rs.ScopeSpans {
			for _, ws := range ss.Spans {
				span, ok := n.normalizeSpan(projectID, serviceName, ws)
				if !ok {
					n.logger.Warn("skipping malformed span", "service", serviceName, "name", ws.Name)
					continue
				}
				batch = append(batch, span)
				if !seen[span.TraceID] {
					seen[span.TraceID] = true
					traceIDs = append(traceIDs, span.TraceID)
				}
				n.observe(span)
			}
		}
	}

	n.store.AppendBatch(batch)
	return traceIDs
}

// normalizeSpan converts one wire span. A span without trace or span id
// cannot be grouped and is reported as malformed.
func (n *Normalizer) normalizeSpan(projectID, serviceName string, ws WireSpan) (models.Span, bool) {
	if ws.TraceID == "" || ws.SpanID == "" {
		return models.Span{}, false
	}

	startNano := parseUnixNano(ws.StartTimeUnixNano)
	endNano := parseUnixNano(ws.EndTimeUnixNano)
	durationMs := (endNano - startNano) / 1e6
	if durationMs < 0 {
		durationMs = 0
	}

	span := models.Span{
		TraceID:       ws.TraceID,
		SpanID:        ws.SpanID,
		ParentSpanID:  ws.ParentSpanID,
		ProjectID:     projectID,
		ServiceName:   serviceName,
		OperationName: ws.Name,
		Kind:          mapKind(ws.Kind),
		StartTime:     startNano / 1e6,
		DurationMs:    durationMs,
		StatusCode:    mapStatus(ws.Status.Code),
		StatusMessage: ws.Status.Message,
		Attributes:    flattenAttributes(ws.Attributes),
	}

	for _, we := range ws.Events {
		span.Events = append(span.Events, models.SpanEvent{
			Name:       we.Name,
			Attributes: flattenAttributes(we.Attributes),
		})
	}

	return span, true
}

// observe emits live logging and derived events for notable spans.
func (n *Normalizer) observe(span models.Span) {
	if span.Kind == models.KindServer {
		n.logger.Debug("server span",
			"service", span.ServiceName,
			"operation", span.OperationName,
			"duration_ms", span.DurationMs,
			"status", span.StatusCode.String(),
		)
	}
	if n.sink == nil {
		return
	}
	if span.StatusCode == models.StatusError {
		msg := span.StatusMessage
		if msg == "" {
			msg = fmt.Sprintf("span %s failed", span.OperationName)
		}
		n.sink(models.Event{
			ProjectID: span.ProjectID,
			Type:      "trace_error",
			Source:    "trace",
			Message:   msg,
			Severity:  models.SeverityError,
			CreatedAt: time.UnixMilli(span.StartTime),
			RawData:   map[string]interface{}{"trace_id": span.TraceID, "span_id": span.SpanID, "service": span.ServiceName},
		})
	}
	if span.IsDatabase() && span.DurationMs > n.slowDBThreshold {
		n.sink(models.Event{
			ProjectID: span.ProjectID,
			Type:      "slow_query",
			Source:    "trace",
			Message:   fmt.Sprintf("database operation %s took %dms", span.OperationName, span.DurationMs),
			Severity:  models.SeverityWarning,
			CreatedAt: time.UnixMilli(span.StartTime),
			RawData:   map[string]interface{}{"trace_id": span.TraceID, "span_id": span.SpanID, "service": span.ServiceName},
		})
	}
}

// resolveServiceName extracts service.name from the resource attributes.
func resolveServiceName(attrs []WireKeyValue) string {
	for _, kv := range attrs {
		if kv.Key == "service.name" && kv.Value.StringValue != nil && *kv.Value.StringValue != "" {
			return *kv.Value.StringValue
		}
	}
	return "unknown"
}

// flattenAttributes collapses typed wire values into the scalar union.
// Entries without a supported variant are dropped silently.
func flattenAttributes(attrs []WireKeyValue) map[string]models.AttrValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]models.AttrValue, len(attrs))
	for _, kv := range attrs {
		if kv.Key == "" {
			continue
		}
		switch {
		case kv.Value.StringValue != nil:
			out[kv.Key] = models.StringAttr(*kv.Value.StringValue)
		case kv.Value.IntValue != nil && kv.Value.IntValue.OK:
			out[kv.Key] = models.IntAttr(kv.Value.IntValue.Value)
		case kv.Value.DoubleValue != nil:
			out[kv.Key] = models.FloatAttr(*kv.Value.DoubleValue)
		case kv.Value.BoolValue != nil:
			out[kv.Key] = models.BoolAttr(*kv.Value.BoolValue)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// mapKind converts the wire kind integer; out-of-range values fall back
// to UNSPECIFIED.
func mapKind(kind int) models.SpanKind {
	if kind < 0 || kind > 5 {
		return models.KindUnspecified
	}
	return models.SpanKind(kind)
}

// mapStatus converts the wire status code; out-of-range values fall
// back to UNSET.
func mapStatus(code int) models.StatusCode {
	if code < 0 || code > 2 {
		return models.StatusUnset
	}
	return models.StatusCode(code)
}

// parseUnixNano parses a decimal nanosecond timestamp, 0 on failure.
func parseUnixNano(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
