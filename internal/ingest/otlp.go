// Package ingest converts OTLP/JSON trace-export payloads into the
// internal span representation and appends them to the span store.
package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wire types for the OTLP/JSON trace-export envelope. Only the fields
// the normalizer reads are declared; everything else is ignored by the
// JSON decoder.

// ExportPayload is the top-level trace-export envelope.
type ExportPayload struct {
	ResourceSpans []WireResourceSpans `json:"resourceSpans"`
}

// WireResourceSpans groups spans produced by one resource (service).
type WireResourceSpans struct {
	Resource   WireResource     `json:"resource"`
	ScopeSpans []WireScopeSpans `json:"scopeSpans"`
}

// WireResource carries the resource-identifying attribute set.
type WireResource struct {
	Attributes []WireKeyValue `json:"attributes"`
}

// WireScopeSpans groups spans from one instrumentation scope.
type WireScopeSpans struct {
	Spans []WireSpan `json:"spans"`
}

// WireSpan is a single span in wire units (nanosecond timestamps,
// integer kind and status codes).
type WireSpan struct {
	TraceID           string         `json:"traceId"`
	SpanID            string         `json:"spanId"`
	ParentSpanID      string         `json:"parentSpanId"`
	Name              string         `json:"name"`
	Kind              int            `json:"kind"`
	StartTimeUnixNano string         `json:"startTimeUnixNano"`
	EndTimeUnixNano   string         `json:"endTimeUnixNano"`
	Status            WireStatus     `json:"status"`
	Attributes        []WireKeyValue `json:"attributes"`
	Events            []WireEvent    `json:"events"`
}

// WireStatus is the wire span status.
type WireStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WireEvent is a named sub-event on a wire span.
type WireEvent struct {
	Name       string         `json:"name"`
	Attributes []WireKeyValue `json:"attributes"`
}

// WireKeyValue is one attribute entry.
type WireKeyValue struct {
	Key   string    `json:"key"`
	Value WireValue `json:"value"`
}

// WireValue is the typed OTLP attribute value. Exactly one variant is
// expected to be set; anything outside these four kinds is dropped.
type WireValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	IntValue    *WireInt `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
}

// WireInt accepts OTLP's decimal-string int64 encoding as well as plain
// JSON numbers. An unparsable value leaves OK false, which drops the
// attribute instead of failing the envelope.
type WireInt struct {
	Value int64
	OK    bool
}

// UnmarshalJSON implements json.Unmarshaler. It never returns an error;
// a bad value is recorded as not-OK.
func (n *WireInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	n.Value = v
	n.OK = true
	return nil
}

// ParsePayload decodes a trace-export envelope. An unparsable envelope
// is rejected as a whole; no partial ingestion happens for it.
func ParsePayload(body []byte) (*ExportPayload, error) {
	var payload ExportPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse trace export payload: %w", err)
	}
	return &payload, nil
}
