// Package models defines the shared core data structures used throughout the Vigil engine.
package models

import "strconv"

// SpanKind mirrors the OTLP span kind enumeration.
type SpanKind int

const (
	KindUnspecified SpanKind = iota
	KindInternal
	KindServer
	KindClient
	KindProducer
	KindConsumer
)

// String returns the symbolic name of the span kind.
func (k SpanKind) String() string {
	switch k {
	case KindInternal:
		return "INTERNAL"
	case KindServer:
		return "SERVER"
	case KindClient:
		return "CLIENT"
	case KindProducer:
		return "PRODUCER"
	case KindConsumer:
		return "CONSUMER"
	default:
		return "UNSPECIFIED"
	}
}

// StatusCode mirrors the OTLP span status enumeration.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// String returns the symbolic name of the status code.
func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return "UNSET"
	}
}

// AttrKind tags the concrete type held by an AttrValue.
type AttrKind int

const (
	AttrString AttrKind = iota
	AttrInt
	AttrFloat
	AttrBool
)

// AttrValue is a closed scalar union for span and event attributes.
// Wire values outside these four kinds are dropped at ingestion.
type AttrValue struct {
	Kind  AttrKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

// StringAttr wraps a string as an AttrValue.
func StringAttr(v string) AttrValue { return AttrValue{Kind: AttrString, Str: v} }

// IntAttr wraps an int64 as an AttrValue.
func IntAttr(v int64) AttrValue { return AttrValue{Kind: AttrInt, Int: v} }

// FloatAttr wraps a float64 as an AttrValue.
func FloatAttr(v float64) AttrValue { return AttrValue{Kind: AttrFloat, Float: v} }

// BoolAttr wraps a bool as an AttrValue.
func BoolAttr(v bool) AttrValue { return AttrValue{Kind: AttrBool, Bool: v} }

// String renders the held value as text regardless of kind.
func (a AttrValue) String() string {
	switch a.Kind {
	case AttrInt:
		return strconv.FormatInt(a.Int, 10)
	case AttrFloat:
		return strconv.FormatFloat(a.Float, 'g', -1, 64)
	case AttrBool:
		if a.Bool {
			return "true"
		}
		return "false"
	default:
		return a.Str
	}
}

// SpanEvent is a named sub-event recorded on a span.
type SpanEvent struct {
	Name       string               `json:"name"`
	Attributes map[string]AttrValue `json:"attributes,omitempty"`
}

// Span represents a single timed operation within a distributed trace.
// Spans are immutable once appended to the store.
type Span struct {
	TraceID       string               `json:"trace_id"`
	SpanID        string               `json:"span_id"`
	ParentSpanID  string               `json:"parent_span_id,omitempty"` // empty = root
	ProjectID     string               `json:"project_id,omitempty"`
	ServiceName   string               `json:"service_name"`
	OperationName string               `json:"operation_name"`
	Kind          SpanKind             `json:"kind"`
	StartTime     int64                `json:"start_time"` // epoch ms
	DurationMs    int64                `json:"duration_ms"`
	StatusCode    StatusCode           `json:"status_code"`
	StatusMessage string               `json:"status_message,omitempty"`
	Attributes    map[string]AttrValue `json:"attributes,omitempty"`
	Events        []SpanEvent          `json:"events,omitempty"`
}

// IsRoot returns true if the span has no parent reference.
func (s *Span) IsRoot() bool {
	return s.ParentSpanID == ""
}

// Attr returns the string rendering of an attribute, empty string if not set.
func (s *Span) Attr(key string) string {
	if s.Attributes == nil {
		return ""
	}
	v, ok := s.Attributes[key]
	if !ok {
		return ""
	}
	return v.String()
}

// HasAttr reports whether the attribute key is present.
func (s *Span) HasAttr(key string) bool {
	if s.Attributes == nil {
		return false
	}
	_, ok := s.Attributes[key]
	return ok
}

// IsDatabase reports whether the span describes a database operation.
func (s *Span) IsDatabase() bool {
	return s.HasAttr("db.system") || s.HasAttr("db.statement") || s.HasAttr("db.query.text")
}

// DBStatement returns the raw database statement text, empty if none.
func (s *Span) DBStatement() string {
	if v := s.Attr("db.statement"); v != "" {
		return v
	}
	return s.Attr("db.query.text")
}

// IsHTTPClient reports whether the span is an outbound HTTP call.
func (s *Span) IsHTTPClient() bool {
	if s.Kind != KindClient {
		return false
	}
	return s.HasAttr("http.url") || s.HasAttr("url.full") || s.HasAttr("http.method") || s.HasAttr("http.request.method")
}

// HTTPURL returns the outbound request URL, empty if none recorded.
func (s *Span) HTTPURL() string {
	if v := s.Attr("http.url"); v != "" {
		return v
	}
	return s.Attr("url.full")
}
