// Package correlator resolves the trace context most relevant to a set
// of incident events. It is a best-effort heuristic that prefers
// over-inclusion to silence: the downstream diagnosis step works better
// with loosely-related spans than with none.
package correlator

import (
	"context"
	"log/slog"
	"time"

	"vigil/internal/models"
)

// SpanQuerier is the externally-owned span-query boundary.
type SpanQuerier interface {
	SpansByTraceIDs(traceIDs []string, limit int) []models.Span
	RootTraceIDsInWindow(projectID string, fromMs, toMs int64, limit int) []string
	TraceIDsMatchingHints(candidates []string, hints []string) []string
}

// Correlator finds spans related to incident events.
type Correlator struct {
	querier         SpanQuerier
	windowPadding   time.Duration
	candidateTraces int
	maxSpans        int
	logger          *slog.Logger
}

// New creates a correlator. Zero-valued tunables fall back to a 2m
// window padding, 10 candidate traces and a 200-span cap.
func New(querier SpanQuerier, windowPadding time.Duration, candidateTraces, maxSpans int, logger *slog.Logger) *Correlator {
	if windowPadding <= 0 {
		windowPadding = 2 * time.Minute
	}
	if candidateTraces <= 0 {
		candidateTraces = 10
	}
	if maxSpans <= 0 {
		maxSpans = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		querier:         querier,
		windowPadding:   windowPadding,
		candidateTraces: candidateTraces,
		maxSpans:        maxSpans,
		logger:          logger,
	}
}

// RelatedTraces resolves the spans most likely related to the events.
// An explicit trace_id in any event's payload wins outright; otherwise
// recent root traces in the padded time window are filtered by path
// hints, falling back to the unfiltered candidates when the filter
// yields nothing. Returns spans ordered by start time, capped.
func (c *Correlator) RelatedTraces(ctx context.Context, events []models.Event) []models.Span {
	if len(events) == 0 {
		return nil
	}

	// Direct reference always wins.
	if ids := explicitTraceIDs(events); len(ids) > 0 {
		return c.querier.SpansByTraceIDs(ids, c.maxSpans)
	}

	fromMs, toMs := c.timeWindow(events)
	projectID := events[0].ProjectID

	candidates := c.querier.RootTraceIDsInWindow(projectID, fromMs, toMs, c.candidateTraces)
	if len(candidates) == 0 {
		return nil
	}

	if hints := pathHints(events); len(hints) > 0 {
		if matched := c.querier.TraceIDsMatchingHints(candidates, hints); len(matched) > 0 {
			candidates = matched
		} else {
			c.logger.Debug("no traces matched path hints, using full candidate set", "hints", hints)
		}
	}

	return c.querier.SpansByTraceIDs(candidates, c.maxSpans)
}

// timeWindow computes [min(created)-pad, max(created)+pad] in epoch ms.
func (c *Correlator) timeWindow(events []models.Event) (int64, int64) {
	min, max := events[0].CreatedAt, events[0].CreatedAt
	for _, e := range events[1:] {
		if e.CreatedAt.Before(min) {
			min = e.CreatedAt
		}
		if e.CreatedAt.After(max) {
			max = e.CreatedAt
		}
	}
	return min.Add(-c.windowPadding).UnixMilli(), max.Add(c.windowPadding).UnixMilli()
}

// explicitTraceIDs collects trace_id references from event payloads.
func explicitTraceIDs(events []models.Event) []string {
	var ids []string
	seen := make(map[string]bool)
	for i := range events {
		id := events[i].RawString("trace_id")
		if id == "" {
			id = events[i].RawString("traceId")
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// pathHints extracts URL/route hints from event payloads.
func pathHints(events []models.Event) []string {
	keys := []string{"http.target", "http.route", "url", "http.url", "path", "operation"}
	var hints []string
	seen := make(map[string]bool)
	for i := range events {
		for _, key := range keys {
			v := events[i].RawString(key)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			hints = append(hints, v)
		}
	}
	return hints
}
