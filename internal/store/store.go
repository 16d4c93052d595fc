// Package store holds the bounded in-memory span buffer that backs all
// trace analysis. It is an append log, not a set: repeated export
// deliveries append again, and retention eviction is the only deletion.
package store

import (
	"sort"
	"strings"
	"sync"

	"vigil/internal/models"
)

// SpanStore is a bounded buffer of normalized spans. Appends take the
// write lock; reads take the read lock, so queries are safe to run
// concurrently with ongoing ingestion.
type SpanStore struct {
	mu       sync.RWMutex
	spans    []models.Span
	maxSpans int
}

// New creates a span store bounded to maxSpans entries.
func New(maxSpans int) *SpanStore {
	if maxSpans <= 0 {
		maxSpans = 10000
	}
	return &SpanStore{
		spans:    make([]models.Span, 0, maxSpans),
		maxSpans: maxSpans,
	}
}

// Append adds a single span and applies retention.
func (s *SpanStore) Append(span models.Span) {
	s.AppendBatch([]models.Span{span})
}

// AppendBatch adds spans in delivery order, then evicts oldest-first
// down to the retention cap.
func (s *SpanStore) AppendBatch(spans []models.Span) {
	if len(spans) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spans = append(s.spans, spans...)
	if over := len(s.spans) - s.maxSpans; over > 0 {
		// Copy down rather than reslice so evicted spans are freed.
		kept := make([]models.Span, len(s.spans)-over)
		copy(kept, s.spans[over:])
		s.spans = kept
	}
}

// Len returns the number of buffered spans.
func (s *SpanStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spans)
}

// Reset drops all buffered spans. Test use only.
func (s *SpanStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = s.spans[:0]
}

// SpansForTrace returns all spans sharing the trace id, ordered by
// start time ascending.
func (s *SpanStore) SpansForTrace(traceID string) []models.Span {
	s.mu.RLock()
	var out []models.Span
	for _, sp := range s.spans {
		if sp.TraceID == traceID {
			out = append(out, sp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// SpansByTraceIDs returns all spans for the given trace id set, ordered
// by start time ascending, capped at limit total (0 = no cap).
func (s *SpanStore) SpansByTraceIDs(traceIDs []string, limit int) []models.Span {
	if len(traceIDs) == 0 {
		return nil
	}
	want := make(map[string]bool, len(traceIDs))
	for _, id := range traceIDs {
		want[id] = true
	}

	s.mu.RLock()
	var out []models.Span
	for _, sp := range s.spans {
		if want[sp.TraceID] {
			out = append(out, sp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RecentRootSpans returns root spans for the project within
// [from, to] epoch ms, most recent first, capped at limit.
func (s *SpanStore) RecentRootSpans(projectID string, from, to int64, limit int) []models.Span {
	s.mu.RLock()
	var roots []models.Span
	for _, sp := range s.spans {
		if !sp.IsRoot() {
			continue
		}
		if projectID != "" && sp.ProjectID != projectID {
			continue
		}
		if sp.StartTime < from || sp.StartTime > to {
			continue
		}
		roots = append(roots, sp)
	}
	s.mu.RUnlock()

	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].StartTime > roots[j].StartTime
	})
	if limit > 0 && len(roots) > limit {
		roots = roots[:limit]
	}
	return roots
}

// RootTraceIDsInWindow returns distinct trace ids whose root spans fall
// inside the window, most recent first, capped at limit.
func (s *SpanStore) RootTraceIDsInWindow(projectID string, from, to int64, limit int) []string {
	roots := s.RecentRootSpans(projectID, from, to, 0)
	var ids []string
	seen := make(map[string]bool)
	for _, sp := range roots {
		if seen[sp.TraceID] {
			continue
		}
		seen[sp.TraceID] = true
		ids = append(ids, sp.TraceID)
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids
}

// TraceIDsMatchingHints filters candidate trace ids down to those whose
// root span's operation name or path-bearing attributes contain any of
// the hints. The caller decides what to do with an empty result.
func (s *SpanStore) TraceIDsMatchingHints(candidates []string, hints []string) []string {
	if len(candidates) == 0 || len(hints) == 0 {
		return nil
	}
	var matched []string
	for _, id := range candidates {
		spans := s.SpansForTrace(id)
		if traceMatchesHints(spans, hints) {
			matched = append(matched, id)
		}
	}
	return matched
}

func traceMatchesHints(spans []models.Span, hints []string) bool {
	for _, sp := range spans {
		if !sp.IsRoot() {
			continue
		}
		haystacks := []string{
			sp.OperationName,
			sp.Attr("http.target"),
			sp.Attr("http.route"),
			sp.Attr("http.url"),
			sp.Attr("url.path"),
		}
		for _, h := range hints {
			if h == "" {
				continue
			}
			for _, hay := range haystacks {
				if hay != "" && strings.Contains(hay, h) {
					return true
				}
			}
		}
	}
	return false
}
