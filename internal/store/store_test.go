package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/models"
)

func span(traceID, spanID string, startMs int64) models.Span {
	return models.Span{
		TraceID:       traceID,
		SpanID:        spanID,
		ProjectID:     "proj-1",
		ServiceName:   "api",
		OperationName: "GET /orders",
		Kind:          models.KindServer,
		StartTime:     startMs,
		DurationMs:    10,
	}
}

func childSpan(traceID, spanID, parentID string, startMs int64) models.Span {
	sp := span(traceID, spanID, startMs)
	sp.ParentSpanID = parentID
	sp.Kind = models.KindInternal
	return sp
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	s := New(3)

	for i := 0; i < 5; i++ {
		s.Append(span("t1", fmt.Sprintf("s%d", i), int64(i)))
	}

	assert.Equal(t, 3, s.Len())

	// The two oldest spans are gone; the three newest remain.
	spans := s.SpansForTrace("t1")
	require.Len(t, spans, 3)
	assert.Equal(t, "s2", spans[0].SpanID)
	assert.Equal(t, "s4", spans[2].SpanID)
}

func TestAppendBatchLargerThanCap(t *testing.T) {
	s := New(2)

	var batch []models.Span
	for i := 0; i < 10; i++ {
		batch = append(batch, span("t1", fmt.Sprintf("s%d", i), int64(i)))
	}
	s.AppendBatch(batch)

	assert.Equal(t, 2, s.Len())
	spans := s.SpansForTrace("t1")
	assert.Equal(t, "s8", spans[0].SpanID)
	assert.Equal(t, "s9", spans[1].SpanID)
}

func TestSpansForTraceOrdersByStartTime(t *testing.T) {
	s := New(100)
	s.Append(span("t1", "late", 300))
	s.Append(span("t2", "other", 50))
	s.Append(span("t1", "early", 100))
	s.Append(span("t1", "mid", 200))

	spans := s.SpansForTrace("t1")

	require.Len(t, spans, 3)
	assert.Equal(t, "early", spans[0].SpanID)
	assert.Equal(t, "mid", spans[1].SpanID)
	assert.Equal(t, "late", spans[2].SpanID)
}

func TestSpansByTraceIDsAppliesLimit(t *testing.T) {
	s := New(100)
	for i := 0; i < 10; i++ {
		s.Append(span("t1", fmt.Sprintf("s%d", i), int64(i)))
	}
	s.Append(span("t2", "x", 5))

	spans := s.SpansByTraceIDs([]string{"t1"}, 4)

	require.Len(t, spans, 4)
	assert.Equal(t, "s0", spans[0].SpanID)

	assert.Nil(t, s.SpansByTraceIDs(nil, 4))
}

func TestRootTraceIDsInWindow(t *testing.T) {
	s := New(100)
	s.Append(span("t1", "r1", 100))
	s.Append(childSpan("t1", "c1", "r1", 110))
	s.Append(span("t2", "r2", 200))
	s.Append(span("t3", "r3", 900)) // outside the window

	ids := s.RootTraceIDsInWindow("proj-1", 50, 500, 10)

	// Most recent first, child spans ignored, out-of-window excluded.
	require.Len(t, ids, 2)
	assert.Equal(t, "t2", ids[0])
	assert.Equal(t, "t1", ids[1])
}

func TestRootTraceIDsInWindowFiltersProject(t *testing.T) {
	s := New(100)
	s.Append(span("t1", "r1", 100))
	other := span("t2", "r2", 200)
	other.ProjectID = "proj-2"
	s.Append(other)

	ids := s.RootTraceIDsInWindow("proj-1", 0, 1000, 10)

	assert.Equal(t, []string{"t1"}, ids)
}

func TestRootTraceIDsInWindowRespectsLimit(t *testing.T) {
	s := New(100)
	for i := 0; i < 20; i++ {
		s.Append(span(fmt.Sprintf("t%d", i), fmt.Sprintf("r%d", i), int64(i*10)))
	}

	ids := s.RootTraceIDsInWindow("proj-1", 0, 1000, 5)

	assert.Len(t, ids, 5)
}

func TestTraceIDsMatchingHints(t *testing.T) {
	s := New(100)

	checkout := span("t1", "r1", 100)
	checkout.OperationName = "POST /checkout"
	s.Append(checkout)

	users := span("t2", "r2", 200)
	users.OperationName = "GET /users"
	users.Attributes = map[string]models.AttrValue{
		"http.route": models.StringAttr("/users/{id}"),
	}
	s.Append(users)

	matched := s.TraceIDsMatchingHints([]string{"t1", "t2"}, []string{"/checkout"})
	assert.Equal(t, []string{"t1"}, matched)

	// Attribute-based matching.
	matched = s.TraceIDsMatchingHints([]string{"t1", "t2"}, []string{"/users"})
	assert.Equal(t, []string{"t2"}, matched)

	// No hints means no filtering decision can be made.
	assert.Nil(t, s.TraceIDsMatchingHints([]string{"t1"}, nil))
}

func TestReset(t *testing.T) {
	s := New(100)
	s.Append(span("t1", "s1", 1))
	require.Equal(t, 1, s.Len())

	s.Reset()

	assert.Equal(t, 0, s.Len())
}
