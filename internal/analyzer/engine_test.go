package analyzer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/models"
)

// fakeStore serves canned spans per trace id.
type fakeStore struct {
	traces map[string][]models.Span
}

func (f *fakeStore) SpansForTrace(traceID string) []models.Span {
	return f.traces[traceID]
}

func nPlusOneTrace(traceID string) []models.Span {
	var spans []models.Span
	for i := 0; i < 5; i++ {
		spans = append(spans, dbSpan(traceID, fmt.Sprintf("s%d", i),
			fmt.Sprintf("SELECT * FROM users WHERE id = %d", i), 10))
	}
	return spans
}

func newTestEngine(store TraceReader, resolveAfter int) *Engine {
	e := NewEngine(store, BuiltinAnalyzers(DefaultRuleConfig()), Options{
		ResolveAfterPasses: resolveAfter,
	})
	e.Close() // tests drive RunOnce directly
	return e
}

func TestEngineCreatesIssue(t *testing.T) {
	store := &fakeStore{traces: map[string][]models.Span{"t1": nPlusOneTrace("t1")}}
	e := newTestEngine(store, 10)

	e.RunOnce("t1")

	summary := e.Summary()
	assert.Equal(t, 1, summary.Active)
	assert.Equal(t, 0, summary.Resolved)
	assert.Equal(t, 1, summary.ByRule[RuleNPlusOne])
}

func TestEngineIdempotentOnUnchangedTrace(t *testing.T) {
	store := &fakeStore{traces: map[string][]models.Span{"t1": nPlusOneTrace("t1")}}
	e := newTestEngine(store, 10)

	e.RunOnce("t1")
	first := e.Issues()
	require.Len(t, first, 1)

	e.RunOnce("t1")
	second := e.Issues()
	require.Len(t, second, 1)

	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 1, e.Summary().Active)
	assert.False(t, second[0].LastSeen.Before(first[0].LastSeen))
}

func TestEngineResolvesAfterCooldown(t *testing.T) {
	store := &fakeStore{traces: map[string][]models.Span{
		"bad":   nPlusOneTrace("bad"),
		"clean": {dbSpan("clean", "s1", "SELECT 1", 10)},
	}}
	e := newTestEngine(store, 3)

	e.RunOnce("bad")
	require.Equal(t, 1, e.Summary().Active)

	// Two misses are not enough.
	e.RunOnce("clean")
	e.RunOnce("clean")
	assert.Equal(t, 1, e.Summary().Active)

	// The third miss resolves it.
	e.RunOnce("clean")
	summary := e.Summary()
	assert.Equal(t, 0, summary.Active)
	assert.Equal(t, 1, summary.Resolved)
}

func TestEngineReactivatesResolvedIssue(t *testing.T) {
	store := &fakeStore{traces: map[string][]models.Span{
		"bad":   nPlusOneTrace("bad"),
		"clean": {dbSpan("clean", "s1", "SELECT 1", 10)},
	}}
	e := newTestEngine(store, 2)

	e.RunOnce("bad")
	e.RunOnce("clean")
	e.RunOnce("clean")
	require.Equal(t, 1, e.Summary().Resolved)

	issuesBefore := e.Issues()
	require.Len(t, issuesBefore, 1)

	// Re-detection reactivates the same issue rather than duplicating.
	e.RunOnce("bad")
	issues := e.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, issuesBefore[0].ID, issues[0].ID)
	assert.Equal(t, StateActive, issues[0].State)
}

type panickyAnalyzer struct{}

func (a *panickyAnalyzer) Name() string { return "panicky" }

func (a *panickyAnalyzer) Analyze(spans []models.Span) []Finding {
	panic("boom")
}

func TestEngineIsolatesAnalyzerPanics(t *testing.T) {
	store := &fakeStore{traces: map[string][]models.Span{"t1": nPlusOneTrace("t1")}}
	analyzers := append([]Analyzer{&panickyAnalyzer{}}, BuiltinAnalyzers(DefaultRuleConfig())...)
	e := NewEngine(store, analyzers, Options{ResolveAfterPasses: 10})
	e.Close()

	assert.NotPanics(t, func() { e.RunOnce("t1") })

	// The panicking analyzer did not prevent the others from running.
	assert.Equal(t, 1, e.Summary().ByRule[RuleNPlusOne])
}

func TestEngineEmptyTraceIsNoop(t *testing.T) {
	e := newTestEngine(&fakeStore{traces: map[string][]models.Span{}}, 10)

	e.RunOnce("missing")

	assert.Equal(t, 0, e.Summary().Active)
}

func TestEngineEnqueueNeverBlocks(t *testing.T) {
	store := &fakeStore{traces: map[string][]models.Span{}}
	e := NewEngine(store, nil, Options{QueueSize: 1})
	defer e.Close()

	// Saturating the queue must drop rather than block.
	for i := 0; i < 100; i++ {
		e.Enqueue(fmt.Sprintf("t%d", i))
	}
}
