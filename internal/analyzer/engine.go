package analyzer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vigil/internal/metrics"
	"vigil/internal/models"
)

// TraceReader is the subset of the span store the engine reads.
type TraceReader interface {
	SpansForTrace(traceID string) []models.Span
}

// Engine runs every registered analyzer over a trace's spans and
// reconciles their findings against the issue table.
//
// Ingestion hands trace ids to Enqueue and never blocks: a full queue
// drops the request (the trace is re-analyzed on its next delivery).
// One worker goroutine drains the queue, so issue-table reconciliation
// is single-writer by construction.
type Engine struct {
	store     TraceReader
	analyzers []Analyzer
	logger    *slog.Logger
	metrics   *metrics.Metrics

	resolveAfter int

	mu     sync.RWMutex
	issues map[string]*Issue // keyed by rule + "\x00" + fingerprint

	queue     chan string
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Options tunes the engine.
type Options struct {
	QueueSize          int
	ResolveAfterPasses int
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
}

// NewEngine creates an engine with the given analyzers and starts its
// worker.
func NewEngine(store TraceReader, analyzers []Analyzer, opts Options) *Engine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.ResolveAfterPasses <= 0 {
		opts.ResolveAfterPasses = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := &Engine{
		store:        store,
		analyzers:    analyzers,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		resolveAfter: opts.ResolveAfterPasses,
		issues:       make(map[string]*Issue),
		queue:        make(chan string, opts.QueueSize),
		done:         make(chan struct{}),
	}
	e.wg.Add(1)
	go e.worker()
	return e
}

// Enqueue schedules a trace for analysis without blocking. Returns
// false if the queue was full and the request was dropped.
func (e *Engine) Enqueue(traceID string) bool {
	select {
	case e.queue <- traceID:
		return true
	default:
		e.metrics.IncAnalysisDropped()
		e.logger.Warn("analysis queue full, dropping trace", "trace_id", traceID)
		return false
	}
}

// Close stops the worker and waits for in-flight passes to finish.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case traceID := <-e.queue:
			e.RunOnce(traceID)
		case <-e.done:
			return
		}
	}
}

// RunOnce runs one synchronous analysis pass for the trace. Exposed for
// tests; production traffic goes through Enqueue.
func (e *Engine) RunOnce(traceID string) {
	spans := e.store.SpansForTrace(traceID)
	if len(spans) == 0 {
		return
	}

	var findings []Finding
	for _, a := range e.analyzers {
		findings = append(findings, e.runAnalyzer(a, spans)...)
	}
	e.reconcile(findings)
	e.metrics.IncTracesAnalyzed()
}

// runAnalyzer isolates a single analyzer: a panic is logged and skipped
// so the remaining analyzers still run.
func (e *Engine) runAnalyzer(a Analyzer, spans []models.Span) (findings []Finding) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("analyzer panicked", "analyzer", a.Name(), "panic", r)
			findings = nil
		}
	}()
	return a.Analyze(spans)
}

// reconcile applies one pass of findings to the issue table: create new
// issues, refresh re-found ones (reactivating if resolved), and age
// every active issue that was not re-found toward resolution.
func (e *Engine) reconcile(findings []Finding) {
	now := time.Now()
	found := make(map[string]bool, len(findings))

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, f := range findings {
		key := issueKey(f.Rule, f.Fingerprint)
		found[key] = true
		if existing, ok := e.issues[key]; ok {
			existing.LastSeen = now
			existing.State = StateActive
			existing.missedPasses = 0
			existing.Message = f.Message
			existing.Detail = f.Detail
			continue
		}
		e.issues[key] = &Issue{
			ID:          uuid.New().String(),
			Rule:        f.Rule,
			Severity:    f.Severity,
			Message:     f.Message,
			Detail:      f.Detail,
			Suggestion:  f.Suggestion,
			Fingerprint: f.Fingerprint,
			FirstSeen:   now,
			LastSeen:    now,
			State:       StateActive,
		}
	}

	for key, issue := range e.issues {
		if issue.State != StateActive || found[key] {
			continue
		}
		issue.missedPasses++
		if issue.missedPasses >= e.resolveAfter {
			issue.State = StateResolved
		}
	}

	e.publishCountsLocked()
}

// publishCountsLocked pushes issue totals to the metrics gauges. Caller
// holds e.mu.
func (e *Engine) publishCountsLocked() {
	active, resolved := 0, 0
	for _, issue := range e.issues {
		if issue.State == StateActive {
			active++
		} else {
			resolved++
		}
	}
	e.metrics.SetIssueCounts(active, resolved)
}

// Summary returns the aggregate issue counts for status reporting.
func (e *Engine) Summary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Summary{ByRule: make(map[string]int)}
	for _, issue := range e.issues {
		if issue.State == StateActive {
			s.Active++
			s.ByRule[issue.Rule]++
		} else {
			s.Resolved++
		}
	}
	return s
}

// Issues returns a snapshot of all issues, active first.
func (e *Engine) Issues() []Issue {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Issue, 0, len(e.issues))
	for _, issue := range e.issues {
		if issue.State == StateActive {
			out = append(out, *issue)
		}
	}
	for _, issue := range e.issues {
		if issue.State != StateActive {
			out = append(out, *issue)
		}
	}
	return out
}

func issueKey(rule, fingerprint string) string {
	return rule + "\x00" + fingerprint
}
