package analyzer

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"vigil/internal/models"
)

// Rule names.
const (
	RuleNPlusOne            = "n_plus_one"
	RuleSlowQuery           = "slow_query"
	RuleUnhandledError      = "unhandled_error"
	RuleExternalCallFailure = "external_call_failure"
	RuleSlowExternalCall    = "slow_external_call"
)

// RuleConfig carries the thresholds shared by the built-in analyzers.
type RuleConfig struct {
	NPlusOneThreshold  int
	SlowQueryMs        int64
	SlowExternalCallMs int64
}

// DefaultRuleConfig returns the stock thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		NPlusOneThreshold:  5,
		SlowQueryMs:        500,
		SlowExternalCallMs: 2000,
	}
}

// BuiltinAnalyzers returns the full built-in rule set.
func BuiltinAnalyzers(cfg RuleConfig) []Analyzer {
	if cfg.NPlusOneThreshold <= 0 {
		cfg.NPlusOneThreshold = 5
	}
	if cfg.SlowQueryMs <= 0 {
		cfg.SlowQueryMs = 500
	}
	if cfg.SlowExternalCallMs <= 0 {
		cfg.SlowExternalCallMs = 2000
	}
	return []Analyzer{
		&NPlusOneAnalyzer{Threshold: cfg.NPlusOneThreshold},
		&SlowQueryAnalyzer{ThresholdMs: cfg.SlowQueryMs},
		&UnhandledErrorAnalyzer{},
		&ExternalCallFailureAnalyzer{},
		&SlowExternalCallAnalyzer{ThresholdMs: cfg.SlowExternalCallMs},
	}
}

var (
	singleQuotedRe = regexp.MustCompile(`'[^']*'`)
	doubleQuotedRe = regexp.MustCompile(`"[^"]*"`)
	numberRe       = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// NormalizeStatement reduces a database statement to its pattern:
// string and numeric literals become ?, whitespace collapses.
func NormalizeStatement(stmt string) string {
	s := singleQuotedRe.ReplaceAllString(stmt, "?")
	s = doubleQuotedRe.ReplaceAllString(s, "?")
	s = numberRe.ReplaceAllString(s, "?")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NPlusOneAnalyzer flags repeated executions of the same normalized
// database statement within one trace.
type NPlusOneAnalyzer struct {
	Threshold int
}

// Name implements Analyzer.
func (a *NPlusOneAnalyzer) Name() string { return RuleNPlusOne }

// Analyze implements Analyzer.
func (a *NPlusOneAnalyzer) Analyze(spans []models.Span) []Finding {
	type group struct {
		count   int
		example string
	}
	groups := make(map[string]*group)
	for i := range spans {
		sp := &spans[i]
		if !sp.IsDatabase() {
			continue
		}
		stmt := sp.DBStatement()
		if stmt == "" {
			continue
		}
		pattern := NormalizeStatement(stmt)
		g, ok := groups[pattern]
		if !ok {
			g = &group{example: stmt}
			groups[pattern] = g
		}
		g.count++
	}

	var findings []Finding
	for pattern, g := range groups {
		if g.count < a.Threshold {
			continue
		}
		findings = append(findings, Finding{
			Rule:        RuleNPlusOne,
			Severity:    SeverityWarning,
			Message:     fmt.Sprintf("query executed %d times in one trace: %s", g.count, truncate(pattern, 80)),
			Detail:      fmt.Sprintf("example statement: %s", truncate(g.example, 200)),
			Suggestion:  "Batch the lookups into a single query or add eager loading for the association.",
			Fingerprint: pattern,
		})
	}
	return findings
}

// SlowQueryAnalyzer flags individual database spans above the latency
// threshold.
type SlowQueryAnalyzer struct {
	ThresholdMs int64
}

// Name implements Analyzer.
func (a *SlowQueryAnalyzer) Name() string { return RuleSlowQuery }

// Analyze implements Analyzer.
func (a *SlowQueryAnalyzer) Analyze(spans []models.Span) []Finding {
	var findings []Finding
	for i := range spans {
		sp := &spans[i]
		if !sp.IsDatabase() || sp.DurationMs <= a.ThresholdMs {
			continue
		}
		key := NormalizeStatement(sp.DBStatement())
		if key == "" {
			key = sp.OperationName
		}
		findings = append(findings, Finding{
			Rule:        RuleSlowQuery,
			Severity:    SeverityWarning,
			Message:     fmt.Sprintf("slow query (%dms): %s", sp.DurationMs, truncate(key, 80)),
			Detail:      fmt.Sprintf("operation %s on service %s", sp.OperationName, sp.ServiceName),
			Suggestion:  "Check for missing indexes and review the query plan.",
			Fingerprint: key,
		})
	}
	return findings
}

// UnhandledErrorAnalyzer flags error spans whose parent also failed,
// meaning the error propagated without being caught at this layer.
// Outbound HTTP calls are left to ExternalCallFailureAnalyzer.
type UnhandledErrorAnalyzer struct{}

// Name implements Analyzer.
func (a *UnhandledErrorAnalyzer) Name() string { return RuleUnhandledError }

// Analyze implements Analyzer.
func (a *UnhandledErrorAnalyzer) Analyze(spans []models.Span) []Finding {
	byID := spansByID(spans)
	var findings []Finding
	for i := range spans {
		sp := &spans[i]
		if sp.StatusCode != models.StatusError || sp.IsHTTPClient() {
			continue
		}
		parent, ok := byID[sp.ParentSpanID]
		if !ok || parent.StatusCode != models.StatusError {
			continue
		}
		findings = append(findings, Finding{
			Rule:        RuleUnhandledError,
			Severity:    SeverityError,
			Message:     fmt.Sprintf("error in %s propagated uncaught to %s", sp.OperationName, parent.OperationName),
			Detail:      sp.StatusMessage,
			Suggestion:  "Handle the error where it occurs, or add a recovery path in the calling operation.",
			Fingerprint: sp.ServiceName + ":" + sp.OperationName,
		})
	}
	return findings
}

// ExternalCallFailureAnalyzer flags failed outbound HTTP calls whose
// failure was not absorbed by the caller.
type ExternalCallFailureAnalyzer struct{}

// Name implements Analyzer.
func (a *ExternalCallFailureAnalyzer) Name() string { return RuleExternalCallFailure }

// Analyze implements Analyzer.
func (a *ExternalCallFailureAnalyzer) Analyze(spans []models.Span) []Finding {
	byID := spansByID(spans)
	var findings []Finding
	for i := range spans {
		sp := &spans[i]
		if !sp.IsHTTPClient() || sp.StatusCode != models.StatusError {
			continue
		}
		parent, ok := byID[sp.ParentSpanID]
		if !ok || parent.StatusCode != models.StatusError {
			continue
		}
		host := extractHost(sp.HTTPURL())
		findings = append(findings, Finding{
			Rule:        RuleExternalCallFailure,
			Severity:    SeverityError,
			Message:     fmt.Sprintf("call to %s failed without graceful handling", host),
			Detail:      sp.StatusMessage,
			Suggestion:  "Wrap the outbound call with error handling and a sensible fallback or retry.",
			Fingerprint: host,
		})
	}
	return findings
}

// SlowExternalCallAnalyzer flags outbound HTTP calls above the latency
// threshold regardless of status.
type SlowExternalCallAnalyzer struct {
	ThresholdMs int64
}

// Name implements Analyzer.
func (a *SlowExternalCallAnalyzer) Name() string { return RuleSlowExternalCall }

// Analyze implements Analyzer.
func (a *SlowExternalCallAnalyzer) Analyze(spans []models.Span) []Finding {
	var findings []Finding
	for i := range spans {
		sp := &spans[i]
		if !sp.IsHTTPClient() || sp.DurationMs <= a.ThresholdMs {
			continue
		}
		host := extractHost(sp.HTTPURL())
		findings = append(findings, Finding{
			Rule:        RuleSlowExternalCall,
			Severity:    SeverityWarning,
			Message:     fmt.Sprintf("slow external call to %s (%dms)", host, sp.DurationMs),
			Detail:      fmt.Sprintf("operation %s on service %s", sp.OperationName, sp.ServiceName),
			Suggestion:  "Add a timeout to the outbound call and consider caching the response.",
			Fingerprint: host,
		})
	}
	return findings
}

// spansByID indexes the trace for parent resolution. An orphaned
// parent_span_id simply resolves to nothing, which the rules treat as
// root-like.
func spansByID(spans []models.Span) map[string]*models.Span {
	byID := make(map[string]*models.Span, len(spans))
	for i := range spans {
		byID[spans[i].SpanID] = &spans[i]
	}
	return byID
}

// extractHost pulls the host out of a URL, falling back to the raw
// string when it does not parse.
func extractHost(raw string) string {
	if raw == "" {
		return "unknown"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

// truncate truncates a string
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
