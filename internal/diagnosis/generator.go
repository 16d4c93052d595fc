// Package diagnosis turns a flagged incident and its correlated trace
// context into an AI-generated root-cause assessment.
package diagnosis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vigil/internal/models"
	"vigil/pkg/llm"
)

// Generator utilizes an underlying LLM provider to diagnose flagged incidents.
type Generator struct {
	provider llm.Provider
}

// New initializes a Generator with the given LLM provider.
func New(provider llm.Provider) *Generator {
	return &Generator{
		provider: provider,
	}
}

// Diagnose asks the provider for a root-cause assessment of the incident.
func (g *Generator) Diagnose(ctx context.Context, incident *models.Incident) (string, error) {
	prompt := g.buildPrompt(incident)

	response, err := g.provider.Analyze(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("LLM diagnosis failed: %w", err)
	}

	return response, nil
}

// buildPrompt creates the diagnosis prompt from the incident reason,
// event messages and correlated spans.
func (g *Generator) buildPrompt(incident *models.Incident) string {
	return fmt.Sprintf(`
You are an SRE diagnosing a production incident. Given the following data, identify the most likely root cause.

INCIDENT:
- Detected: %s
- Reason flagged: %s

EVENTS (%d):
%s
TRACE CONTEXT (%d spans):
%s
Based on this data, provide:
1. Most likely root cause (2-3 sentences)
2. Confidence level (high/medium/low)
3. Suggested next steps (3 bullet points)

Respond in JSON format:
{
  "root_cause": "...",
  "confidence": "...",
  "next_steps": ["...", "...", "..."]
}
`,
		incident.CreatedAt.Format(time.RFC3339),
		incident.Reason,
		len(incident.Events),
		formatEvents(incident.Events),
		len(incident.Spans),
		formatSpans(incident.Spans),
	)
}

// formatEvents formats events for the prompt
func formatEvents(events []models.Event) string {
	if len(events) == 0 {
		return "No events recorded.\n"
	}

	var b strings.Builder
	for i := range events {
		e := &events[i]
		fmt.Fprintf(&b, "- [%s] %s: %s\n", e.Severity, e.Source, e.Message)
	}
	return b.String()
}

// formatSpans formats the correlated spans for the prompt, top 10 only.
func formatSpans(spans []models.Span) string {
	if len(spans) == 0 {
		return "No related traces found.\n"
	}

	var b strings.Builder
	for i := range spans {
		if i >= 10 {
			fmt.Fprintf(&b, "... and %d more spans\n", len(spans)-i)
			break
		}
		sp := &spans[i]
		fmt.Fprintf(&b, "- Service: %s\n  Operation: %s\n  Duration: %dms\n  Status: %s\n",
			sp.ServiceName, sp.OperationName, sp.DurationMs, sp.StatusCode)
	}
	return b.String()
}
