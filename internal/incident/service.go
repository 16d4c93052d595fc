// Package incident coordinates the event intake path: persist the
// event, classify it, and on an anomaly assemble trace context, request
// a diagnosis and notify. Every downstream call is fallible and must
// not block or undo earlier state updates.
package incident

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"vigil/internal/anomaly"
	"vigil/internal/models"
)

// EventStore is the persistence boundary for events and pattern counts.
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.Event) error
	MarkEventForDiagnosis(ctx context.Context, eventID string) error
	RecordErrorPattern(ctx context.Context, monitorID, fingerprint string) error
}

// Classifier decides whether an event is anomalous.
type Classifier interface {
	AnalyzeEvent(ctx context.Context, event *models.Event) anomaly.Verdict
}

// TraceResolver attaches related trace context to incident events.
type TraceResolver interface {
	RelatedTraces(ctx context.Context, events []models.Event) []models.Span
}

// Diagnoser produces an AI root-cause assessment for an incident.
type Diagnoser interface {
	Diagnose(ctx context.Context, incident *models.Incident) (string, error)
}

// Notifier delivers a flagged incident to an outbound channel.
type Notifier interface {
	SendIncident(incident *models.Incident) error
}

// Service wires the event intake pipeline together.
type Service struct {
	store      EventStore
	classifier Classifier
	resolver   TraceResolver
	diagnoser  Diagnoser
	notifier   Notifier
	logger     *slog.Logger
}

// New creates the incident service. diagnoser and notifier may be nil
// when those integrations are not configured.
func New(store EventStore, classifier Classifier, resolver TraceResolver, diagnoser Diagnoser, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		classifier: classifier,
		resolver:   resolver,
		diagnoser:  diagnoser,
		notifier:   notifier,
		logger:     logger,
	}
}

// HandleEvent runs one event through the pipeline. It returns the
// incident if one was created, nil otherwise.
func (s *Service) HandleEvent(ctx context.Context, event *models.Event) *models.Incident {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := s.store.InsertEvent(ctx, event); err != nil {
		s.logger.Error("failed to persist event", "event_id", event.ID, "error", err)
	}

	// Classify against history first, then record this occurrence so
	// the next identical error is no longer novel.
	verdict := s.classifier.AnalyzeEvent(ctx, event)
	if event.IsError() && event.MonitorID != "" {
		fingerprint := anomaly.ExtractErrorPattern(event.Message)
		if err := s.store.RecordErrorPattern(ctx, event.MonitorID, fingerprint); err != nil {
			s.logger.Error("failed to record error pattern", "monitor_id", event.MonitorID, "error", err)
		}
	}

	if !verdict.IsAnomaly {
		return nil
	}

	s.logger.Info("anomaly detected", "event_id", event.ID, "monitor_id", event.MonitorID, "reason", verdict.Reason)

	if verdict.ShouldDiagnose {
		if err := s.store.MarkEventForDiagnosis(ctx, event.ID); err != nil {
			s.logger.Error("failed to mark event for diagnosis", "event_id", event.ID, "error", err)
		}
	}

	incident := &models.Incident{
		ID:        uuid.New().String(),
		ProjectID: event.ProjectID,
		Reason:    verdict.Reason,
		Events:    []models.Event{*event},
		CreatedAt: time.Now(),
	}
	incident.Spans = s.resolver.RelatedTraces(ctx, incident.Events)

	if s.diagnoser != nil && verdict.ShouldDiagnose {
		diagnosis, err := s.diagnoser.Diagnose(ctx, incident)
		if err != nil {
			s.logger.Error("diagnosis failed", "incident_id", incident.ID, "error", err)
		} else {
			incident.Diagnosis = diagnosis
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendIncident(incident); err != nil {
			s.logger.Error("incident notification failed", "incident_id", incident.ID, "error", err)
		}
	}

	return incident
}
