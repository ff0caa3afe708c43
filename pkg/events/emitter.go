// Package events publishes resolution lifecycle events to the platform event
// bus so the CRUD services (billing folios, job-site admin) can react to
// confirmed links.
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Publisher is the slice of the Kafka producer the emitter needs
type Publisher interface {
	Publish(ctx context.Context, key string, payload any, headers map[string]string) error
}

// Emitter publishes resolution outcome events
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitResolution publishes a terminal outcome as resolution.<status>. Emission
// failures are logged and swallowed: the outcome is already persisted and the
// human's decision must not fail because the bus is down.
func (e *Emitter) EmitResolution(ctx context.Context, outcome *models.ResolutionOutcome) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolution")
	defer span.End()

	if e == nil || e.producer == nil {
		return
	}
	if !outcome.Status.IsTerminal() {
		return
	}

	event := models.ResolutionEvent{
		TenantID:      outcome.TenantID,
		IngestionID:   outcome.IngestionID,
		PhotoBundleID: outcome.PhotoBundleID,
		Status:        outcome.Status,
		CandidateID:   outcome.CandidateID,
		EntityType:    outcome.EntityType,
		EntityID:      outcome.EntityID,
		Timestamp:     time.Now().UTC(),
	}
	if outcome.ResolvedBy != nil {
		event.ResolvedBy = *outcome.ResolvedBy
	}

	eventType := "resolution." + string(outcome.Status)
	headers := map[string]string{
		"event_type":     eventType,
		"tenant_id":      outcome.TenantID,
		"schema_version": SchemaVersion,
	}

	if err := e.producer.Publish(ctx, outcome.IngestionID, event, headers); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type":   eventType,
			"ingestion_id": outcome.IngestionID,
		}).Error("Failed to emit resolution event")
	}
}
