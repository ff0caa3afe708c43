// Package processor consumes platform entity lifecycle events and maintains
// the entity_links projection the matcher queries.
package processor

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/crewline/atlas/pkg/kafka"
	"github.com/crewline/atlas/pkg/metrics"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalize"
	"github.com/crewline/atlas/pkg/normalizers"
	"github.com/crewline/atlas/pkg/tracing"
)

// LinkStore is the slice of the entity link repository the processor needs
type LinkStore interface {
	Upsert(ctx context.Context, tenantID string, link models.EntityLink) (*models.EntityLink, error)
	Delete(ctx context.Context, tenantID string, entityType models.LinkedEntityType, entityID string) error
}

// EntityProcessor projects entity.upserted / entity.deleted events into the
// local match projection
type EntityProcessor struct {
	logger ectologger.Logger
	links  LinkStore
}

// NewEntityProcessor creates a new entity projection processor
func NewEntityProcessor(logger ectologger.Logger, links LinkStore) *EntityProcessor {
	return &EntityProcessor{
		logger: logger,
		links:  links,
	}
}

// ProcessMessage handles one entity lifecycle message. Unknown event types
// are committed and skipped; malformed payloads are errors so they surface
// instead of silently thinning the projection.
func (p *EntityProcessor) ProcessMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.EntityProcessor.ProcessMessage")
	defer span.End()

	eventType := msg.EventType()
	switch eventType {
	case models.EntityEventUpserted, models.EntityEventDeleted:
	default:
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"event_type": eventType,
		}).Debug("Skipping unhandled event type")
		return nil
	}

	event, err := msg.ParseEntityEvent()
	if err != nil {
		metrics.EntityProjectionEvents.WithLabelValues(eventType, "malformed").Inc()
		return err
	}

	entityType := models.LinkedEntityType(event.EntityType)
	if !entityType.IsValid() {
		// other services publish entity kinds this projection never matches
		metrics.EntityProjectionEvents.WithLabelValues(eventType, "ignored").Inc()
		return nil
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   event.TenantID,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
	})

	switch eventType {
	case models.EntityEventDeleted:
		if err := p.links.Delete(ctx, event.TenantID, entityType, event.EntityID); err != nil {
			metrics.EntityProjectionEvents.WithLabelValues(eventType, "error").Inc()
			return fmt.Errorf("failed to delete entity link: %w", err)
		}
		log.Debug("Deleted entity link from projection")

	case models.EntityEventUpserted:
		link := models.EntityLink{
			EntityID:        event.EntityID,
			EntityType:      entityType,
			Label:           event.Label,
			AddressHash:     normalize.HashAddress(event.Address),
			Latitude:        event.Latitude,
			Longitude:       event.Longitude,
			PhoneNormalized: normalizers.NormalizePhone(event.Phone),
			EmailNormalized: normalizers.NormalizeEmail(event.Email),
		}
		if event.CreatedAt != nil {
			link.EntityCreatedAt = *event.CreatedAt
		}
		if _, err := p.links.Upsert(ctx, event.TenantID, link); err != nil {
			metrics.EntityProjectionEvents.WithLabelValues(eventType, "error").Inc()
			return fmt.Errorf("failed to upsert entity link: %w", err)
		}
		log.Debug("Upserted entity link into projection")
	}

	metrics.EntityProjectionEvents.WithLabelValues(eventType, "ok").Inc()
	return nil
}
