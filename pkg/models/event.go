package models

import "time"

// Entity lifecycle event types published by the platform CRUD services
const (
	EntityEventUpserted = "entity.upserted"
	EntityEventDeleted  = "entity.deleted"
)

// EntityEvent is an incoming entity lifecycle message from the platform event
// bus. Upserts carry the location/contact fields raw; the projection consumer
// normalizes them before writing the entity_links row.
type EntityEvent struct {
	Type       string     `json:"type"`
	TenantID   string     `json:"tenant_id"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Label      string     `json:"label,omitempty"`
	Address    string     `json:"address,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	Phone      string     `json:"phone,omitempty"`
	Email      string     `json:"email,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Contact is the phone/email on file for an ingestion, raw as captured by the
// field pipeline
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// ResolutionEvent is the outbound message published when a resolution reaches
// a terminal state
type ResolutionEvent struct {
	TenantID      string            `json:"tenant_id"`
	IngestionID   string            `json:"ingestion_id"`
	PhotoBundleID string            `json:"photo_bundle_id,omitempty"`
	Status        ResolutionStatus  `json:"status"`
	CandidateID   *string           `json:"candidate_id,omitempty"`
	EntityType    *LinkedEntityType `json:"entity_type,omitempty"`
	EntityID      *string           `json:"entity_id,omitempty"`
	ResolvedBy    string            `json:"resolved_by,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}
