package models

import "time"

// ResolutionStatus is the per-ingestion lifecycle state of a location decision
type ResolutionStatus string

const (
	ResolutionPending   ResolutionStatus = "pending"
	ResolutionConfirmed ResolutionStatus = "confirmed"
	ResolutionDenied    ResolutionStatus = "denied"
	ResolutionSkipped   ResolutionStatus = "skipped"
)

// IsValid returns true if the status is a known value
func (s ResolutionStatus) IsValid() bool {
	switch s {
	case ResolutionPending, ResolutionConfirmed, ResolutionDenied, ResolutionSkipped:
		return true
	}
	return false
}

// IsTerminal returns true if no further automatic transition occurs
func (s ResolutionStatus) IsTerminal() bool {
	return s == ResolutionConfirmed || s == ResolutionDenied || s == ResolutionSkipped
}

// ResolutionOutcome is the persisted record of a human decision for one
// ingestion (or photo bundle). At most one row exists per
// (tenant_id, ingestion_id, photo_bundle_id); terminal writes are a single
// atomic upsert, last write wins.
// Field order matches schema: id, tenant_id, ingestion_id, photo_bundle_id, ...
type ResolutionOutcome struct {
	ID                string            `json:"id" db:"id"`
	TenantID          string            `json:"tenant_id" db:"tenant_id"`
	IngestionID       string            `json:"ingestion_id" db:"ingestion_id"`
	PhotoBundleID     string            `json:"photo_bundle_id,omitempty" db:"photo_bundle_id"`
	Status            ResolutionStatus  `json:"status" db:"status"`
	CandidateID       *string           `json:"candidate_id,omitempty" db:"candidate_id"`
	ManualAddressText *string           `json:"manual_address_text,omitempty" db:"manual_address_text"`
	ManualLatitude    *float64          `json:"manual_latitude,omitempty" db:"manual_latitude"`
	ManualLongitude   *float64          `json:"manual_longitude,omitempty" db:"manual_longitude"`
	EntityType        *LinkedEntityType `json:"entity_type,omitempty" db:"entity_type"`
	EntityID          *string           `json:"entity_id,omitempty" db:"entity_id"`
	ResolvedBy        *string           `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// ResolveRequest is the request body for the read-only resolve operation.
// Contact fields are the phone/email on file for the ingestion, forwarded by
// the capture pipeline for contact matching.
type ResolveRequest struct {
	IngestionID   string `json:"ingestion_id" validate:"required"`
	PhotoBundleID string `json:"photo_bundle_id,omitempty"`
	ContactPhone  string `json:"contact_phone,omitempty"`
	ContactEmail  string `json:"contact_email,omitempty" validate:"omitempty,email"`
}

// ResolveResponse carries everything the review UI needs for one ingestion
type ResolveResponse struct {
	Candidates []LocationCandidate `json:"candidates"`
	Matches    []EntityMatch       `json:"matches"`
	Proposals  []DraftProposal     `json:"proposals"`
	Reasoning  []string            `json:"reasoning"`
	Outcome    *ResolutionOutcome  `json:"outcome,omitempty"`
}

// SearchRequest is the request body for the manual search fallback
type SearchRequest struct {
	Query       string `json:"query" validate:"required"`
	CountryHint string `json:"country_hint,omitempty" validate:"omitempty,len=2"`
}

// SearchResponse carries ephemeral candidates from the geocoding provider
type SearchResponse struct {
	Candidates []LocationCandidate `json:"candidates"`
}

// ConfirmRequest is the request body for the confirm operation. Exactly one of
// CandidateID or ManualAddressText must be supplied; the entity target is
// optional but entity_type and entity_id go together.
type ConfirmRequest struct {
	IngestionID       string   `json:"ingestion_id" validate:"required"`
	PhotoBundleID     string   `json:"photo_bundle_id,omitempty"`
	CandidateID       string   `json:"candidate_id,omitempty"`
	ManualAddressText string   `json:"manual_address_text,omitempty"`
	ManualLatitude    *float64 `json:"manual_latitude,omitempty"`
	ManualLongitude   *float64 `json:"manual_longitude,omitempty"`
	EntityType        string   `json:"entity_type,omitempty" validate:"omitempty,oneof=customer jobsite work_request"`
	EntityID          string   `json:"entity_id,omitempty"`
}

// DenyRequest marks the ingestion's top candidate as wrong. The candidate row
// is retained for audit; only the outcome status changes.
type DenyRequest struct {
	IngestionID   string `json:"ingestion_id" validate:"required"`
	PhotoBundleID string `json:"photo_bundle_id,omitempty"`
	CandidateID   string `json:"candidate_id" validate:"required"`
}

// SkipRequest marks the ingestion as explicitly skipped so it is not
// re-surfaced as unresolved
type SkipRequest struct {
	IngestionID   string `json:"ingestion_id" validate:"required"`
	PhotoBundleID string `json:"photo_bundle_id,omitempty"`
}

// OutcomeResponse wraps the persisted outcome returned by the mutating
// operations
type OutcomeResponse struct {
	Outcome ResolutionOutcome `json:"outcome"`
}

// IngestionResolutionResponse is the current resolution picture for one
// ingestion: every recorded outcome across its photo bundles plus the
// candidates on file
type IngestionResolutionResponse struct {
	Outcomes   []ResolutionOutcome `json:"outcomes"`
	Candidates []LocationCandidate `json:"candidates"`
}
