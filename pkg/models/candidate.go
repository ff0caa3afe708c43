package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CandidateSource identifies where a location candidate came from
type CandidateSource string

const (
	CandidateSourceEXIF         CandidateSource = "exif"
	CandidateSourceOCR          CandidateSource = "ocr"
	CandidateSourceManualSearch CandidateSource = "manual_search"
	CandidateSourceStored       CandidateSource = "stored"
)

// IsValid returns true if the source is a known value
func (s CandidateSource) IsValid() bool {
	switch s {
	case CandidateSourceEXIF, CandidateSourceOCR, CandidateSourceManualSearch, CandidateSourceStored:
		return true
	}
	return false
}

// AddressComponents holds free-form address parts (street_number, street_name,
// city, region, postal_code, ...) stored as jsonb.
type AddressComponents map[string]string

func (c AddressComponents) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *AddressComponents) Scan(src any) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("AddressComponents.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, c)
}

// LocationCandidate represents a single geocoded possibility for an ingestion.
// A candidate with an empty ID is ephemeral (manual search result) — it exists
// only in responses until a confirmation persists it as a stored candidate.
// Field order matches schema: id, tenant_id, ingestion_id, photo_bundle_id, ...
type LocationCandidate struct {
	ID               string            `json:"id,omitempty" db:"id"`
	TenantID         string            `json:"tenant_id" db:"tenant_id"`
	IngestionID      string            `json:"ingestion_id" db:"ingestion_id"`
	PhotoBundleID    string            `json:"photo_bundle_id,omitempty" db:"photo_bundle_id"`
	Source           CandidateSource   `json:"source" db:"source"`
	Provider         string            `json:"provider,omitempty" db:"provider"`
	FormattedAddress string            `json:"formatted_address,omitempty" db:"formatted_address"`
	Latitude         *float64          `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64          `json:"longitude,omitempty" db:"longitude"`
	Confidence       float64           `json:"confidence" db:"confidence"` // source-reported, 0-100
	AddressHash      string            `json:"address_hash,omitempty" db:"address_hash"`
	Components       AddressComponents `json:"components,omitempty" db:"components"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
}

// IsStored returns true if the candidate has been persisted
func (c *LocationCandidate) IsStored() bool {
	return c.ID != ""
}

// HasCoordinates returns true if both latitude and longitude are present
func (c *LocationCandidate) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// CreateCandidateRequest is one candidate in a capture batch
type CreateCandidateRequest struct {
	IngestionID      string            `json:"ingestion_id" validate:"required"`
	PhotoBundleID    string            `json:"photo_bundle_id,omitempty"`
	Source           string            `json:"source" validate:"required,oneof=exif ocr manual_search stored"`
	Provider         string            `json:"provider,omitempty"`
	FormattedAddress string            `json:"formatted_address,omitempty"`
	Latitude         *float64          `json:"latitude,omitempty"`
	Longitude        *float64          `json:"longitude,omitempty"`
	Confidence       float64           `json:"confidence" validate:"gte=0,lte=100"`
	Components       map[string]string `json:"components,omitempty"`
}

// CreateCandidatesRequest is the request body for registering candidates
// produced by the capture pipeline
type CreateCandidatesRequest struct {
	Candidates []CreateCandidateRequest `json:"candidates" validate:"required,min=1,dive"`
}

// CandidateListResponse is the response for listing candidates
type CandidateListResponse struct {
	Items      []LocationCandidate `json:"items"`
	TotalCount int                 `json:"total_count"`
}
