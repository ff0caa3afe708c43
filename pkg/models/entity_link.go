package models

import "time"

// LinkedEntityType identifies the kind of business entity a location can link to
type LinkedEntityType string

const (
	EntityTypeCustomer    LinkedEntityType = "customer"
	EntityTypeJobsite     LinkedEntityType = "jobsite"
	EntityTypeWorkRequest LinkedEntityType = "work_request"
)

// IsValid returns true if the entity type is a known value
func (t LinkedEntityType) IsValid() bool {
	switch t {
	case EntityTypeCustomer, EntityTypeJobsite, EntityTypeWorkRequest:
		return true
	}
	return false
}

// EntityLink is the local match projection of a business entity: the location
// and contact fields the matcher queries. Rows are maintained from platform
// entity lifecycle events plus the admin backfill routes; the owning records
// live in the CRUD services.
// Field order matches schema: entity_id, tenant_id, entity_type, label, ...
type EntityLink struct {
	EntityID        string           `json:"entity_id" db:"entity_id"`
	TenantID        string           `json:"tenant_id" db:"tenant_id"`
	EntityType      LinkedEntityType `json:"entity_type" db:"entity_type"`
	Label           string           `json:"label" db:"label"`
	AddressHash     string           `json:"address_hash,omitempty" db:"address_hash"`
	Latitude        *float64         `json:"latitude,omitempty" db:"latitude"`
	Longitude       *float64         `json:"longitude,omitempty" db:"longitude"`
	PhoneNormalized string           `json:"phone_normalized,omitempty" db:"phone_normalized"`
	EmailNormalized string           `json:"email_normalized,omitempty" db:"email_normalized"`
	EntityCreatedAt time.Time        `json:"entity_created_at" db:"entity_created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// UpsertEntityLinkRequest is the request body for the admin backfill route.
// Address, phone and email arrive raw; normalization and hashing happen
// server-side so every row carries comparable values.
type UpsertEntityLinkRequest struct {
	EntityID        string     `json:"entity_id" validate:"required"`
	EntityType      string     `json:"entity_type" validate:"required,oneof=customer jobsite work_request"`
	Label           string     `json:"label" validate:"required"`
	Address         string     `json:"address,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty" validate:"omitempty,email"`
	EntityCreatedAt *time.Time `json:"entity_created_at,omitempty"`
}

// EntityLinkListResponse is the response for listing entity links
type EntityLinkListResponse struct {
	Items      []EntityLink `json:"items"`
	TotalCount int          `json:"total_count"`
}
