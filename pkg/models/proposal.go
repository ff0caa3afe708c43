package models

import "fmt"

// ProposalType identifies the advisory action a draft proposal suggests
type ProposalType string

const (
	ProposalCreateCustomer   ProposalType = "create_customer"
	ProposalCreateJobsite    ProposalType = "create_jobsite"
	ProposalAttachToExisting ProposalType = "attach_to_existing"
)

// SuggestedData is the prefill skeleton handed to the human-driven creation
// flow. It is a closed set of fields rather than an open map so the downstream
// flows stay type-safe; which fields are required depends on the proposal type.
type SuggestedData struct {
	Name       string            `json:"name,omitempty"`
	Address    string            `json:"address,omitempty"`
	Components map[string]string `json:"components,omitempty"`
	Latitude   *float64          `json:"latitude,omitempty"`
	Longitude  *float64          `json:"longitude,omitempty"`
	Phone      string            `json:"phone,omitempty"`
	Email      string            `json:"email,omitempty"`
	EntityType LinkedEntityType  `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
}

// DraftProposal is a non-binding suggestion generated when matching confidence
// is insufficient. Proposals are generated fresh on every resolve and never
// persisted.
type DraftProposal struct {
	Type          ProposalType  `json:"type"`
	Reason        string        `json:"reason"`
	SuggestedData SuggestedData `json:"suggested_data"`
}

// Validate checks that the suggested data carries the fields its proposal type
// requires
func (p *DraftProposal) Validate() error {
	switch p.Type {
	case ProposalCreateJobsite:
		if p.SuggestedData.Address == "" {
			return fmt.Errorf("create_jobsite proposal requires an address")
		}
	case ProposalCreateCustomer:
		if p.SuggestedData.Phone == "" && p.SuggestedData.Email == "" && p.SuggestedData.Name == "" {
			return fmt.Errorf("create_customer proposal requires a contact field")
		}
	case ProposalAttachToExisting:
		if !p.SuggestedData.EntityType.IsValid() || p.SuggestedData.EntityID == "" {
			return fmt.Errorf("attach_to_existing proposal requires an entity reference")
		}
	default:
		return fmt.Errorf("unknown proposal type %q", p.Type)
	}
	return nil
}
