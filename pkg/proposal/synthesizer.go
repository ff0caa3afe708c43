// Package proposal drafts non-binding suggestions for the human reviewer when
// matching confidence is insufficient. Proposals never mutate state; the
// creation flows they feed live outside this service.
package proposal

import (
	"fmt"

	"github.com/crewline/atlas/pkg/models"
)

// Config contains tunables for proposal synthesis
type Config struct {
	// UsableConfidenceFloor is the match confidence at or above which no
	// proposal is needed (default: 0.5)
	UsableConfidenceFloor float64
}

// DefaultConfig returns default synthesizer configuration
func DefaultConfig() Config {
	return Config{UsableConfidenceFloor: 0.5}
}

// Synthesizer drafts proposals from candidates and weak matches
type Synthesizer struct {
	config Config
}

// NewSynthesizer creates a new proposal synthesizer
func NewSynthesizer(config Config) *Synthesizer {
	if config.UsableConfidenceFloor <= 0 {
		config.UsableConfidenceFloor = 0.5
	}
	return &Synthesizer{config: config}
}

// Propose drafts at most one proposal per plausible action. Returns an empty
// slice when any match clears the usable floor — a usable match needs no
// proposal — or when there is nothing to suggest from.
func (s *Synthesizer) Propose(candidates []models.LocationCandidate, matches []models.EntityMatch, contact models.Contact) []models.DraftProposal {
	for _, m := range matches {
		if m.Confidence >= s.config.UsableConfidenceFloor {
			return []models.DraftProposal{}
		}
	}

	proposals := []models.DraftProposal{}

	if best := bestAddressCandidate(candidates); best != nil {
		proposals = append(proposals, models.DraftProposal{
			Type:   models.ProposalCreateJobsite,
			Reason: fmt.Sprintf("No existing entity matched %q; a new job-site can be created at this address.", best.FormattedAddress),
			SuggestedData: models.SuggestedData{
				Address:    best.FormattedAddress,
				Components: best.Components,
				Latitude:   best.Latitude,
				Longitude:  best.Longitude,
			},
		})
	}

	if contact.Phone != "" || contact.Email != "" {
		data := models.SuggestedData{
			Phone: contact.Phone,
			Email: contact.Email,
		}
		if best := bestAddressCandidate(candidates); best != nil {
			data.Address = best.FormattedAddress
			data.Latitude = best.Latitude
			data.Longitude = best.Longitude
		}
		proposals = append(proposals, models.DraftProposal{
			Type:          models.ProposalCreateCustomer,
			Reason:        "The ingestion carries a contact not linked to any matched entity; a new customer can be created from it.",
			SuggestedData: data,
		})
	}

	if len(matches) > 0 {
		weak := matches[0] // matches arrive sorted by descending confidence
		proposals = append(proposals, models.DraftProposal{
			Type: models.ProposalAttachToExisting,
			Reason: fmt.Sprintf("Best match %q scored %.2f, below the %.2f confidence floor; attach only if the reviewer recognizes it.",
				weak.Label, weak.Confidence, s.config.UsableConfidenceFloor),
			SuggestedData: models.SuggestedData{
				Name:       weak.Label,
				EntityType: weak.EntityType,
				EntityID:   weak.EntityID,
			},
		})
	}

	return proposals
}

// bestAddressCandidate picks the highest-confidence candidate that carries a
// formatted address
func bestAddressCandidate(candidates []models.LocationCandidate) *models.LocationCandidate {
	var best *models.LocationCandidate
	for i := range candidates {
		c := &candidates[i]
		if c.FormattedAddress == "" {
			continue
		}
		if best == nil || c.Confidence > best.Confidence {
			best = c
		}
	}
	return best
}
