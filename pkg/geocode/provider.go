// Package geocode shapes free-text searches against an external geocoding
// provider into ephemeral location candidates. The service never implements
// geocoding itself; it consumes provider results.
package geocode

import (
	"context"

	"github.com/crewline/atlas/pkg/models"
)

// Provider is the geocoding collaborator contract. Implementations return
// ephemeral candidates (no id) with source=manual_search; errors are the
// caller's to degrade into empty result sets.
type Provider interface {
	Search(ctx context.Context, query, countryHint string) ([]models.LocationCandidate, error)
}
