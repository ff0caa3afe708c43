// Package matching implements entity matching against the local projection.
// Three independent strategies run per request: exact address-hash lookup,
// proximity search, and contact overlap. Each entity appears at most once in
// the result, carrying the strongest strategy that found it.
package matching

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/crewline/atlas/internal/repositories/entitylink"
	"github.com/crewline/atlas/pkg/metrics"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalizers"
	"github.com/crewline/atlas/pkg/tracing"
)

// EntityFinder is the slice of the entity link repository the engine needs
type EntityFinder interface {
	FindByLocationHash(ctx context.Context, tenantID, hash string) ([]models.EntityLink, error)
	FindNearby(ctx context.Context, tenantID string, lat, lng, radiusMeters float64) ([]entitylink.NearbyLink, error)
	FindByContact(ctx context.Context, tenantID, phoneNormalized, emailNormalized string) ([]models.EntityLink, error)
}

// Config contains tunables for the match engine
type Config struct {
	ProximityRadiusMeters float64 // search radius for proximity matching (default: 500)
	ContactConfidence     float64 // fixed confidence for contact matches (default: 0.65)
	MaxMatches            int     // cap on returned matches (default: 3)
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		ProximityRadiusMeters: 500,
		ContactConfidence:     0.65,
		MaxMatches:            3,
	}
}

// Input is one matching request: the candidates seen for an ingestion plus
// the ingestion's contact
type Input struct {
	Candidates []models.LocationCandidate
	Contact    models.Contact
}

// Engine runs the matching strategies
type Engine struct {
	logger ectologger.Logger
	finder EntityFinder
	config Config
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, finder EntityFinder, config Config) *Engine {
	if config.ProximityRadiusMeters <= 0 {
		config.ProximityRadiusMeters = 500
	}
	if config.ContactConfidence <= 0 {
		config.ContactConfidence = 0.65
	}
	if config.MaxMatches <= 0 {
		config.MaxMatches = 3
	}
	return &Engine{
		logger: logger,
		finder: finder,
		config: config,
	}
}

// scored pairs a match with the tie-break keys that never leave the engine
type scored struct {
	match     models.EntityMatch
	distance  *float64
	createdAt time.Time
}

// Match runs all strategies for the tenant and returns matches sorted by
// descending confidence, capped at the configured bound
func (e *Engine) Match(ctx context.Context, tenantID string, input Input) ([]models.EntityMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  tenantID,
		"candidates": len(input.Candidates),
	})

	best := make(map[string]*scored)

	if err := e.matchExactHash(ctx, tenantID, input.Candidates, best); err != nil {
		return nil, err
	}
	if err := e.matchProximity(ctx, tenantID, input.Candidates, best); err != nil {
		return nil, err
	}
	if err := e.matchContact(ctx, tenantID, input.Contact, best); err != nil {
		return nil, err
	}

	results := make([]scored, 0, len(best))
	for _, s := range best {
		results = append(results, *s)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].match.Confidence != results[j].match.Confidence {
			return results[i].match.Confidence > results[j].match.Confidence
		}
		di, dj := results[i].distance, results[j].distance
		switch {
		case di != nil && dj != nil && *di != *dj:
			return *di < *dj
		case di != nil && dj == nil:
			return true
		case di == nil && dj != nil:
			return false
		}
		return results[i].createdAt.After(results[j].createdAt)
	})

	if len(results) > e.config.MaxMatches {
		results = results[:e.config.MaxMatches]
	}

	matches := make([]models.EntityMatch, 0, len(results))
	for _, s := range results {
		matches = append(matches, s.match)
		metrics.RecordMatch(tenantID, string(s.match.MatchType))
	}

	log.WithFields(map[string]any{"matches": len(matches)}).Debug("Matching complete")
	return matches, nil
}

// matchExactHash looks up entities whose stored location hash equals a
// candidate's non-empty hash. Exact matches are categorical: confidence 1.0.
func (e *Engine) matchExactHash(ctx context.Context, tenantID string, candidates []models.LocationCandidate, best map[string]*scored) error {
	seen := make(map[string]bool)
	for _, c := range candidates {
		if c.AddressHash == "" || seen[c.AddressHash] {
			continue
		}
		seen[c.AddressHash] = true

		links, err := e.finder.FindByLocationHash(ctx, tenantID, c.AddressHash)
		if err != nil {
			return err
		}
		for _, link := range links {
			keep(best, scored{
				match: models.EntityMatch{
					EntityType: link.EntityType,
					EntityID:   link.EntityID,
					MatchType:  models.MatchTypeExactHash,
					Confidence: 1.0,
					Label:      link.Label,
				},
				createdAt: link.EntityCreatedAt,
			})
		}
	}
	return nil
}

// matchProximity searches entities within the configured radius of each
// coordinate-bearing candidate. Confidence decays linearly with distance and
// reaches zero at the radius.
func (e *Engine) matchProximity(ctx context.Context, tenantID string, candidates []models.LocationCandidate, best map[string]*scored) error {
	for _, c := range candidates {
		if !c.HasCoordinates() {
			continue
		}

		nearby, err := e.finder.FindNearby(ctx, tenantID, *c.Latitude, *c.Longitude, e.config.ProximityRadiusMeters)
		if err != nil {
			return err
		}
		for _, n := range nearby {
			confidence := 1 - n.DistanceMeters/e.config.ProximityRadiusMeters
			if confidence <= 0 {
				continue
			}
			d := n.DistanceMeters
			keep(best, scored{
				match: models.EntityMatch{
					EntityType:     n.EntityType,
					EntityID:       n.EntityID,
					MatchType:      models.MatchTypeProximity,
					Confidence:     confidence,
					Label:          n.Label,
					DistanceMeters: &d,
				},
				distance:  &d,
				createdAt: n.EntityCreatedAt,
			})
		}
	}
	return nil
}

// matchContact emits a fixed-confidence match when the ingestion's contact is
// already linked to an entity. Contact overlap is its own signal, independent
// of geometry, never blended with proximity confidence.
func (e *Engine) matchContact(ctx context.Context, tenantID string, contact models.Contact, best map[string]*scored) error {
	phone := normalizers.NormalizePhone(contact.Phone)
	email := normalizers.NormalizeEmail(contact.Email)
	if phone == "" && email == "" {
		return nil
	}

	links, err := e.finder.FindByContact(ctx, tenantID, phone, email)
	if err != nil {
		return err
	}
	for _, link := range links {
		keep(best, scored{
			match: models.EntityMatch{
				EntityType: link.EntityType,
				EntityID:   link.EntityID,
				MatchType:  models.MatchTypeContactMatch,
				Confidence: e.config.ContactConfidence,
				Label:      link.Label,
			},
			createdAt: link.EntityCreatedAt,
		})
	}
	return nil
}

// keep records the strongest match per entity. On equal confidence the nearer
// match wins; otherwise the incumbent stays.
func keep(best map[string]*scored, s scored) {
	key := string(s.match.EntityType) + ":" + s.match.EntityID
	existing, ok := best[key]
	if !ok {
		best[key] = &s
		return
	}
	if s.match.Confidence > existing.match.Confidence {
		best[key] = &s
		return
	}
	if s.match.Confidence == existing.match.Confidence &&
		s.distance != nil && existing.distance != nil && *s.distance < *existing.distance {
		best[key] = &s
	}
}
