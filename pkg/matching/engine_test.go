package matching

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewline/atlas/internal/repositories/entitylink"
	"github.com/crewline/atlas/pkg/models"
)

type fakeFinder struct {
	byHash    map[string][]models.EntityLink
	nearby    []entitylink.NearbyLink
	byContact []models.EntityLink

	lastTenant string
	lastPhone  string
	lastEmail  string
}

func (f *fakeFinder) FindByLocationHash(_ context.Context, tenantID, hash string) ([]models.EntityLink, error) {
	f.lastTenant = tenantID
	return f.byHash[hash], nil
}

func (f *fakeFinder) FindNearby(_ context.Context, tenantID string, _, _, radiusMeters float64) ([]entitylink.NearbyLink, error) {
	f.lastTenant = tenantID
	out := []entitylink.NearbyLink{}
	for _, n := range f.nearby {
		if n.DistanceMeters <= radiusMeters {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeFinder) FindByContact(_ context.Context, tenantID, phone, email string) ([]models.EntityLink, error) {
	f.lastTenant = tenantID
	f.lastPhone = phone
	f.lastEmail = email
	if phone == "" && email == "" {
		return []models.EntityLink{}, nil
	}
	return f.byContact, nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func ptr(f float64) *float64 { return &f }

func TestMatch_ExactHash(t *testing.T) {
	finder := &fakeFinder{
		byHash: map[string][]models.EntityLink{
			"H1": {{EntityType: models.EntityTypeJobsite, EntityID: "js-1", Label: "Harbour Site", AddressHash: "H1"}},
		},
	}
	engine := NewEngine(noopLogger(), finder, DefaultConfig())

	matches, err := engine.Match(context.Background(), "tenant-1", Input{
		Candidates: []models.LocationCandidate{{AddressHash: "H1", Source: models.CandidateSourceOCR}},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchTypeExactHash, matches[0].MatchType)
	assert.Equal(t, 1.0, matches[0].Confidence)
	assert.Equal(t, "js-1", matches[0].EntityID)
	assert.Equal(t, "tenant-1", finder.lastTenant)
}

func TestMatch_HashEqualityInvariance(t *testing.T) {
	// two candidates with the same hash yield the same exact match set
	finder := &fakeFinder{
		byHash: map[string][]models.EntityLink{
			"H1": {{EntityType: models.EntityTypeJobsite, EntityID: "js-1", Label: "Harbour Site"}},
		},
	}
	engine := NewEngine(noopLogger(), finder, DefaultConfig())

	single, err := engine.Match(context.Background(), "tenant-1", Input{
		Candidates: []models.LocationCandidate{{ID: "c1", AddressHash: "H1"}},
	})
	require.NoError(t, err)

	double, err := engine.Match(context.Background(), "tenant-1", Input{
		Candidates: []models.LocationCandidate{{ID: "c1", AddressHash: "H1"}, {ID: "c2", AddressHash: "H1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, single, double)
}

func TestMatch_Proximity(t *testing.T) {
	finder := &fakeFinder{
		nearby: []entitylink.NearbyLink{
			{
				EntityLink:     models.EntityLink{EntityType: models.EntityTypeJobsite, EntityID: "js-2", Label: "Dockside"},
				DistanceMeters: 150,
			},
		},
	}
	engine := NewEngine(noopLogger(), finder, DefaultConfig())

	matches, err := engine.Match(context.Background(), "tenant-1", Input{
		Candidates: []models.LocationCandidate{{Latitude: ptr(49.2827), Longitude: ptr(-123.1207)}},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchTypeProximity, matches[0].MatchType)
	assert.InDelta(t, 0.7, matches[0].Confidence, 1e-9)
	require.NotNil(t, matches[0].DistanceMeters)
	assert.Equal(t, 150.0, *matches[0].DistanceMeters)
}

func TestMatch_ProximityConfidenceMonotone(t *testing.T) {
	engine := NewEngine(noopLogger(), &fakeFinder{}, DefaultConfig())

	prev := 1.0
	for _, d := range []float64{0, 100, 250, 499, 500, 600} {
		finder := &fakeFinder{nearby: []entitylink.NearbyLink{{
			EntityLink:     models.EntityLink{EntityType: models.EntityTypeJobsite, EntityID: "js-1"},
			DistanceMeters: d,
		}}}
		engine.finder = finder

		matches, err := engine.Match(context.Background(), "tenant-1", Input{
			Candidates: []models.LocationCandidate{{Latitude: ptr(0.0), Longitude: ptr(0.0)}},
		})
		require.NoError(t, err)

		if d >= 500 {
			assert.Empty(t, matches, "no match at/beyond the radius (d=%v)", d)
			continue
		}
		require.Len(t, matches, 1)
		assert.LessOrEqual(t, matches[0].Confidence, prev)
		prev = matches[0].Confidence
	}
}

func TestMatch_ContactOnly(t *testing.T) {
	finder := &fakeFinder{
		byContact: []models.EntityLink{
			{EntityType: models.EntityTypeCustomer, EntityID: "cust-1", Label: "Pat Crew", PhoneNormalized: "6045551234"},
		},
	}
	engine := NewEngine(noopLogger(), finder, DefaultConfig())

	matches, err := engine.Match(context.Background(), "tenant-1", Input{
		Candidates: []models.LocationCandidate{{FormattedAddress: "somewhere"}}, // no hash, no coords
		Contact:    models.Contact{Phone: "(604) 555-1234"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchTypeContactMatch, matches[0].MatchType)
	assert.Equal(t, 0.65, matches[0].Confidence)
	assert.Equal(t, "6045551234", finder.lastPhone, "phone is normalized before lookup")
}

func TestMatch_EntityDedupeKeepsStrongestStrategy(t *testing.T) {
	// same jobsite found by exact hash and by proximity: exact wins
	finder := &fakeFinder{
		byHash: map[string][]models.EntityLink{
			"H1": {{EntityType: models.EntityTypeJobsite, EntityID: "js-1", Label: "Harbour Site"}},
		},
		nearby: []entitylink.NearbyLink{{
			EntityLink:     models.EntityLink{EntityType: models.EntityTypeJobsite, EntityID: "js-1", Label: "Harbour Site"},
			DistanceMeters: 50,
		}},
	}
	engine := NewEngine(noopLogger(), finder, DefaultConfig())

	matches, err := engine.Match(context.Background(), "tenant-1", Input{
		Candidates: []models.LocationCandidate{{AddressHash: "H1", Latitude: ptr(49.0), Longitude: ptr(-123.0)}},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchTypeExactHash, matches[0].MatchType)
	assert.Equal(t, 1.0, matches[0].Confidence)
}

func TestMatch_CapAndOrdering(t *testing.T) {
	now := time.Now()
	finder := &fakeFinder{
		nearby: []entitylink.NearbyLink{
			{EntityLink: models.EntityLink{EntityType: models.EntityTypeJobsite, EntityID: "a", EntityCreatedAt: now}, DistanceMeters: 400},
			{EntityLink: models.EntityLink{EntityType: models.EntityTypeJobsite, EntityID: "b", EntityCreatedAt: now}, DistanceMeters: 100},
			{EntityLink: models.EntityLink{EntityType: models.EntityTypeJobsite, EntityID: "c", EntityCreatedAt: now}, DistanceMeters: 300},
			{EntityLink: models.EntityLink{EntityType: models.EntityTypeJobsite, EntityID: "d", EntityCreatedAt: now}, DistanceMeters: 200},
		},
	}
	engine := NewEngine(noopLogger(), finder, DefaultConfig())

	matches, err := engine.Match(context.Background(), "tenant-1", Input{
		Candidates: []models.LocationCandidate{{Latitude: ptr(0.0), Longitude: ptr(0.0)}},
	})
	require.NoError(t, err)
	require.Len(t, matches, 3, "results are capped")
	assert.Equal(t, []string{"b", "d", "c"}, []string{matches[0].EntityID, matches[1].EntityID, matches[2].EntityID})
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Confidence, matches[i].Confidence)
	}
}

func TestMatch_NoSignalsYieldsEmpty(t *testing.T) {
	engine := NewEngine(noopLogger(), &fakeFinder{}, DefaultConfig())

	matches, err := engine.Match(context.Background(), "tenant-1", Input{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}
