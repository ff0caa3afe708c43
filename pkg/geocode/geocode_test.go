package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewline/atlas/pkg/httpclient"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalize"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

const sampleResponse = `[
	{
		"display_name": "123, Main Street, Vancouver, British Columbia, V6B 1A1, Canada",
		"lat": "49.2827",
		"lon": "-123.1207",
		"importance": 0.72,
		"address": {
			"house_number": "123",
			"road": "Main Street",
			"city": "Vancouver",
			"state": "British Columbia",
			"postcode": "V6B 1A1",
			"country_code": "ca"
		}
	}
]`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *NominatimProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := httpclient.NewClient(httpclient.DefaultConfig(), noopLogger())
	return NewNominatimProvider(client, NominatimConfig{BaseURL: server.URL}, noopLogger())
}

func TestNominatimSearch(t *testing.T) {
	var gotQuery, gotCountry string
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCountry = r.URL.Query().Get("countrycodes")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	})

	candidates, err := provider.Search(context.Background(), "123 main st vancouver", "ca")
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "123 main st vancouver", gotQuery)
	assert.Equal(t, "ca", gotCountry)
	assert.Empty(t, c.ID, "search results are ephemeral")
	assert.Equal(t, models.CandidateSourceManualSearch, c.Source)
	assert.Equal(t, "nominatim", c.Provider)
	assert.Equal(t, 72.0, c.Confidence)
	require.NotNil(t, c.Latitude)
	assert.InDelta(t, 49.2827, *c.Latitude, 1e-6)
	assert.Equal(t, "123", c.Components["street_number"])
	assert.Equal(t, "Main Street", c.Components["street_name"])

	// the derived hash matches what the same address hashes to elsewhere
	want := normalize.Hash(normalize.CanonicalizeComponents(map[string]string{
		"street_number": "123",
		"street_name":   "Main Street",
		"city":          "Vancouver",
		"region":        "British Columbia",
		"postal_code":   "V6B 1A1",
	}))
	assert.Equal(t, want, c.AddressHash)
}

func TestNominatimSearch_EmptyResult(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	candidates, err := provider.Search(context.Background(), "nowhere at all", "")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestNominatimSearch_ProviderFailure(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := provider.Search(context.Background(), "123 main st", "")
	assert.Error(t, err)
}

type fakeCache struct {
	data map[string]string
	sets int
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", errors.New("miss")
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.data[key] = value
	f.sets++
	return nil
}

type countingProvider struct {
	calls int
	out   []models.LocationCandidate
	err   error
}

func (p *countingProvider) Search(_ context.Context, _, _ string) ([]models.LocationCandidate, error) {
	p.calls++
	return p.out, p.err
}

func TestCachedProvider_ReadThrough(t *testing.T) {
	inner := &countingProvider{out: []models.LocationCandidate{{FormattedAddress: "123 Main St", Source: models.CandidateSourceManualSearch}}}
	cache := &fakeCache{data: map[string]string{}}
	provider := NewCachedProvider(inner, cache, time.Minute, noopLogger())

	first, err := provider.Search(context.Background(), "123 main st", "ca")
	require.NoError(t, err)
	second, err := provider.Search(context.Background(), "123 Main St ", "CA")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second lookup is served from cache")
	assert.Equal(t, 1, cache.sets)
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	inner := &countingProvider{err: errors.New("provider down")}
	cache := &fakeCache{data: map[string]string{}}
	provider := NewCachedProvider(inner, cache, time.Minute, noopLogger())

	_, err := provider.Search(context.Background(), "123 main st", "")
	assert.Error(t, err)
	assert.Zero(t, cache.sets)
}
