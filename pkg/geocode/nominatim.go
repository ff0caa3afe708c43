package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/crewline/atlas/pkg/httpclient"
	"github.com/crewline/atlas/pkg/metrics"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalize"
	"github.com/crewline/atlas/pkg/tracing"
)

// NominatimConfig holds configuration for a Nominatim-compatible search API
type NominatimConfig struct {
	BaseURL      string
	ProviderName string // provenance recorded on candidates (default: "nominatim")
	ResultLimit  int    // max results per search (default: 5)
	Timeout      time.Duration
}

// NominatimProvider adapts a Nominatim-compatible JSON /search endpoint to
// the Provider contract
type NominatimProvider struct {
	client *httpclient.Client
	config NominatimConfig
	logger ectologger.Logger
}

// NewNominatimProvider creates a new Nominatim provider adapter
func NewNominatimProvider(client *httpclient.Client, config NominatimConfig, logger ectologger.Logger) *NominatimProvider {
	if config.ProviderName == "" {
		config.ProviderName = "nominatim"
	}
	if config.ResultLimit <= 0 {
		config.ResultLimit = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &NominatimProvider{
		client: client,
		config: config,
		logger: logger,
	}
}

// nominatimResult is one entry of the provider's jsonv2 search response
type nominatimResult struct {
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Importance  float64           `json:"importance"`
	Address     map[string]string `json:"address"`
}

// componentKeys maps provider address keys onto our component names
var componentKeys = map[string]string{
	"house_number": "street_number",
	"road":         "street_name",
	"city":         "city",
	"town":         "city",
	"village":      "city",
	"state":        "region",
	"postcode":     "postal_code",
}

// Search queries the provider and shapes results into ephemeral candidates
func (p *NominatimProvider) Search(ctx context.Context, query, countryHint string) ([]models.LocationCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "geocode.NominatimProvider.Search")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(p.config.ResultLimit))
	if countryHint != "" {
		params.Set("countrycodes", countryHint)
	}

	start := time.Now()
	req, err := http.NewRequest(http.MethodGet, p.config.BaseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		metrics.RecordGeocode("error", time.Since(start).Seconds())
		return nil, fmt.Errorf("geocode search failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordGeocode("error", resp.Duration.Seconds())
		return nil, fmt.Errorf("geocode search returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.Unmarshal(resp.Body, &results); err != nil {
		metrics.RecordGeocode("error", resp.Duration.Seconds())
		return nil, fmt.Errorf("failed to parse geocode response: %w", err)
	}

	candidates := make([]models.LocationCandidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, p.toCandidate(r))
	}

	status := "ok"
	if len(candidates) == 0 {
		status = "empty"
	}
	metrics.RecordGeocode(status, resp.Duration.Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"query":   query,
		"results": len(candidates),
	}).Debug("Geocode search complete")

	return candidates, nil
}

// toCandidate shapes one provider result into an ephemeral candidate. The
// address hash is derived immediately so a confirmed search result can be
// exact-matched later.
func (p *NominatimProvider) toCandidate(r nominatimResult) models.LocationCandidate {
	c := models.LocationCandidate{
		Source:           models.CandidateSourceManualSearch,
		Provider:         p.config.ProviderName,
		FormattedAddress: r.DisplayName,
		Confidence:       r.Importance * 100,
	}

	if lat, err := strconv.ParseFloat(r.Lat, 64); err == nil {
		if lng, err := strconv.ParseFloat(r.Lon, 64); err == nil {
			c.Latitude = &lat
			c.Longitude = &lng
		}
	}

	if len(r.Address) > 0 {
		components := models.AddressComponents{}
		for from, to := range componentKeys {
			if v, ok := r.Address[from]; ok && v != "" {
				components[to] = v
			}
		}
		c.Components = components
		c.AddressHash = normalize.Hash(normalize.CanonicalizeComponents(components))
	}
	if c.AddressHash == "" {
		c.AddressHash = normalize.HashAddress(r.DisplayName)
	}

	return c
}
