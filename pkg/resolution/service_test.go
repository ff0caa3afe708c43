package resolution

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewline/atlas/pkg/diagnostics"
	"github.com/crewline/atlas/pkg/events"
	"github.com/crewline/atlas/pkg/matching"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalize"
	"github.com/crewline/atlas/pkg/proposal"
)

type fakeCandidates struct {
	byID     map[string]models.LocationCandidate
	listed   []models.LocationCandidate
	nextID   int
	listErr  error
	creates  int
}

func (f *fakeCandidates) Create(_ context.Context, tenantID string, c models.LocationCandidate) (*models.LocationCandidate, error) {
	f.nextID++
	f.creates++
	c.ID = fmt.Sprintf("stored-%d", f.nextID)
	c.TenantID = tenantID
	if f.byID == nil {
		f.byID = map[string]models.LocationCandidate{}
	}
	f.byID[c.ID] = c
	return &c, nil
}

func (f *fakeCandidates) Get(_ context.Context, _, id string) (*models.LocationCandidate, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCandidates) ListByIngestion(_ context.Context, _, _, _ string) ([]models.LocationCandidate, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

type fakeOutcomes struct {
	rows map[string]models.ResolutionOutcome
}

func outcomeKey(tenantID string, o models.ResolutionOutcome) string {
	return tenantID + "|" + o.IngestionID + "|" + o.PhotoBundleID
}

func (f *fakeOutcomes) Get(_ context.Context, tenantID, ingestionID, photoBundleID string) (*models.ResolutionOutcome, error) {
	o, ok := f.rows[tenantID+"|"+ingestionID+"|"+photoBundleID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f *fakeOutcomes) ListByIngestion(_ context.Context, tenantID, ingestionID string) ([]models.ResolutionOutcome, error) {
	out := []models.ResolutionOutcome{}
	for _, o := range f.rows {
		if o.IngestionID == ingestionID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOutcomes) Upsert(_ context.Context, tenantID string, outcome models.ResolutionOutcome) (*models.ResolutionOutcome, error) {
	if f.rows == nil {
		f.rows = map[string]models.ResolutionOutcome{}
	}
	outcome.TenantID = tenantID
	f.rows[outcomeKey(tenantID, outcome)] = outcome
	return &outcome, nil
}

type fakeEntities struct {
	links map[string]models.EntityLink
}

func (f *fakeEntities) Get(_ context.Context, _ string, entityType models.LinkedEntityType, entityID string) (*models.EntityLink, error) {
	l, ok := f.links[string(entityType)+":"+entityID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

type fakeMatcher struct {
	matches []models.EntityMatch
	input   matching.Input
}

func (f *fakeMatcher) Match(_ context.Context, _ string, input matching.Input) ([]models.EntityMatch, error) {
	f.input = input
	return f.matches, nil
}

type fakeGeocoder struct {
	out []models.LocationCandidate
	err error
}

func (f *fakeGeocoder) Search(_ context.Context, _, _ string) ([]models.LocationCandidate, error) {
	return f.out, f.err
}

type capturingPublisher struct {
	keys    []string
	headers []map[string]string
}

func (p *capturingPublisher) Publish(_ context.Context, key string, _ any, headers map[string]string) error {
	p.keys = append(p.keys, key)
	p.headers = append(p.headers, headers)
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fixture struct {
	candidates *fakeCandidates
	outcomes   *fakeOutcomes
	entities   *fakeEntities
	matcher    *fakeMatcher
	geocoder   *fakeGeocoder
	publisher  *capturingPublisher
	recorder   *diagnostics.Recorder
	service    *Service
}

func newFixture() *fixture {
	f := &fixture{
		candidates: &fakeCandidates{byID: map[string]models.LocationCandidate{}},
		outcomes:   &fakeOutcomes{rows: map[string]models.ResolutionOutcome{}},
		entities:   &fakeEntities{links: map[string]models.EntityLink{}},
		matcher:    &fakeMatcher{},
		geocoder:   &fakeGeocoder{},
		publisher:  &capturingPublisher{},
		recorder:   diagnostics.NewRecorder(16),
	}
	f.service = NewService(
		noopLogger(),
		f.candidates,
		f.outcomes,
		f.entities,
		f.matcher,
		proposal.NewSynthesizer(proposal.DefaultConfig()),
		f.geocoder,
		events.NewEmitter(f.publisher, noopLogger()),
		f.recorder,
	)
	return f
}

func TestResolve_ZeroCandidates(t *testing.T) {
	f := newFixture()

	resp, err := f.service.Resolve(context.Background(), "tenant-1", models.ResolveRequest{IngestionID: "ing-1"})
	require.NoError(t, err)

	assert.Empty(t, resp.Candidates)
	assert.Empty(t, resp.Matches)
	assert.Empty(t, resp.Proposals)
	require.NotEmpty(t, resp.Reasoning, "zero-candidate resolve carries an explanatory note")
	assert.Contains(t, resp.Reasoning[0], "No location candidates")
	assert.Nil(t, resp.Outcome)
}

func TestResolve_PassesContactToMatcher(t *testing.T) {
	f := newFixture()

	_, err := f.service.Resolve(context.Background(), "tenant-1", models.ResolveRequest{
		IngestionID:  "ing-1",
		ContactPhone: "604-555-1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "604-555-1234", f.matcher.input.Contact.Phone)
}

func TestResolve_ReflectsTerminalOutcome(t *testing.T) {
	f := newFixture()
	_, err := f.service.Skip(context.Background(), "tenant-1", "user-1", models.SkipRequest{IngestionID: "ing-1"})
	require.NoError(t, err)

	resp, err := f.service.Resolve(context.Background(), "tenant-1", models.ResolveRequest{IngestionID: "ing-1"})
	require.NoError(t, err)

	require.NotNil(t, resp.Outcome)
	assert.Equal(t, models.ResolutionSkipped, resp.Outcome.Status)

	found := false
	for _, r := range resp.Reasoning {
		if strings.Contains(r, "already recorded") {
			found = true
		}
	}
	assert.True(t, found, "reasoning mentions the existing terminal decision")
}

func TestResolve_UsableMatchSuppressesProposals(t *testing.T) {
	f := newFixture()
	f.candidates.listed = []models.LocationCandidate{{ID: "c1", FormattedAddress: "123 Main St", AddressHash: "H1"}}
	f.matcher.matches = []models.EntityMatch{{
		EntityType: models.EntityTypeJobsite, EntityID: "js-1",
		MatchType: models.MatchTypeExactHash, Confidence: 1.0, Label: "Harbour Site",
	}}

	resp, err := f.service.Resolve(context.Background(), "tenant-1", models.ResolveRequest{IngestionID: "ing-1"})
	require.NoError(t, err)
	assert.Len(t, resp.Matches, 1)
	assert.Empty(t, resp.Proposals)
}

func TestSearch_ProviderErrorDegradesToEmpty(t *testing.T) {
	f := newFixture()
	f.geocoder.err = errors.New("provider timeout")

	resp, err := f.service.Search(context.Background(), "tenant-1", models.SearchRequest{Query: "123 main st"})
	require.NoError(t, err, "provider failure must not fail the search")
	assert.Empty(t, resp.Candidates)
}

func TestConfirm_RequiresCandidateOrOverride(t *testing.T) {
	f := newFixture()

	_, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{IngestionID: "ing-1"})
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestConfirm_RejectsBothCandidateAndOverride(t *testing.T) {
	f := newFixture()

	_, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{
		IngestionID:       "ing-1",
		CandidateID:       "c1",
		ManualAddressText: "123 Main St",
	})
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestConfirm_EntityTargetFieldsGoTogether(t *testing.T) {
	f := newFixture()

	_, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{
		IngestionID: "ing-1",
		CandidateID: "c1",
		EntityType:  "jobsite",
	})
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestConfirm_UnknownCandidate(t *testing.T) {
	f := newFixture()

	_, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{
		IngestionID: "ing-1",
		CandidateID: "nope",
	})
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestConfirm_RejectsCandidateFromOtherIngestion(t *testing.T) {
	f := newFixture()
	f.candidates.byID["c1"] = models.LocationCandidate{ID: "c1", IngestionID: "ing-other"}

	_, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{
		IngestionID: "ing-1",
		CandidateID: "c1",
	})
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestConfirm_RejectsCandidateFromOtherPhotoBundle(t *testing.T) {
	f := newFixture()
	f.candidates.byID["c1"] = models.LocationCandidate{ID: "c1", IngestionID: "ing-1", PhotoBundleID: "pb-other"}

	_, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{
		IngestionID:   "ing-1",
		PhotoBundleID: "pb-1",
		CandidateID:   "c1",
	})
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestConfirm_WithStoredCandidateAndEntity(t *testing.T) {
	f := newFixture()
	f.candidates.byID["c1"] = models.LocationCandidate{ID: "c1", IngestionID: "ing-1"}
	f.entities.links["jobsite:js-1"] = models.EntityLink{EntityType: models.EntityTypeJobsite, EntityID: "js-1"}

	resp, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{
		IngestionID: "ing-1",
		CandidateID: "c1",
		EntityType:  "jobsite",
		EntityID:    "js-1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionConfirmed, resp.Outcome.Status)
	require.NotNil(t, resp.Outcome.CandidateID)
	assert.Equal(t, "c1", *resp.Outcome.CandidateID)
	require.NotNil(t, resp.Outcome.EntityID)
	assert.Equal(t, "js-1", *resp.Outcome.EntityID)
	require.NotNil(t, resp.Outcome.ResolvedBy)
	assert.Equal(t, "user-1", *resp.Outcome.ResolvedBy)

	require.Len(t, f.publisher.headers, 1)
	assert.Equal(t, "resolution.confirmed", f.publisher.headers[0]["event_type"])
}

func TestConfirm_UnknownEntityTarget(t *testing.T) {
	f := newFixture()
	f.candidates.byID["c1"] = models.LocationCandidate{ID: "c1", IngestionID: "ing-1"}

	_, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{
		IngestionID: "ing-1",
		CandidateID: "c1",
		EntityType:  "jobsite",
		EntityID:    "ghost",
	})
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestConfirm_ManualOverrideStandalone(t *testing.T) {
	// manual address + coordinates, no pre-existing candidate, no entity
	// target: succeeds with a null entity link
	f := newFixture()
	lat, lng := 49.2827, -123.1207

	resp, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{
		IngestionID:       "ing-1",
		ManualAddressText: "123 Main St, Vancouver",
		ManualLatitude:    &lat,
		ManualLongitude:   &lng,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionConfirmed, resp.Outcome.Status)
	assert.Nil(t, resp.Outcome.EntityID)
	require.NotNil(t, resp.Outcome.ManualAddressText)
	assert.Equal(t, "123 Main St, Vancouver", *resp.Outcome.ManualAddressText)

	// the override is persisted as a stored candidate carrying the hash
	require.NotNil(t, resp.Outcome.CandidateID)
	stored := f.candidates.byID[*resp.Outcome.CandidateID]
	assert.Equal(t, models.CandidateSourceStored, stored.Source)
	assert.Equal(t, normalize.HashAddress("123 Main St, Vancouver"), stored.AddressHash)
}

func TestConfirm_Idempotent(t *testing.T) {
	f := newFixture()
	f.candidates.byID["c1"] = models.LocationCandidate{ID: "c1", IngestionID: "ing-1"}

	req := models.ConfirmRequest{IngestionID: "ing-1", CandidateID: "c1"}
	_, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", req)
	require.NoError(t, err)
	_, err = f.service.Confirm(context.Background(), "tenant-1", "user-1", req)
	require.NoError(t, err)

	assert.Len(t, f.outcomes.rows, 1, "identical confirmations rewrite the same row")
}

func TestConfirm_LastWriteWins(t *testing.T) {
	f := newFixture()
	f.candidates.byID["c1"] = models.LocationCandidate{ID: "c1", IngestionID: "ing-1"}
	f.candidates.byID["c2"] = models.LocationCandidate{ID: "c2", IngestionID: "ing-1"}

	_, err := f.service.Confirm(context.Background(), "tenant-1", "user-1", models.ConfirmRequest{IngestionID: "ing-1", CandidateID: "c1"})
	require.NoError(t, err)
	resp, err := f.service.Confirm(context.Background(), "tenant-1", "user-2", models.ConfirmRequest{IngestionID: "ing-1", CandidateID: "c2"})
	require.NoError(t, err)

	assert.Len(t, f.outcomes.rows, 1)
	assert.Equal(t, "c2", *resp.Outcome.CandidateID)
}

func TestDeny_RetainsCandidate(t *testing.T) {
	f := newFixture()
	f.candidates.byID["c1"] = models.LocationCandidate{ID: "c1", IngestionID: "ing-1"}

	resp, err := f.service.Deny(context.Background(), "tenant-1", "user-1", models.DenyRequest{
		IngestionID: "ing-1",
		CandidateID: "c1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionDenied, resp.Outcome.Status)
	_, stillThere := f.candidates.byID["c1"]
	assert.True(t, stillThere, "denied candidates stay for audit")
	require.Len(t, f.publisher.headers, 1)
	assert.Equal(t, "resolution.denied", f.publisher.headers[0]["event_type"])
}

func TestDeny_UnknownCandidate(t *testing.T) {
	f := newFixture()

	_, err := f.service.Deny(context.Background(), "tenant-1", "user-1", models.DenyRequest{
		IngestionID: "ing-1",
		CandidateID: "ghost",
	})
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestDeny_RejectsCandidateFromOtherIngestion(t *testing.T) {
	f := newFixture()
	f.candidates.byID["c1"] = models.LocationCandidate{ID: "c1", IngestionID: "ing-other"}

	_, err := f.service.Deny(context.Background(), "tenant-1", "user-1", models.DenyRequest{
		IngestionID: "ing-1",
		CandidateID: "c1",
	})
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestSkip(t *testing.T) {
	f := newFixture()

	resp, err := f.service.Skip(context.Background(), "tenant-1", "user-1", models.SkipRequest{IngestionID: "ing-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionSkipped, resp.Outcome.Status)
	require.Len(t, f.publisher.headers, 1)
	assert.Equal(t, "resolution.skipped", f.publisher.headers[0]["event_type"])
}

func TestStatus(t *testing.T) {
	f := newFixture()
	f.candidates.listed = []models.LocationCandidate{{ID: "c1", IngestionID: "ing-1"}}
	_, err := f.service.Skip(context.Background(), "tenant-1", "user-1", models.SkipRequest{IngestionID: "ing-1"})
	require.NoError(t, err)

	resp, err := f.service.Status(context.Background(), "tenant-1", "ing-1")
	require.NoError(t, err)
	assert.Len(t, resp.Outcomes, 1)
	assert.Len(t, resp.Candidates, 1)
}
