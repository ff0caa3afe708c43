// Package resolution orchestrates the per-ingestion location decision: it
// assembles candidates, matches and proposals for the reviewer, and drives
// the pending → confirmed/denied/skipped state machine through atomic outcome
// writes.
package resolution

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/crewline/atlas/pkg/diagnostics"
	"github.com/crewline/atlas/pkg/events"
	"github.com/crewline/atlas/pkg/geocode"
	"github.com/crewline/atlas/pkg/matching"
	"github.com/crewline/atlas/pkg/metrics"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalize"
	"github.com/crewline/atlas/pkg/tracing"
)

// CandidateStore is the slice of the candidate repository the service needs
type CandidateStore interface {
	Create(ctx context.Context, tenantID string, c models.LocationCandidate) (*models.LocationCandidate, error)
	Get(ctx context.Context, tenantID, id string) (*models.LocationCandidate, error)
	ListByIngestion(ctx context.Context, tenantID, ingestionID, photoBundleID string) ([]models.LocationCandidate, error)
}

// OutcomeStore is the slice of the outcome repository the service needs
type OutcomeStore interface {
	Get(ctx context.Context, tenantID, ingestionID, photoBundleID string) (*models.ResolutionOutcome, error)
	ListByIngestion(ctx context.Context, tenantID, ingestionID string) ([]models.ResolutionOutcome, error)
	Upsert(ctx context.Context, tenantID string, outcome models.ResolutionOutcome) (*models.ResolutionOutcome, error)
}

// EntityGetter verifies an entity target exists in the projection
type EntityGetter interface {
	Get(ctx context.Context, tenantID string, entityType models.LinkedEntityType, entityID string) (*models.EntityLink, error)
}

// Matcher runs the matching strategies for a tenant
type Matcher interface {
	Match(ctx context.Context, tenantID string, input matching.Input) ([]models.EntityMatch, error)
}

// Proposer drafts proposals when matches are weak
type Proposer interface {
	Propose(candidates []models.LocationCandidate, matches []models.EntityMatch, contact models.Contact) []models.DraftProposal
}

// Service implements the four resolution operations plus skip
type Service struct {
	logger     ectologger.Logger
	candidates CandidateStore
	outcomes   OutcomeStore
	entities   EntityGetter
	matcher    Matcher
	proposer   Proposer
	geocoder   geocode.Provider
	emitter    *events.Emitter
	recorder   *diagnostics.Recorder
}

// NewService creates a new resolution service
func NewService(
	logger ectologger.Logger,
	candidates CandidateStore,
	outcomes OutcomeStore,
	entities EntityGetter,
	matcher Matcher,
	proposer Proposer,
	geocoder geocode.Provider,
	emitter *events.Emitter,
	recorder *diagnostics.Recorder,
) *Service {
	return &Service{
		logger:     logger,
		candidates: candidates,
		outcomes:   outcomes,
		entities:   entities,
		matcher:    matcher,
		proposer:   proposer,
		geocoder:   geocoder,
		emitter:    emitter,
		recorder:   recorder,
	}
}

// Resolve is read-only: it runs matching and proposal synthesis against
// whatever candidates already exist for the ingestion and reports the current
// outcome. It never fails because of missing candidates — zero candidates is
// a normal, displayable state.
func (s *Service) Resolve(ctx context.Context, tenantID string, req models.ResolveRequest) (*models.ResolveResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.Resolve")
	defer span.End()

	start := time.Now()
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"ingestion_id": req.IngestionID,
	})

	candidates, err := s.candidates.ListByIngestion(ctx, tenantID, req.IngestionID, req.PhotoBundleID)
	if err != nil {
		return nil, err
	}

	contact := models.Contact{Phone: req.ContactPhone, Email: req.ContactEmail}
	matches, err := s.matcher.Match(ctx, tenantID, matching.Input{
		Candidates: candidates,
		Contact:    contact,
	})
	if err != nil {
		return nil, err
	}

	outcome, err := s.outcomes.Get(ctx, tenantID, req.IngestionID, req.PhotoBundleID)
	if err != nil {
		return nil, err
	}

	proposals := s.proposer.Propose(candidates, matches, contact)
	reasoning := buildReasoning(candidates, matches, proposals, outcome)

	log.WithFields(map[string]any{
		"candidates": len(candidates),
		"matches":    len(matches),
		"proposals":  len(proposals),
	}).Info("Resolved ingestion")

	metrics.RecordResolve(tenantID, time.Since(start).Seconds())
	s.recorder.Record(diagnostics.Entry{
		TenantID:      tenantID,
		IngestionID:   req.IngestionID,
		PhotoBundleID: req.PhotoBundleID,
		Operation:     "resolve",
		Candidates:    len(candidates),
		Matches:       len(matches),
		Proposals:     len(proposals),
		Duration:      time.Since(start),
		At:            time.Now().UTC(),
	})

	return &models.ResolveResponse{
		Candidates: candidates,
		Matches:    matches,
		Proposals:  proposals,
		Reasoning:  reasoning,
		Outcome:    outcome,
	}, nil
}

// Search is the manual fallback: a synchronous pass-through to the geocoding
// provider. Provider errors degrade to an empty candidate list so the human
// can retry with a different query.
func (s *Service) Search(ctx context.Context, tenantID string, req models.SearchRequest) (*models.SearchResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.Search")
	defer span.End()

	start := time.Now()
	candidates, err := s.geocoder.Search(ctx, req.Query, req.CountryHint)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"query":     req.Query,
		}).Warn("Geocoder search failed, returning empty candidate list")
		candidates = []models.LocationCandidate{}
	}

	s.recorder.Record(diagnostics.Entry{
		TenantID:   tenantID,
		Operation:  "search",
		Candidates: len(candidates),
		Duration:   time.Since(start),
		At:         time.Now().UTC(),
	})

	return &models.SearchResponse{Candidates: candidates}, nil
}

// Confirm records the confirmed terminal state: a stored candidate or a
// manual override, optionally linked to an entity target. Manual overrides
// are persisted as stored candidates first so their hash participates in
// future exact matching. Submitting an identical confirmation twice rewrites
// the same row.
func (s *Service) Confirm(ctx context.Context, tenantID, userID string, req models.ConfirmRequest) (*models.OutcomeResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.Confirm")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"ingestion_id": req.IngestionID,
	})

	hasCandidate := req.CandidateID != ""
	hasOverride := req.ManualAddressText != ""
	if !hasCandidate && !hasOverride {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "confirm requires a candidate_id or a manual_address_text override")
	}
	if hasCandidate && hasOverride {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "confirm accepts a candidate_id or a manual override, not both")
	}
	if (req.EntityType == "") != (req.EntityID == "") {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "entity_type and entity_id must be supplied together")
	}

	outcome := models.ResolutionOutcome{
		IngestionID:   req.IngestionID,
		PhotoBundleID: req.PhotoBundleID,
		Status:        models.ResolutionConfirmed,
	}

	if hasCandidate {
		cand, err := s.candidates.Get(ctx, tenantID, req.CandidateID)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "candidate not found")
		}
		if cand.IngestionID != req.IngestionID || cand.PhotoBundleID != req.PhotoBundleID {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, "candidate belongs to a different ingestion")
		}
		outcome.CandidateID = &cand.ID
	} else {
		stored, err := s.candidates.Create(ctx, tenantID, models.LocationCandidate{
			IngestionID:      req.IngestionID,
			PhotoBundleID:    req.PhotoBundleID,
			Source:           models.CandidateSourceStored,
			FormattedAddress: req.ManualAddressText,
			Latitude:         req.ManualLatitude,
			Longitude:        req.ManualLongitude,
			Confidence:       100, // human-entered
			AddressHash:      normalize.HashAddress(req.ManualAddressText),
		})
		if err != nil {
			return nil, err
		}
		outcome.CandidateID = &stored.ID
		outcome.ManualAddressText = &req.ManualAddressText
		outcome.ManualLatitude = req.ManualLatitude
		outcome.ManualLongitude = req.ManualLongitude
	}

	if req.EntityType != "" {
		entityType := models.LinkedEntityType(req.EntityType)
		link, err := s.entities.Get(ctx, tenantID, entityType, req.EntityID)
		if err != nil {
			return nil, err
		}
		if link == nil {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "entity target not found")
		}
		outcome.EntityType = &entityType
		entityID := req.EntityID
		outcome.EntityID = &entityID
	}

	stored, err := s.writeOutcome(ctx, tenantID, userID, outcome)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{"status": stored.Status}).Info("Confirmed resolution")
	return &models.OutcomeResponse{Outcome: *stored}, nil
}

// Deny flags the top candidate as wrong. The candidate row is retained for
// audit; only the outcome status changes.
func (s *Service) Deny(ctx context.Context, tenantID, userID string, req models.DenyRequest) (*models.OutcomeResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.Deny")
	defer span.End()

	cand, err := s.candidates.Get(ctx, tenantID, req.CandidateID)
	if err != nil {
		return nil, err
	}
	if cand == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "candidate not found")
	}
	if cand.IngestionID != req.IngestionID || cand.PhotoBundleID != req.PhotoBundleID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "candidate belongs to a different ingestion")
	}

	stored, err := s.writeOutcome(ctx, tenantID, userID, models.ResolutionOutcome{
		IngestionID:   req.IngestionID,
		PhotoBundleID: req.PhotoBundleID,
		Status:        models.ResolutionDenied,
		CandidateID:   &cand.ID,
	})
	if err != nil {
		return nil, err
	}

	return &models.OutcomeResponse{Outcome: *stored}, nil
}

// Skip marks the ingestion as explicitly skipped so it stops surfacing as
// unresolved. Nothing else is persisted.
func (s *Service) Skip(ctx context.Context, tenantID, userID string, req models.SkipRequest) (*models.OutcomeResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.Skip")
	defer span.End()

	stored, err := s.writeOutcome(ctx, tenantID, userID, models.ResolutionOutcome{
		IngestionID:   req.IngestionID,
		PhotoBundleID: req.PhotoBundleID,
		Status:        models.ResolutionSkipped,
	})
	if err != nil {
		return nil, err
	}

	return &models.OutcomeResponse{Outcome: *stored}, nil
}

// Status reports every outcome recorded for an ingestion plus the candidates
// on file
func (s *Service) Status(ctx context.Context, tenantID, ingestionID string) (*models.IngestionResolutionResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.Status")
	defer span.End()

	outcomes, err := s.outcomes.ListByIngestion(ctx, tenantID, ingestionID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.candidates.ListByIngestion(ctx, tenantID, ingestionID, "")
	if err != nil {
		return nil, err
	}

	return &models.IngestionResolutionResponse{
		Outcomes:   outcomes,
		Candidates: candidates,
	}, nil
}

// writeOutcome stamps the decision metadata and performs the atomic upsert
// that serializes concurrent writers on the outcome key, then emits the
// lifecycle event
func (s *Service) writeOutcome(ctx context.Context, tenantID, userID string, outcome models.ResolutionOutcome) (*models.ResolutionOutcome, error) {
	now := time.Now().UTC()
	outcome.ResolvedAt = &now
	if userID != "" {
		outcome.ResolvedBy = &userID
	}

	stored, err := s.outcomes.Upsert(ctx, tenantID, outcome)
	if err != nil {
		return nil, err
	}

	metrics.RecordResolution(tenantID, string(stored.Status))
	s.emitter.EmitResolution(ctx, stored)
	s.recorder.Record(diagnostics.Entry{
		TenantID:      tenantID,
		IngestionID:   stored.IngestionID,
		PhotoBundleID: stored.PhotoBundleID,
		Operation:     string(stored.Status),
		Status:        string(stored.Status),
		At:            now,
	})

	return stored, nil
}

// buildReasoning explains the resolve result to the reviewer in plain terms
func buildReasoning(candidates []models.LocationCandidate, matches []models.EntityMatch, proposals []models.DraftProposal, outcome *models.ResolutionOutcome) []string {
	reasoning := []string{}

	if len(candidates) == 0 {
		reasoning = append(reasoning, "No location candidates captured for this ingestion; confirming with a manual address will store the location for future matching.")
	}

	hash, coords := 0, 0
	for _, c := range candidates {
		if c.AddressHash != "" {
			hash++
		}
		if c.HasCoordinates() {
			coords++
		}
	}
	if len(candidates) > 0 && hash == 0 {
		reasoning = append(reasoning, "No candidate carries a normalizable address; matching fell back to proximity only.")
	}
	if len(candidates) > 0 && coords == 0 && hash == 0 {
		reasoning = append(reasoning, "Candidates carry neither addresses nor coordinates; only contact matching could run.")
	}

	switch {
	case len(matches) == 0 && len(proposals) == 0:
		reasoning = append(reasoning, "No existing entity matched and nothing could be suggested; this location can still be confirmed standalone.")
	case len(matches) == 0:
		reasoning = append(reasoning, "No existing entity matched; review the drafted proposals.")
	case matches[0].MatchType == models.MatchTypeExactHash:
		reasoning = append(reasoning, "An entity shares this exact normalized address.")
	}

	if outcome != nil && outcome.Status.IsTerminal() {
		reasoning = append(reasoning, "A terminal decision ("+string(outcome.Status)+") is already recorded for this ingestion; a new confirmation would supersede it.")
	}

	return reasoning
}
