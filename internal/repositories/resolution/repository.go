// Package resolution persists resolution outcomes. One row exists per
// (tenant_id, ingestion_id, photo_bundle_id); terminal writes go through a
// single atomic upsert so concurrent confirms never leave two conflicting
// rows — last write wins.
package resolution

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/crewline/atlas/pkg/database"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/tracing"
)

var columns = []string{
	"id", "tenant_id", "ingestion_id", "photo_bundle_id", "status",
	"candidate_id", "manual_address_text", "manual_latitude", "manual_longitude",
	"entity_type", "entity_id", "resolved_by", "resolved_at",
	"created_at", "updated_at",
}

// Repository handles resolution outcome persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new resolution outcome repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the outcome for an ingestion/photo-bundle key. Returns nil
// when no decision has been recorded yet.
func (r *Repository) Get(ctx context.Context, tenantID, ingestionID, photoBundleID string) (*models.ResolutionOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolution_outcomes")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("ingestion_id", ingestionID),
		sb.Equal("photo_bundle_id", photoBundleID),
	)

	query, args := sb.Build()
	var outcome models.ResolutionOutcome
	if err := r.db.GetContext(ctx, &outcome, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get resolution outcome")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get resolution outcome")
	}

	return &outcome, nil
}

// ListByIngestion retrieves every outcome recorded for an ingestion across
// its photo bundles
func (r *Repository) ListByIngestion(ctx context.Context, tenantID, ingestionID string) ([]models.ResolutionOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.ListByIngestion")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolution_outcomes")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("ingestion_id", ingestionID),
	)
	sb.OrderBy("photo_bundle_id").Asc()

	query, args := sb.Build()
	outcomes := []models.ResolutionOutcome{}
	if err := r.db.SelectContext(ctx, &outcomes, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list resolution outcomes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list resolution outcomes")
	}

	return outcomes, nil
}

// Upsert writes the outcome for its (tenant, ingestion, photo-bundle) key in
// one atomic statement. An existing row is overwritten — a later confirmation
// supersedes an earlier one. Returns the stored row.
func (r *Repository) Upsert(ctx context.Context, tenantID string, outcome models.ResolutionOutcome) (*models.ResolutionOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":       "Upsert",
		"tenant_id":    tenantID,
		"ingestion_id": outcome.IngestionID,
		"status":       outcome.Status,
	})

	now := time.Now().UTC()
	outcome.ID = uuid.New().String()
	outcome.TenantID = tenantID
	outcome.CreatedAt = now
	outcome.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("resolution_outcomes")
	sb.Cols(columns...)
	sb.Values(outcome.ID, outcome.TenantID, outcome.IngestionID, outcome.PhotoBundleID, outcome.Status,
		outcome.CandidateID, outcome.ManualAddressText, outcome.ManualLatitude, outcome.ManualLongitude,
		outcome.EntityType, outcome.EntityID, outcome.ResolvedBy, outcome.ResolvedAt,
		outcome.CreatedAt, outcome.UpdatedAt)

	query, args := sb.Build()
	query += ` ON CONFLICT (tenant_id, ingestion_id, photo_bundle_id) DO UPDATE SET
		status = EXCLUDED.status,
		candidate_id = EXCLUDED.candidate_id,
		manual_address_text = EXCLUDED.manual_address_text,
		manual_latitude = EXCLUDED.manual_latitude,
		manual_longitude = EXCLUDED.manual_longitude,
		entity_type = EXCLUDED.entity_type,
		entity_id = EXCLUDED.entity_id,
		resolved_by = EXCLUDED.resolved_by,
		resolved_at = EXCLUDED.resolved_at,
		updated_at = EXCLUDED.updated_at
		RETURNING id, tenant_id, ingestion_id, photo_bundle_id, status,
			candidate_id, manual_address_text, manual_latitude, manual_longitude,
			entity_type, entity_id, resolved_by, resolved_at, created_at, updated_at`

	var stored models.ResolutionOutcome
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&stored); err != nil {
		log.WithError(err).Error("Failed to upsert resolution outcome")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert resolution outcome")
	}

	log.Debug("Upserted resolution outcome")
	return &stored, nil
}
