// Package candidate persists location candidates captured for an ingestion.
// Candidates are insert-only: re-resolution creates new rows, nothing mutates
// an existing row.
package candidate

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
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
	"id", "tenant_id", "ingestion_id", "photo_bundle_id", "source", "provider",
	"formatted_address", "latitude", "longitude", "confidence", "address_hash",
	"components", "created_at",
}

// Repository handles location candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts a batch of candidates for an ingestion. Rows that
// duplicate an existing (ingestion, source, address_hash) tuple are skipped so
// capture retries stay idempotent. Returns the stored row for every submitted
// candidate; duplicates resolve to the row already on file.
func (r *Repository) CreateBatch(ctx context.Context, tenantID string, candidates []models.LocationCandidate) ([]models.LocationCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.CreateBatch")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":    "CreateBatch",
		"tenant_id": tenantID,
		"count":     len(candidates),
	})

	if len(candidates) == 0 {
		return []models.LocationCandidate{}, nil
	}

	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("location_candidates")
	sb.Cols(columns...)
	for i := range candidates {
		c := &candidates[i]
		c.ID = uuid.New().String()
		c.TenantID = tenantID
		c.CreatedAt = now
		sb.Values(c.ID, c.TenantID, c.IngestionID, c.PhotoBundleID, c.Source, c.Provider,
			c.FormattedAddress, c.Latitude, c.Longitude, c.Confidence, c.AddressHash,
			c.Components, c.CreatedAt)
	}

	query, args := sb.Build()
	query += " ON CONFLICT DO NOTHING"

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		log.WithError(err).Error("Failed to begin transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert candidates")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to insert candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert candidates")
	}

	// read the batch back inside the same transaction. Hashed rows match on
	// their dedupe tuple so a retried capture gets the original ids; hashless
	// rows (coordinate-only) are always fresh inserts.
	sel := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sel.Select(columns...)
	sel.From("location_candidates")
	matched := make([]string, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if c.AddressHash != "" {
			matched = append(matched, sel.And(
				sel.Equal("ingestion_id", c.IngestionID),
				sel.Equal("photo_bundle_id", c.PhotoBundleID),
				sel.Equal("source", c.Source),
				sel.Equal("address_hash", c.AddressHash),
			))
		} else {
			matched = append(matched, sel.Equal("id", c.ID))
		}
	}
	sel.Where(
		sel.Equal("tenant_id", tenantID),
		sel.Or(matched...),
	)
	sel.OrderBy("created_at").Asc()

	query, args = sel.Build()
	stored := []models.LocationCandidate{}
	if err := tx.SelectContext(ctx, &stored, query, args...); err != nil {
		log.WithError(err).Error("Failed to read back candidate batch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert candidates")
	}

	if err := tx.Commit(ctx); err != nil {
		log.WithError(err).Error("Failed to commit candidate batch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert candidates")
	}

	log.Debug("Inserted candidate batch")
	return stored, nil
}

// Create inserts a single candidate and returns it with a minted id. Used to
// persist manual overrides as stored candidates so their hash is available for
// future matching.
func (r *Repository) Create(ctx context.Context, tenantID string, c models.LocationCandidate) (*models.LocationCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Create")
	defer span.End()

	c.ID = uuid.New().String()
	c.TenantID = tenantID
	c.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("location_candidates")
	sb.Cols(columns...)
	sb.Values(c.ID, c.TenantID, c.IngestionID, c.PhotoBundleID, c.Source, c.Provider,
		c.FormattedAddress, c.Latitude, c.Longitude, c.Confidence, c.AddressHash,
		c.Components, c.CreatedAt)

	// a retried confirmation resubmits the same address; hand back the
	// existing row instead of failing on the dedupe index
	query, args := sb.Build()
	query += ` ON CONFLICT (tenant_id, ingestion_id, photo_bundle_id, source, address_hash) WHERE address_hash <> ''
		DO UPDATE SET formatted_address = EXCLUDED.formatted_address
		RETURNING ` + strings.Join(columns, ", ")

	var stored models.LocationCandidate
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&stored); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert candidate")
	}

	return &stored, nil
}

// Get retrieves a candidate by id, scoped to the tenant. Returns nil when the
// candidate does not exist.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.LocationCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("location_candidates")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("id", id),
	)

	query, args := sb.Build()
	var c models.LocationCandidate
	if err := r.db.GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get candidate")
	}

	return &c, nil
}

// ListByIngestion retrieves all candidates captured for an ingestion, oldest
// first. photoBundleID narrows the listing when provided.
func (r *Repository) ListByIngestion(ctx context.Context, tenantID, ingestionID, photoBundleID string) ([]models.LocationCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ListByIngestion")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("location_candidates")
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("ingestion_id", ingestionID),
	}
	if photoBundleID != "" {
		where = append(where, sb.Equal("photo_bundle_id", photoBundleID))
	}
	sb.Where(where...)
	sb.OrderBy("created_at").Asc()

	query, args := sb.Build()
	candidates := []models.LocationCandidate{}
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"ingestion_id": ingestionID,
		}).Error("Failed to list candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list candidates")
	}

	return candidates, nil
}
