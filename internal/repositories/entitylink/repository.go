// Package entitylink maintains the local match projection of business
// entities (customers, job-sites, work-requests). Rows are fed by the entity
// lifecycle consumer and the admin backfill routes; the matcher only reads.
package entitylink

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/crewline/atlas/pkg/database"
	"github.com/crewline/atlas/pkg/geo"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/tracing"
)

var columns = []string{
	"entity_id", "tenant_id", "entity_type", "label", "address_hash",
	"latitude", "longitude", "phone_normalized", "email_normalized",
	"entity_created_at", "updated_at",
}

var entityLinkStruct = database.NewStruct(new(models.EntityLink))

// NearbyLink pairs an entity link with its exact great-circle distance from
// the query point
type NearbyLink struct {
	models.EntityLink
	DistanceMeters float64
}

// Repository handles entity link projection persistence and lookups
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entity link repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or replaces the projection row for an entity
func (r *Repository) Upsert(ctx context.Context, tenantID string, link models.EntityLink) (*models.EntityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "entitylink.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Upsert",
		"tenant_id":   tenantID,
		"entity_type": link.EntityType,
		"entity_id":   link.EntityID,
	})

	link.TenantID = tenantID
	link.UpdatedAt = time.Now().UTC()
	if link.EntityCreatedAt.IsZero() {
		link.EntityCreatedAt = link.UpdatedAt
	}

	ib := entityLinkStruct.InsertInto("entity_links", &link)
	ub := ib.OnConflict("tenant_id", "entity_type", "entity_id")
	ub.Set(
		ub.Assign("label", database.Excluded("label")),
		ub.Assign("address_hash", database.Excluded("address_hash")),
		ub.Assign("latitude", database.Excluded("latitude")),
		ub.Assign("longitude", database.Excluded("longitude")),
		ub.Assign("phone_normalized", database.Excluded("phone_normalized")),
		ub.Assign("email_normalized", database.Excluded("email_normalized")),
		ub.Assign("entity_created_at", database.Excluded("entity_created_at")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to upsert entity link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert entity link")
	}

	log.Debug("Upserted entity link")
	return &link, nil
}

// Delete removes the projection row for an entity
func (r *Repository) Delete(ctx context.Context, tenantID string, entityType models.LinkedEntityType, entityID string) error {
	ctx, span := tracing.StartSpan(ctx, "entitylink.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("entity_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete entity link")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete entity link")
	}

	return nil
}

// Get retrieves a single projection row. Returns nil when the entity is not
// projected.
func (r *Repository) Get(ctx context.Context, tenantID string, entityType models.LinkedEntityType, entityID string) (*models.EntityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "entitylink.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entity_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	)

	query, args := sb.Build()
	links := []models.EntityLink{}
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get entity link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entity link")
	}
	if len(links) == 0 {
		return nil, nil
	}

	return &links[0], nil
}

// FindByLocationHash retrieves entities whose stored location hash equals the
// given non-empty hash
func (r *Repository) FindByLocationHash(ctx context.Context, tenantID, hash string) ([]models.EntityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "entitylink.Repository.FindByLocationHash")
	defer span.End()

	if hash == "" {
		return []models.EntityLink{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entity_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("address_hash", hash),
	)
	sb.OrderBy("entity_created_at").Desc()

	query, args := sb.Build()
	links := []models.EntityLink{}
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find entities by location hash")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find entities by location hash")
	}

	return links, nil
}

// FindNearby retrieves entities within radiusMeters of the given point,
// nearest first. A bounding-box predicate narrows the scan in SQL; the exact
// great-circle distance check happens here.
func (r *Repository) FindNearby(ctx context.Context, tenantID string, lat, lng, radiusMeters float64) ([]NearbyLink, error) {
	ctx, span := tracing.StartSpan(ctx, "entitylink.Repository.FindNearby")
	defer span.End()

	minLat, maxLat, minLng, maxLng := geo.BoundingBox(lat, lng, radiusMeters)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entity_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.IsNotNull("latitude"),
		sb.IsNotNull("longitude"),
		sb.Between("latitude", minLat, maxLat),
		sb.Between("longitude", minLng, maxLng),
	)

	query, args := sb.Build()
	links := []models.EntityLink{}
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find nearby entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find nearby entities")
	}

	nearby := []NearbyLink{}
	for _, link := range links {
		d := geo.DistanceMeters(lat, lng, *link.Latitude, *link.Longitude)
		if d <= radiusMeters {
			nearby = append(nearby, NearbyLink{EntityLink: link, DistanceMeters: d})
		}
	}

	sort.Slice(nearby, func(i, j int) bool {
		if nearby[i].DistanceMeters != nearby[j].DistanceMeters {
			return nearby[i].DistanceMeters < nearby[j].DistanceMeters
		}
		return nearby[i].EntityCreatedAt.After(nearby[j].EntityCreatedAt)
	})

	return nearby, nil
}

// FindByContact retrieves entities whose normalized phone or email matches.
// Empty arguments match nothing.
func (r *Repository) FindByContact(ctx context.Context, tenantID, phoneNormalized, emailNormalized string) ([]models.EntityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "entitylink.Repository.FindByContact")
	defer span.End()

	if phoneNormalized == "" && emailNormalized == "" {
		return []models.EntityLink{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entity_links")

	contact := []string{}
	if phoneNormalized != "" {
		contact = append(contact, sb.Equal("phone_normalized", phoneNormalized))
	}
	if emailNormalized != "" {
		contact = append(contact, sb.Equal("email_normalized", emailNormalized))
	}
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(contact...),
	)
	sb.OrderBy("entity_created_at").Desc()

	query, args := sb.Build()
	links := []models.EntityLink{}
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find entities by contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find entities by contact")
	}

	return links, nil
}

// List retrieves projection rows for a tenant with offset pagination
func (r *Repository) List(ctx context.Context, tenantID string, limit, offset int) ([]models.EntityLink, error) {
	ctx, span := tracing.StartSpan(ctx, "entitylink.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entity_links")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("entity_type", "entity_id").Asc()
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()
	links := []models.EntityLink{}
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list entity links")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entity links")
	}

	return links, nil
}
