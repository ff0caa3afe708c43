// Package entitylink exposes the admin surface for the entity match
// projection: upsert, delete, and list. The same projection is normally fed
// by entity lifecycle events; these routes exist for backfills and repair.
package entitylink

import (
	gocontext "context"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/crewline/atlas/pkg/context"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalize"
	"github.com/crewline/atlas/pkg/normalizers"
	"github.com/crewline/atlas/pkg/validate"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Store is the slice of the entity link repository the routes need
type Store interface {
	Upsert(ctx gocontext.Context, tenantID string, link models.EntityLink) (*models.EntityLink, error)
	Delete(ctx gocontext.Context, tenantID string, entityType models.LinkedEntityType, entityID string) error
	List(ctx gocontext.Context, tenantID string, limit, offset int) ([]models.EntityLink, error)
}

// Handler handles entity link routes
type Handler struct {
	logger ectologger.Logger
	store  Store
}

// NewHandler creates a new entity link handler
func NewHandler(logger ectologger.Logger, store Store) *Handler {
	return &Handler{
		logger: logger,
		store:  store,
	}
}

// Register registers entity link routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Upsert)
	g.DELETE("/:entity_type/:entity_id", h.Delete)
	g.GET("", h.List)
}

// Upsert creates or replaces an entity link. Address, phone and email arrive
// raw and are normalized here so every row carries comparable values.
func (h *Handler) Upsert(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID header is required")
	}

	var req models.UpsertEntityLinkRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	entityCreatedAt := time.Now().UTC()
	if req.EntityCreatedAt != nil {
		entityCreatedAt = req.EntityCreatedAt.UTC()
	}

	link := models.EntityLink{
		EntityID:        req.EntityID,
		EntityType:      models.LinkedEntityType(req.EntityType),
		Label:           req.Label,
		AddressHash:     normalize.HashAddress(req.Address),
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		PhoneNormalized: normalizers.NormalizePhone(req.Phone),
		EmailNormalized: normalizers.NormalizeEmail(req.Email),
		EntityCreatedAt: entityCreatedAt,
	}

	stored, err := h.store.Upsert(ctx, tenantID, link)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"entity_type": stored.EntityType,
		"entity_id":   stored.EntityID,
	}).Info("Upserted entity link")

	return c.JSON(http.StatusOK, stored)
}

// Delete removes an entity link from the projection
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID header is required")
	}

	entityType := models.LinkedEntityType(c.Param("entity_type"))
	if !entityType.IsValid() {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid entity_type")
	}
	entityID := c.Param("entity_id")

	if err := h.store.Delete(ctx, tenantID, entityType, entityID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// List pages through the tenant's entity links
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID header is required")
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		if parsed > maxListLimit {
			parsed = maxListLimit
		}
		limit = parsed
	}

	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "offset must be a non-negative integer")
		}
		offset = parsed
	}

	items, err := h.store.List(ctx, tenantID, limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.EntityLinkListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}
