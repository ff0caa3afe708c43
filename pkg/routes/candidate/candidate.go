// Package candidate exposes the capture-pipeline surface: batch registration
// of location candidates and the per-ingestion listing.
package candidate

import (
	gocontext "context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/crewline/atlas/pkg/context"
	"github.com/crewline/atlas/pkg/metrics"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/normalize"
	"github.com/crewline/atlas/pkg/validate"
)

// Store is the slice of the candidate repository the routes need
type Store interface {
	CreateBatch(ctx gocontext.Context, tenantID string, candidates []models.LocationCandidate) ([]models.LocationCandidate, error)
	ListByIngestion(ctx gocontext.Context, tenantID, ingestionID, photoBundleID string) ([]models.LocationCandidate, error)
}

// Handler handles candidate routes
type Handler struct {
	logger ectologger.Logger
	store  Store
}

// NewHandler creates a new candidate handler
func NewHandler(logger ectologger.Logger, store Store) *Handler {
	return &Handler{
		logger: logger,
		store:  store,
	}
}

// Register registers candidate routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
}

// Create registers a batch of candidates produced by the capture pipeline.
// Address hashes are computed server-side from the structured components when
// present, falling back to the formatted address, so capture clients never
// submit their own hashes.
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID header is required")
	}

	var req models.CreateCandidatesRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	candidates := make([]models.LocationCandidate, 0, len(req.Candidates))
	for _, item := range req.Candidates {
		hash := normalize.Hash(normalize.CanonicalizeComponents(item.Components))
		if hash == "" {
			hash = normalize.HashAddress(item.FormattedAddress)
		}

		candidates = append(candidates, models.LocationCandidate{
			IngestionID:      item.IngestionID,
			PhotoBundleID:    item.PhotoBundleID,
			Source:           models.CandidateSource(item.Source),
			Provider:         item.Provider,
			FormattedAddress: item.FormattedAddress,
			Latitude:         item.Latitude,
			Longitude:        item.Longitude,
			Confidence:       item.Confidence,
			AddressHash:      hash,
			Components:       item.Components,
		})
	}

	created, err := h.store.CreateBatch(ctx, tenantID, candidates)
	if err != nil {
		return err
	}

	for _, cand := range created {
		metrics.CandidatesCaptured.WithLabelValues(tenantID, string(cand.Source)).Inc()
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"created":   len(created),
	}).Info("Registered location candidates")

	return c.JSON(http.StatusCreated, models.CandidateListResponse{
		Items:      created,
		TotalCount: len(created),
	})
}

// List returns the candidates on file for an ingestion
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID header is required")
	}

	ingestionID := c.QueryParam("ingestion_id")
	if ingestionID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "ingestion_id query parameter is required")
	}
	photoBundleID := c.QueryParam("photo_bundle_id")

	items, err := h.store.ListByIngestion(ctx, tenantID, ingestionID, photoBundleID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.CandidateListResponse{
		Items:      items,
		TotalCount: len(items),
	})
}
