// Package resolution exposes the reviewer-facing resolution operations over
// HTTP: resolve, search, confirm, deny, skip, and per-ingestion status.
package resolution

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/crewline/atlas/pkg/context"
	"github.com/crewline/atlas/pkg/models"
	"github.com/crewline/atlas/pkg/resolution"
	"github.com/crewline/atlas/pkg/validate"
)

// Handler handles resolution routes
type Handler struct {
	logger  ectologger.Logger
	service *resolution.Service
}

// NewHandler creates a new resolution handler
func NewHandler(logger ectologger.Logger, service *resolution.Service) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// Register registers resolution routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/resolve", h.Resolve)
	g.POST("/search", h.Search)
	g.POST("/confirm", h.Confirm)
	g.POST("/deny", h.Deny)
	g.POST("/skip", h.Skip)
	g.GET("/:ingestion_id", h.Status)
}

func requireTenant(c echo.Context) (string, error) {
	tenantID := context.GetTenantID(c.Request().Context())
	if tenantID == "" {
		return "", httperror.NewHTTPError(http.StatusBadRequest, "X-Tenant-ID header is required")
	}
	return tenantID, nil
}

// Resolve runs matching and proposal synthesis for an ingestion
func (h *Handler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}

	var req models.ResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.service.Resolve(ctx, tenantID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Search runs a manual geocoder query and returns ephemeral candidates
func (h *Handler) Search(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}

	var req models.SearchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.service.Search(ctx, tenantID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Confirm records the confirmed terminal decision for an ingestion
func (h *Handler) Confirm(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	userID := context.GetUserID(ctx)

	var req models.ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.service.Confirm(ctx, tenantID, userID, req)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"ingestion_id": req.IngestionID,
	}).Info("Confirmed resolution")

	return c.JSON(http.StatusOK, resp)
}

// Deny records that the presented candidate was wrong
func (h *Handler) Deny(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	userID := context.GetUserID(ctx)

	var req models.DenyRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.service.Deny(ctx, tenantID, userID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Skip marks an ingestion as intentionally unresolved
func (h *Handler) Skip(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	userID := context.GetUserID(ctx)

	var req models.SkipRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp, err := h.service.Skip(ctx, tenantID, userID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// Status reports the outcomes and candidates on file for an ingestion
func (h *Handler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}

	ingestionID := c.Param("ingestion_id")
	if ingestionID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "ingestion_id is required")
	}

	resp, err := h.service.Status(ctx, tenantID, ingestionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}
