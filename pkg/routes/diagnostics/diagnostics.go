// Package diagnostics exposes the in-memory trace of recent resolution
// activity for operators debugging match quality.
package diagnostics

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/crewline/atlas/pkg/diagnostics"
)

// Handler handles diagnostics routes
type Handler struct {
	recorder *diagnostics.Recorder
}

// NewHandler creates a new diagnostics handler
func NewHandler(recorder *diagnostics.Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// Register registers diagnostics routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/resolutions", h.Recent)
}

// Recent returns the most recent resolution activity, newest first
func (h *Handler) Recent(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"entries": h.recorder.Recent(),
	})
}
