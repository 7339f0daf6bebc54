package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"dispatch-proxy-go/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	table   *route.Table
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(table *route.Table, v Version) *HealthHandler {
	return &HealthHandler{table: table, version: v}
}

type targetStatus struct {
	TargetURL string `json:"target_url"`
	Mode      string `json:"mode"`
}

type routeStatus struct {
	Path      string `json:"path"`
	TargetURL string `json:"target_url"`
	Mode      string `json:"mode"`
}

type statusBody struct {
	Status   string        `json:"status"`
	Version  string        `json:"version"`
	API      targetStatus  `json:"api"`
	Routes   []routeStatus `json:"routes"`
	Fallback targetStatus  `json:"fallback"`
}

// Healthz returns a simple OK response for liveness checks.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the version and the route table in resolution order.
func (h *HealthHandler) Status(c echo.Context) error {
	routes := h.table.Routes()
	body := statusBody{
		Status:   "ok",
		Version:  string(h.version),
		API:      targetStatus{TargetURL: h.table.API().URL, Mode: string(h.table.API().Mode)},
		Routes:   make([]routeStatus, 0, len(routes)),
		Fallback: targetStatus{TargetURL: h.table.Fallback().URL, Mode: string(h.table.Fallback().Mode)},
	}
	for _, r := range routes {
		body.Routes = append(body.Routes, routeStatus{Path: r.MatchPath, TargetURL: r.Target, Mode: string(r.Mode)})
	}
	return c.JSON(http.StatusOK, body)
}
