// Package handler contains the Echo adapter for the dispatcher and the
// proxy's own health endpoints.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatch-proxy-go/internal/config"
	"dispatch-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Static
// routes take precedence over the dispatcher's catch-all, which accepts any
// request method.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	e.Pre(passthroughMethods())
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)
	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
	e.Any("/*", proxy.Handle)
}
