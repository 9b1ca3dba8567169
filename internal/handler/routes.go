package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"devserver/internal/config"
	"devserver/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The exact
// /proxy route takes priority over the static wildcard, so /proxy/ and deeper
// paths are still served from disk. The health routes exist only when
// server.status_endpoints is set.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, static *StaticHandler, health *HealthHandler) {
	if cfg.Server.StatusEndpoints {
		e.GET("/healthz", health.Healthz)
		e.GET("/proxy/status", health.Status)
	}

	e.GET("/proxy", proxy.Handle)

	e.GET("/*", static.Handle)
	e.HEAD("/*", static.Handle)
}

// RegisterMetrics exposes the Prometheus registry at metrics.path when metrics
// are enabled.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
