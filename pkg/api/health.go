package api

import (
	"github.com/cuemby/modelhost/pkg/metrics"
	"github.com/labstack/echo/v4"
)

// registerHealthRoutes exposes liveness, readiness and Prometheus metrics.
// Component health is fed by metrics.Collector checks.
func registerHealthRoutes(e *echo.Echo) {
	e.GET("/health", echo.WrapHandler(metrics.HealthHandler()))
	e.GET("/ready", echo.WrapHandler(metrics.ReadyHandler()))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}
