package server

import (
	"net/http"

	"boptest2bacnet/internal/core/engine"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	return e
}

// HealthCheckHandler reports OK while the loop keeps completing cycles.
// The window is three steps so a single slow cycle does not flap health.
func (s *Server) HealthCheckHandler(c echo.Context) error {
	if s.loop.Healthy(3 * s.step) {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

type statusResponse struct {
	Version    string       `json:"version"`
	Scenario   string       `json:"scenario"`
	Equipments int          `json:"equipments"`
	Points     int          `json:"points"`
	Loop       engine.Stats `json:"loop"`
}

func (s *Server) StatusHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Version:    versioninfo.Short(),
		Scenario:   s.scenario,
		Equipments: len(s.registry.Equipments()),
		Points:     s.registry.PointCount(),
		Loop:       s.loop.Stats(),
	})
}
