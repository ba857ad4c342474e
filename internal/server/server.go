package server

import (
	"fmt"
	"net/http"
	"time"

	"boptest2bacnet/internal/config"
	"boptest2bacnet/internal/core/engine"
	"boptest2bacnet/internal/core/equipment"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
)

type Server struct {
	port     uint
	httpLog  bool
	scenario string
	step     time.Duration
	loop     *engine.Loop
	registry *equipment.Registry
	gatherer prometheus.Gatherer
}

func NewServer(cfg config.Config, loop *engine.Loop, registry *equipment.Registry, gatherer prometheus.Gatherer) *http.Server {
	NewServer := &Server{
		port:     cfg.Port,
		httpLog:  cfg.HttpLog,
		scenario: cfg.Simulator.Scenario,
		step:     cfg.Simulator.StepTime(),
		loop:     loop,
		registry: registry,
		gatherer: gatherer,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
