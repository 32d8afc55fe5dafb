// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/wardlight/wardlight/internal/config"
	"github.com/wardlight/wardlight/internal/infrastructure"
	"github.com/wardlight/wardlight/pkg/middleware"
	"github.com/wardlight/wardlight/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware,
// and registers the pipeline background sweeps with the lifecycle coordinator.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)

	domain, err := NewDomain(runtime)
	if err != nil {
		return nil, err
	}

	if err := domain.Pipeline.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("pipeline start failed: %w", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))

	return m, nil
}
