package api

import (
	"github.com/wardlight/wardlight/internal/config"
	"github.com/wardlight/wardlight/internal/infrastructure"
	"github.com/wardlight/wardlight/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Config     *config.Config
	Pagination pagination.Config
}

// NewRuntime creates an API runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    infra.Logger.With("module", "api"),
			Database:  infra.Database,
			Storage:   infra.Storage,
			Crisis:    infra.Crisis,
		},
		Config:     cfg,
		Pagination: cfg.API.Pagination,
	}
}
