// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage, the crisis
// allowlist) that domain systems require.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/wardlight/wardlight/internal/config"
	"github.com/wardlight/wardlight/internal/crisis"
	"github.com/wardlight/wardlight/pkg/database"
	"github.com/wardlight/wardlight/pkg/lifecycle"
	"github.com/wardlight/wardlight/pkg/storage"
)

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, database access, screenshot storage, and the crisis allowlist.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Crisis    crisis.System
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	allowlist, err := crisis.New(cfg.Crisis.Source(), logger)
	if err != nil {
		return nil, fmt.Errorf("crisis allowlist init failed: %w", err)
	}

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Crisis:    allowlist,
	}, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Crisis.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("crisis allowlist start failed: %w", err)
	}
	return nil
}
