package crisis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"

	"github.com/wardlight/wardlight/pkg/lifecycle"
)

const snapshotKey = "allowlist"

// System provides crisis resource matching against a periodically refreshed
// allowlist snapshot.
type System interface {
	// Start registers the background refresh loop with the lifecycle coordinator.
	Start(lc *lifecycle.Coordinator) error
	// Match tests a URL against the current snapshot.
	Match(rawURL string) *Resource
	// Snapshot returns the current allowlist, preferring a fresh copy but
	// falling back to the last good snapshot when the fresh copy has expired.
	Snapshot() (*Allowlist, error)
	// Refresh fetches the distribution document and replaces the snapshot.
	Refresh(ctx context.Context) error
}

// Config holds allowlist source parameters.
type Config struct {
	// SeedPath is a local YAML allowlist loaded before the first remote fetch.
	SeedPath string
	// URL is the distribution endpoint serving the versioned JSON document.
	// Empty disables remote refresh; the seed file is authoritative.
	URL string
	// RefreshInterval is how often the remote document is re-fetched.
	RefreshInterval time.Duration
	// FetchTimeout bounds a single distribution fetch.
	FetchTimeout time.Duration
}

type source struct {
	cfg    Config
	client *http.Client
	fresh  *gocache.Cache
	logger *slog.Logger

	mu       sync.RWMutex
	lastGood *Allowlist
}

// New creates an allowlist source. The seed file, if configured, is loaded
// eagerly so matching works before the first remote refresh completes.
func New(cfg Config, logger *slog.Logger) (System, error) {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 24 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}

	s := &source{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		fresh:  gocache.New(cfg.RefreshInterval, cfg.RefreshInterval/2),
		logger: logger.With("system", "crisis"),
	}

	if cfg.SeedPath != "" {
		seed, err := loadSeed(cfg.SeedPath)
		if err != nil {
			return nil, fmt.Errorf("load allowlist seed: %w", err)
		}
		s.install(seed)
		s.logger.Info("allowlist seed loaded",
			"version", seed.Version,
			"resources", len(seed.Resources),
		)
	}

	return s, nil
}

func (s *source) Start(lc *lifecycle.Coordinator) error {
	if s.cfg.URL == "" {
		return nil
	}

	lc.OnStartup(func() {
		ctx, cancel := context.WithTimeout(lc.Context(), s.cfg.FetchTimeout)
		defer cancel()

		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn("initial allowlist refresh failed", "error", err)
		}
	})

	lc.OnShutdown(func() {
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-lc.Context().Done():
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
				if err := s.Refresh(ctx); err != nil {
					s.logger.Warn("allowlist refresh failed", "error", err)
				}
				cancel()
			}
		}
	})

	return nil
}

func (s *source) Match(rawURL string) *Resource {
	list, err := s.Snapshot()
	if err != nil {
		return nil
	}
	return Match(rawURL, list)
}

func (s *source) Snapshot() (*Allowlist, error) {
	if v, ok := s.fresh.Get(snapshotKey); ok {
		return v.(*Allowlist), nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastGood == nil {
		return nil, ErrNoAllowlist
	}

	// Fail open: expired snapshots keep protecting until a refresh lands.
	return s.lastGood, nil
}

func (s *source) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStaleAllowlist, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStaleAllowlist, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: distribution returned %d", ErrStaleAllowlist, resp.StatusCode)
	}

	var list Allowlist
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return fmt.Errorf("%w: decode document: %w", ErrStaleAllowlist, err)
	}

	s.install(&list)
	s.logger.Info("allowlist refreshed",
		"version", list.Version,
		"resources", len(list.Resources),
	)
	return nil
}

func (s *source) install(list *Allowlist) {
	s.fresh.Set(snapshotKey, list, gocache.DefaultExpiration)

	s.mu.Lock()
	s.lastGood = list
	s.mu.Unlock()
}

func loadSeed(path string) (*Allowlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list Allowlist
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	return &list, nil
}
