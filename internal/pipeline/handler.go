package pipeline

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wardlight/wardlight/internal/classifier"
	"github.com/wardlight/wardlight/pkg/handlers"
	"github.com/wardlight/wardlight/pkg/routes"
)

// Handler exposes the pipeline ingest endpoints. Device agents and queue
// bridges submit captured screenshots here.
type Handler struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewHandler creates the ingest handler.
func NewHandler(p *Pipeline, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		logger:   logger.With("handler", "pipeline"),
	}
}

// Routes returns the route group definition for ingest endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/screenshots",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Process},
			{Method: "POST", Pattern: "/batch", Handler: h.ProcessBatch},
		},
	}
}

// Process runs a single screenshot through the pipeline and returns the
// decision outcome.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var job Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	outcome, err := h.pipeline.Process(r.Context(), job)
	if err != nil {
		handlers.RespondError(w, h.logger, mapStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, outcome)
}

// ProcessBatch runs a batch of screenshots through the bounded worker group.
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	var jobs []Job
	if err := json.NewDecoder(r.Body).Decode(&jobs); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	outcomes, err := h.pipeline.ProcessBatch(r.Context(), jobs)
	if err != nil {
		// Partial failure: surface what completed alongside the error.
		h.logger.Warn("batch completed with failures", "error", err)
	}

	handlers.RespondJSON(w, http.StatusOK, outcomes)
}

func mapStatus(err error) int {
	if errors.Is(err, ErrInvalidJob) {
		return http.StatusBadRequest
	}
	return classifier.MapHTTPStatus(err)
}
