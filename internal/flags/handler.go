package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/pkg/handlers"
	"github.com/wardlight/wardlight/pkg/pagination"
	"github.com/wardlight/wardlight/pkg/routes"
)

// Handler provides HTTP endpoints for flag lifecycle operations.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "flags"),
		pagination: pagination,
	}
}

// Routes returns the route group definition for flag endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/flags",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "POST", Pattern: "/{id}/annotation", Handler: h.SubmitAnnotation},
			{Method: "POST", Pattern: "/{id}/extension", Handler: h.RequestExtension},
			{Method: "POST", Pattern: "/{id}/release", Handler: h.Release},
			{Method: "POST", Pattern: "/{id}/dismiss", Handler: h.Dismiss},
			{Method: "POST", Pattern: "/{id}/discuss", Handler: h.Discuss},
			{Method: "POST", Pattern: "/{id}/escalate", Handler: h.Escalate},
			{Method: "POST", Pattern: "/{id}/correct", Handler: h.Correct},
			{Method: "POST", Pattern: "/{id}/view", Handler: h.View},
			{Method: "POST", Pattern: "/{id}/notes", Handler: h.AddNote},
			{Method: "PUT", Pattern: "/{id}/viewed/{parentId}", Handler: h.MarkViewed},
		},
	}
}

// List returns a paginated list of flags with optional query parameter filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a single flag with its audit trail and notes.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	f, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, f)
}

// Search accepts a JSON body with pagination and filter criteria and returns matching flags.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// SubmitAnnotation records the child's explanation for a flagged screenshot.
func (h *Handler) SubmitAnnotation(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) (*Flag, error) {
		var cmd AnnotateCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return h.sys.SubmitAnnotation(r.Context(), id, cmd)
	})
}

// RequestExtension grants the single 15-minute annotation extension.
func (h *Handler) RequestExtension(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) (*Flag, error) {
		return h.sys.RequestExtension(r.Context(), id)
	})
}

// Release moves a sensitive_hold flag back into delivery. The reviewer
// identified in the body may release before the cooldown elapses.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) (*Flag, error) {
		var cmd ActionCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return h.sys.Release(r.Context(), id, cmd.ParentID, true)
	})
}

// Dismiss resolves a flag as not concerning.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.sys.Dismiss)
}

// Discuss resolves a flag as handled in conversation with the child.
func (h *Handler) Discuss(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.sys.Discuss)
}

// Escalate marks a flag as requiring follow-up review.
func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.sys.EscalateToReview)
}

// Correct records a guardian's category correction and feeds the bias tuner.
func (h *Handler) Correct(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) (*Flag, error) {
		var cmd CorrectCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return h.sys.Correct(r.Context(), id, cmd)
	})
}

// View records a guardian viewing a flag in the audit trail.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.sys.View)
}

// AddNote appends a guardian note to a flag.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) (*Flag, error) {
		var cmd NoteCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return h.sys.AddNote(r.Context(), id, cmd)
	})
}

// MarkViewed records a co-parent's view of a flag.
func (h *Handler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(id uuid.UUID) (*Flag, error) {
		return h.sys.MarkViewed(r.Context(), id, r.PathValue("parentId"))
	})
}

func (h *Handler) action(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id uuid.UUID, cmd ActionCommand) (*Flag, error),
) {
	h.mutate(w, r, func(id uuid.UUID) (*Flag, error) {
		var cmd ActionCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return op(r.Context(), id, cmd)
	})
}

func (h *Handler) mutate(
	w http.ResponseWriter,
	r *http.Request,
	op func(id uuid.UUID) (*Flag, error),
) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrNotFound)
		return
	}

	f, err := op(id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, f)
}
