package flags

import (
	"errors"
	"net/http"
)

// Domain errors for flag lifecycle operations.
var (
	ErrNotFound  = errors.New("flag not found")
	ErrDuplicate = errors.New("open flag already exists for screenshot and category")
	// ErrPrecondition indicates a lifecycle operation against the wrong
	// state (annotating an expired flag, extending twice, acting on a
	// terminal flag). Nothing is mutated; callers re-fetch current state.
	ErrPrecondition = errors.New("flag is not in a state that allows this operation")
	ErrValidation   = errors.New("invalid flag input")
)

// MapHTTPStatus maps flag domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrPrecondition) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
