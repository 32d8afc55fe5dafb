package bias

import (
	"errors"
	"net/http"
)

// Domain errors for bias tuner operations.
var (
	ErrNotFound   = errors.New("family bias weights not found")
	ErrDuplicate  = errors.New("bias correction already recorded")
	ErrInvalidCmd = errors.New("invalid correction")
)

// MapHTTPStatus maps bias domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidCmd) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
