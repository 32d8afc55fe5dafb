package throttle

import (
	"errors"
	"net/http"
)

// Domain errors for throttle operations.
var (
	ErrNotFound  = errors.New("throttle state not found")
	ErrDuplicate = errors.New("throttle state already exists")
	ErrInvalid   = errors.New("invalid admission request")
)

// MapHTTPStatus maps throttle domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalid) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
