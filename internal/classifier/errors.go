package classifier

import (
	"errors"
	"net/http"
)

// Domain errors for classification operations.
var (
	ErrNotFound  = errors.New("classification not found")
	ErrDuplicate = errors.New("classification already exists")
	// ErrTransient marks a provider failure or timeout eligible for retry.
	ErrTransient = errors.New("transient provider error")
	// ErrExhausted indicates the retry ceiling was reached; the
	// classification is terminal at failed.
	ErrExhausted = errors.New("classification retries exhausted")
)

// MapHTTPStatus maps classifier domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
