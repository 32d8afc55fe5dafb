package crisis

import "errors"

// Domain errors for allowlist distribution.
var (
	// ErrStaleAllowlist indicates a refresh failed and matching continues
	// against the last good cached snapshot.
	ErrStaleAllowlist = errors.New("allowlist refresh failed, serving cached snapshot")
	// ErrNoAllowlist indicates no snapshot has ever been loaded.
	ErrNoAllowlist = errors.New("no allowlist snapshot available")
)
