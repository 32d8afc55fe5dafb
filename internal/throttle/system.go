package throttle

import "context"

// System defines the public contract for throttle operations.
type System interface {
	// Admit atomically requests an alert slot for a flag. Concurrent
	// admissions for the same child and date serialize on the state row.
	Admit(ctx context.Context, cmd AdmitCommand) (*Outcome, error)

	// Forget returns an admitted flag's alert slot and drops it from the
	// day's dedup set. Compensation for flags that failed to persist after
	// admission; unknown flags and missing state rows are no-ops.
	Forget(ctx context.Context, cmd AdmitCommand) error

	// State returns the throttle state for a child on a calendar date.
	// Returns ErrNotFound when no flag has been processed that day.
	State(ctx context.Context, childID, date string) (*State, error)
}
