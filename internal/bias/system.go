package bias

import (
	"context"

	"github.com/wardlight/wardlight/internal/taxonomy"
)

// System defines the public contract for bias tuner operations.
type System interface {
	// Record persists a guardian correction and recomputes the family's
	// category adjustments.
	Record(ctx context.Context, cmd RecordCommand) (*Weights, error)

	// Weights returns the stored bias state for a family.
	// Returns ErrNotFound when the family has never recorded a correction.
	Weights(ctx context.Context, familyID string) (*Weights, error)

	// Adjustments returns the effective gate adjustments for a family.
	// Families below MinCorrections (or unknown families) get an empty map.
	Adjustments(ctx context.Context, familyID string) (map[taxonomy.ConcernCategory]int, error)
}
