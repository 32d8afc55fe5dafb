// Package gate filters raw concern detections through confidence thresholds.
// It is a pure transformation: failing concerns are discarded, never persisted
// or retried. A concern at or above AlwaysFlagThreshold passes under every
// sensitivity level, approval preference, and bias adjustment.
package gate

import (
	"errors"
	"fmt"

	"github.com/wardlight/wardlight/internal/taxonomy"
)

// AlwaysFlagThreshold is the non-overridable safety floor. Raw confidence at
// or above this value always passes the gate.
const AlwaysFlagThreshold = 95

// ErrInvalidConfidence indicates a concern confidence outside [0,100].
var ErrInvalidConfidence = errors.New("confidence must be within [0,100]")

// Concern is a raw detection produced by the classifier for a single
// screenshot. Concerns are ephemeral: they exist only between assembly and
// the gate decision.
type Concern struct {
	Category   taxonomy.ConcernCategory `json:"category"`
	Severity   taxonomy.Severity        `json:"severity"`
	Confidence int                      `json:"confidence"`
	Reasoning  string                   `json:"reasoning"`
}

// Validate rejects malformed concerns before any gating work.
func (c Concern) Validate() error {
	if c.Confidence < 0 || c.Confidence > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidConfidence, c.Confidence)
	}
	if !c.Category.Valid() {
		return fmt.Errorf("unknown concern category: %q", c.Category)
	}
	if !c.Severity.Valid() {
		return fmt.Errorf("unknown severity: %q", c.Severity)
	}
	return nil
}

// Settings carries the per-family gating configuration.
type Settings struct {
	// Sensitivity selects the global threshold when no category override applies.
	Sensitivity taxonomy.Sensitivity
	// CategoryThresholds overrides the global threshold per concern category.
	CategoryThresholds map[taxonomy.ConcernCategory]int
	// Approvals are guardian app/category preferences shifting a concern's
	// confidence before comparison.
	Approvals map[taxonomy.ConcernCategory]taxonomy.Approval
	// BiasAdjustments shift the threshold per category once the family's
	// bias tuner is active. Callers pass nil (or an empty map) when inactive.
	BiasAdjustments map[taxonomy.ConcernCategory]int
}

// Decision records how a single concern fared against the gate.
type Decision struct {
	Concern            Concern
	AdjustedConfidence int
	Threshold          int
	SafetyOverride     bool
	Passed             bool
}

// Evaluate gates a single concern. The effective threshold is the category
// override when present, otherwise the sensitivity's global threshold,
// shifted by any bias adjustment and clamped to [0,100]. The approval delta
// shifts the concern's confidence before comparison. Raw confidence at or
// above AlwaysFlagThreshold passes unconditionally.
func Evaluate(c Concern, s Settings) (Decision, error) {
	if err := c.Validate(); err != nil {
		return Decision{}, err
	}

	threshold := s.Sensitivity.Threshold()
	if override, ok := s.CategoryThresholds[c.Category]; ok {
		threshold = override
	}
	threshold = clamp(threshold + s.BiasAdjustments[c.Category])

	adjusted := clamp(c.Confidence + s.Approvals[c.Category].ConfidenceDelta())

	d := Decision{
		Concern:            c,
		AdjustedConfidence: adjusted,
		Threshold:          threshold,
		SafetyOverride:     c.Confidence >= AlwaysFlagThreshold,
	}
	d.Passed = d.SafetyOverride || adjusted >= threshold

	return d, nil
}

// Filter gates a batch of concerns and returns only the passing decisions.
// Malformed concerns fail the whole batch so callers never persist partial
// results from invalid input.
func Filter(concerns []Concern, s Settings) ([]Decision, error) {
	passed := make([]Decision, 0, len(concerns))

	for _, c := range concerns {
		d, err := Evaluate(c, s)
		if err != nil {
			return nil, err
		}
		if d.Passed {
			passed = append(passed, d)
		}
	}

	return passed, nil
}

func clamp(v int) int {
	return max(0, min(100, v))
}
