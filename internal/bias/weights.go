// Package bias implements the family bias tuner. Guardian corrections are
// accumulated per family and folded into per-category threshold adjustments
// that the confidence gate consults. Adjustments stay inert until a family
// has recorded enough corrections to be meaningful.
package bias

import (
	"time"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/taxonomy"
)

const (
	// MinCorrections is the correction count below which adjustments have no
	// effect on gate output.
	MinCorrections = 5

	// AdjustmentStep is the threshold shift contributed by each correction.
	AdjustmentStep = 5

	// AdjustmentLimit clamps every category adjustment to [-limit, +limit].
	AdjustmentLimit = 50
)

// Weights is the persisted per-family bias state. CategoryAdjustments shift
// gate thresholds: positive values make a category harder to flag.
type Weights struct {
	FamilyID            string                           `json:"family_id"`
	CorrectionCount     int                              `json:"correction_count"`
	CategoryAdjustments map[taxonomy.ConcernCategory]int `json:"category_adjustments"`
	LastUpdatedAt       time.Time                        `json:"last_updated_at"`
}

// Active reports whether the family has enough corrections for adjustments
// to apply.
func (w *Weights) Active() bool {
	return w.CorrectionCount >= MinCorrections
}

// Correction is a single guardian correction of a flagged category.
type Correction struct {
	ID                uuid.UUID                `json:"id"`
	FamilyID          string                   `json:"family_id"`
	OriginalCategory  taxonomy.ConcernCategory `json:"original_category"`
	CorrectedCategory taxonomy.ConcernCategory `json:"corrected_category"`
	CorrectedBy       string                   `json:"corrected_by"`
	// ShareAnonymized records the family's consent to contribute this
	// correction to cross-family aggregation. Opted-out corrections still
	// apply locally.
	ShareAnonymized bool      `json:"share_anonymized"`
	CreatedAt       time.Time `json:"created_at"`
}

// RecordCommand carries the data needed to record a correction.
type RecordCommand struct {
	FamilyID          string                   `json:"family_id"`
	OriginalCategory  taxonomy.ConcernCategory `json:"original_category"`
	CorrectedCategory taxonomy.ConcernCategory `json:"corrected_category"`
	CorrectedBy       string                   `json:"corrected_by"`
	ShareAnonymized   bool                     `json:"share_anonymized"`
}

// ComputeAdjustments derives category adjustments from the observed
// correction pattern. A category repeatedly corrected away from is biased
// harder to flag; a category corrections converge on is biased easier to
// flag. Each direction moves AdjustmentStep per correction, clamped to
// [-AdjustmentLimit, +AdjustmentLimit].
func ComputeAdjustments(corrections []Correction) map[taxonomy.ConcernCategory]int {
	shifts := make(map[taxonomy.ConcernCategory]int)

	for _, c := range corrections {
		shifts[c.OriginalCategory] += AdjustmentStep
		if c.CorrectedCategory != "" && c.CorrectedCategory != c.OriginalCategory {
			shifts[c.CorrectedCategory] -= AdjustmentStep
		}
	}

	for cat, shift := range shifts {
		shifts[cat] = max(-AdjustmentLimit, min(AdjustmentLimit, shift))
	}

	return shifts
}
