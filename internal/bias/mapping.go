package bias

import (
	"encoding/json"
	"fmt"

	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/pkg/repository"
)

func scanWeights(s repository.Scanner) (Weights, error) {
	var w Weights
	var adjustmentsRaw []byte

	err := s.Scan(
		&w.FamilyID,
		&w.CorrectionCount,
		&adjustmentsRaw,
		&w.LastUpdatedAt,
	)
	if err != nil {
		return w, err
	}

	if len(adjustmentsRaw) > 0 {
		if err := json.Unmarshal(adjustmentsRaw, &w.CategoryAdjustments); err != nil {
			return w, fmt.Errorf("unmarshal category_adjustments: %w", err)
		}
	}

	if w.CategoryAdjustments == nil {
		w.CategoryAdjustments = map[taxonomy.ConcernCategory]int{}
	}

	return w, nil
}

func scanCorrection(s repository.Scanner) (Correction, error) {
	var c Correction

	err := s.Scan(
		&c.ID,
		&c.FamilyID,
		&c.OriginalCategory,
		&c.CorrectedCategory,
		&c.CorrectedBy,
		&c.ShareAnonymized,
		&c.CreatedAt,
	)

	return c, err
}
