package classifier

import (
	"encoding/json"
	"fmt"

	"github.com/wardlight/wardlight/pkg/repository"
)

const resultColumns = `id, screenshot_id, status, primary_category, confidence,
		secondary_categories, is_low_confidence, needs_review, crisis_protected,
		retry_count, taxonomy_version, model_name, provider_name, last_error,
		created_at, updated_at`

func scanResult(s repository.Scanner) (Result, error) {
	var r Result
	var secondariesRaw []byte

	err := s.Scan(
		&r.ID,
		&r.ScreenshotID,
		&r.Status,
		&r.PrimaryCategory,
		&r.Confidence,
		&secondariesRaw,
		&r.IsLowConfidence,
		&r.NeedsReview,
		&r.CrisisProtected,
		&r.RetryCount,
		&r.TaxonomyVersion,
		&r.ModelName,
		&r.ProviderName,
		&r.LastError,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return r, err
	}

	if len(secondariesRaw) > 0 {
		if err := json.Unmarshal(secondariesRaw, &r.Secondaries); err != nil {
			return r, fmt.Errorf("unmarshal secondary_categories: %w", err)
		}
	}
	if r.Secondaries == nil {
		r.Secondaries = []SecondaryCategory{}
	}

	return r, nil
}
