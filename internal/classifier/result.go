// Package classifier turns raw AI provider output into typed classification
// results. It owns the per-screenshot retry state machine and the crisis
// short-circuit: screenshots matching a protected resource are completed as
// crisis-protected without any concern detection.
package classifier

import (
	"time"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/taxonomy"
)

const (
	// LowConfidenceCeiling marks a result low-confidence when every
	// candidate falls below it, forcing the primary category to Other.
	LowConfidenceCeiling = 30
	// ReviewThreshold marks results below it as needing human review.
	ReviewThreshold = 60
	// SecondaryFloor is the minimum confidence for a secondary category.
	SecondaryFloor = 50
	// MaxSecondaries caps how many secondary categories are kept.
	MaxSecondaries = 2
)

// Status is the classification lifecycle state. Results are created pending,
// mutated only by the assembler, and terminal at completed or failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further mutation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SecondaryCategory is a runner-up topical classification.
type SecondaryCategory struct {
	Category   taxonomy.Category `json:"category"`
	Confidence int               `json:"confidence"`
}

// Result is the persisted classification attached to a screenshot.
type Result struct {
	ID              uuid.UUID           `json:"id"`
	ScreenshotID    uuid.UUID           `json:"screenshot_id"`
	Status          Status              `json:"status"`
	PrimaryCategory taxonomy.Category   `json:"primary_category"`
	Confidence      int                 `json:"confidence"`
	Secondaries     []SecondaryCategory `json:"secondary_categories"`
	IsLowConfidence bool                `json:"is_low_confidence"`
	NeedsReview     bool                `json:"needs_review"`
	CrisisProtected bool                `json:"crisis_protected"`
	RetryCount      int                 `json:"retry_count"`
	TaxonomyVersion string              `json:"taxonomy_version"`
	ModelName       string              `json:"model_name"`
	ProviderName    string              `json:"provider_name"`
	LastError       *string             `json:"last_error,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Assembled holds the derived classification fields computed from raw
// provider output.
type Assembled struct {
	PrimaryCategory taxonomy.Category
	Confidence      int
	Secondaries     []SecondaryCategory
	IsLowConfidence bool
	NeedsReview     bool
}

// Assemble derives the typed classification from raw provider output.
// When every candidate confidence sits below LowConfidenceCeiling the
// result is low-confidence and the primary category collapses to Other.
// Secondary categories keep the top MaxSecondaries candidates above
// SecondaryFloor, ordered by confidence descending.
func Assemble(out Output) Assembled {
	lowConfidence := out.Confidence < LowConfidenceCeiling
	for _, c := range out.SecondaryCandidates {
		if c.Confidence >= LowConfidenceCeiling {
			lowConfidence = false
		}
	}

	primary := out.PrimaryCategory
	if lowConfidence {
		primary = taxonomy.CategoryOther
	}

	secondaries := make([]SecondaryCategory, 0, MaxSecondaries)
	candidates := make([]SecondaryCategory, 0, len(out.SecondaryCandidates))
	for _, c := range out.SecondaryCandidates {
		if c.Confidence > SecondaryFloor {
			candidates = append(candidates, SecondaryCategory(c))
		}
	}
	for len(candidates) > 0 && len(secondaries) < MaxSecondaries {
		best := 0
		for i, c := range candidates {
			if c.Confidence > candidates[best].Confidence {
				best = i
			}
		}
		secondaries = append(secondaries, candidates[best])
		candidates = append(candidates[:best], candidates[best+1:]...)
	}

	return Assembled{
		PrimaryCategory: primary,
		Confidence:      out.Confidence,
		Secondaries:     secondaries,
		IsLowConfidence: lowConfidence,
		NeedsReview:     out.Confidence < ReviewThreshold || lowConfidence,
	}
}
