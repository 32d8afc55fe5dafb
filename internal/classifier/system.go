package classifier

import (
	"context"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/gate"
)

// Job identifies a captured screenshot awaiting classification.
type Job struct {
	ScreenshotID uuid.UUID `json:"screenshot_id"`
	// ImageKey locates the captured image in blob storage.
	ImageKey string  `json:"image_key"`
	Context  Context `json:"context"`
}

// System defines the public contract for classification operations.
type System interface {
	// Process classifies a screenshot: persists the pending result, applies
	// the crisis short-circuit, calls the provider under the retry policy,
	// and returns the terminal result plus the ephemeral concerns. Concerns
	// are never persisted; they exist only for the downstream gates.
	// Crisis-protected screenshots return zero concerns. Re-processing a
	// screenshot whose classification is already terminal returns the
	// stored result with no concerns.
	Process(ctx context.Context, job Job) (*Result, []gate.Concern, error)

	Find(ctx context.Context, id uuid.UUID) (*Result, error)
	FindByScreenshot(ctx context.Context, screenshotID uuid.UUID) (*Result, error)
}
