package classifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/crisis"
	"github.com/wardlight/wardlight/internal/gate"
	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/pkg/repository"
	"github.com/wardlight/wardlight/pkg/storage"
)

type repo struct {
	db       *sql.DB
	provider Provider
	blobs    storage.System
	crisis   crisis.System
	policy   Policy
	logger   *slog.Logger
}

// New creates the classifier system backed by PostgreSQL, blob storage for
// screenshot bytes, and the crisis allowlist for the short-circuit.
func New(db *sql.DB, provider Provider, blobs storage.System, cs crisis.System, logger *slog.Logger) System {
	return &repo{
		db:       db,
		provider: provider,
		blobs:    blobs,
		crisis:   cs,
		policy:   DefaultPolicy(),
		logger:   logger.With("system", "classifier"),
	}
}

func (r *repo) Process(ctx context.Context, job Job) (*Result, []gate.Concern, error) {
	current, err := r.claim(ctx, job.ScreenshotID)
	if err != nil {
		return nil, nil, err
	}
	if current.Status.Terminal() {
		// Re-delivered job; the stored result stands and concerns were
		// already consumed downstream.
		return current, nil, nil
	}

	if match := r.crisis.Match(job.Context.URL); match != nil {
		result, err := r.completeCrisis(ctx, job.ScreenshotID, match)
		if err != nil {
			return nil, nil, err
		}
		r.logger.Info("classification crisis-protected",
			"screenshot_id", job.ScreenshotID,
			"resource", match.Domain,
		)
		return result, nil, nil
	}

	image, err := r.download(ctx, job.ImageKey)
	if err != nil {
		result, markErr := r.fail(ctx, job.ScreenshotID, 0, err)
		if markErr != nil {
			return nil, nil, markErr
		}
		return result, nil, fmt.Errorf("%w: %w", ErrExhausted, err)
	}

	out, retries, attemptErr := r.policy.Run(ctx, r.provider, image, job.Context,
		r.logger.With("screenshot_id", job.ScreenshotID))
	if attemptErr != nil {
		if ctx.Err() != nil {
			return nil, nil, attemptErr
		}

		result, err := r.fail(ctx, job.ScreenshotID, retries, attemptErr)
		if err != nil {
			return nil, nil, err
		}
		return result, nil, fmt.Errorf("%w: %w", ErrExhausted, attemptErr)
	}

	result, err := r.complete(ctx, job.ScreenshotID, retries, Assemble(*out))
	if err != nil {
		return nil, nil, err
	}
	return result, out.Concerns, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Result, error) {
	query := fmt.Sprintf(`SELECT %s FROM classifications WHERE id = $1`, resultColumns)

	result, err := repository.QueryOne(ctx, r.db, query, []any{id}, scanResult)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &result, nil
}

func (r *repo) FindByScreenshot(ctx context.Context, screenshotID uuid.UUID) (*Result, error) {
	query := fmt.Sprintf(`SELECT %s FROM classifications WHERE screenshot_id = $1`, resultColumns)

	result, err := repository.QueryOne(ctx, r.db, query, []any{screenshotID}, scanResult)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &result, nil
}

// claim inserts the pending row for the screenshot, or picks up the existing
// one. Non-terminal rows are moved to processing.
func (r *repo) claim(ctx context.Context, screenshotID uuid.UUID) (*Result, error) {
	query := fmt.Sprintf(`
		INSERT INTO classifications (
			id, screenshot_id, status, primary_category,
			confidence, secondary_categories, taxonomy_version,
			model_name, provider_name
		)
		VALUES ($1, $2, $3, $4, 0, '[]'::jsonb, $5, $6, $7)
		ON CONFLICT (screenshot_id) DO UPDATE
			SET status = CASE
					WHEN classifications.status IN ('completed', 'failed')
						THEN classifications.status
					ELSE $3::text
				END,
				updated_at = NOW()
		RETURNING %s`, resultColumns)

	result, err := repository.QueryOne(ctx, r.db, query, []any{
		uuid.New(),
		screenshotID,
		StatusProcessing,
		taxonomy.CategoryOther,
		taxonomy.Version,
		r.provider.Model(),
		r.provider.Name(),
	}, scanResult)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &result, nil
}

func (r *repo) complete(ctx context.Context, screenshotID uuid.UUID, retries int, a Assembled) (*Result, error) {
	secondaries, err := json.Marshal(a.Secondaries)
	if err != nil {
		return nil, fmt.Errorf("marshal secondary_categories: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE classifications
		SET status = $2,
			primary_category = $3,
			confidence = $4,
			secondary_categories = $5,
			is_low_confidence = $6,
			needs_review = $7,
			retry_count = $8,
			last_error = NULL,
			updated_at = NOW()
		WHERE screenshot_id = $1
		RETURNING %s`, resultColumns)

	result, err := repository.QueryOne(ctx, r.db, query, []any{
		screenshotID,
		StatusCompleted,
		a.PrimaryCategory,
		a.Confidence,
		secondaries,
		a.IsLowConfidence,
		a.NeedsReview,
		retries,
	}, scanResult)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &result, nil
}

// completeCrisis finalizes a crisis-protected classification. The primary
// category records the topical bucket of the matched resource without any
// concern detection having run.
func (r *repo) completeCrisis(ctx context.Context, screenshotID uuid.UUID, match *crisis.Resource) (*Result, error) {
	query := fmt.Sprintf(`
		UPDATE classifications
		SET status = $2,
			primary_category = $3,
			confidence = 100,
			crisis_protected = TRUE,
			is_low_confidence = FALSE,
			needs_review = FALSE,
			last_error = NULL,
			updated_at = NOW()
		WHERE screenshot_id = $1
		RETURNING %s`, resultColumns)

	result, err := repository.QueryOne(ctx, r.db, query, []any{
		screenshotID,
		StatusCompleted,
		taxonomy.CategoryOther,
	}, scanResult)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &result, nil
}

func (r *repo) fail(ctx context.Context, screenshotID uuid.UUID, retries int, cause error) (*Result, error) {
	query := fmt.Sprintf(`
		UPDATE classifications
		SET status = $2,
			retry_count = $3,
			last_error = $4,
			updated_at = NOW()
		WHERE screenshot_id = $1
		RETURNING %s`, resultColumns)

	result, err := repository.QueryOne(ctx, r.db, query, []any{
		screenshotID,
		StatusFailed,
		retries,
		cause.Error(),
	}, scanResult)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &result, nil
}

func (r *repo) download(ctx context.Context, key string) ([]byte, error) {
	reader, err := r.blobs.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download screenshot %s: %w", key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read screenshot %s: %w", key, err)
	}
	return data, nil
}
