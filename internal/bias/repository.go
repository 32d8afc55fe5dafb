package bias

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/pkg/repository"
)

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a bias repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "bias"),
	}
}

func (r *repo) Record(ctx context.Context, cmd RecordCommand) (*Weights, error) {
	if cmd.FamilyID == "" || cmd.CorrectedBy == "" {
		return nil, fmt.Errorf("%w: family_id and corrected_by required", ErrInvalidCmd)
	}
	if !cmd.OriginalCategory.Valid() {
		return nil, fmt.Errorf("%w: unknown original category %q", ErrInvalidCmd, cmd.OriginalCategory)
	}
	if cmd.CorrectedCategory != "" && !cmd.CorrectedCategory.Valid() {
		return nil, fmt.Errorf("%w: unknown corrected category %q", ErrInvalidCmd, cmd.CorrectedCategory)
	}

	insertQ := `
		INSERT INTO bias_corrections(
			family_id, original_category, corrected_category,
			corrected_by, share_anonymized
		)
		VALUES ($1, $2, $3, $4, $5)`

	listQ := `
		SELECT id, family_id, original_category, corrected_category,
			   corrected_by, share_anonymized, created_at
		FROM bias_corrections
		WHERE family_id = $1
		ORDER BY created_at`

	upsertQ := `
		INSERT INTO family_bias(family_id, correction_count, category_adjustments, last_updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (family_id) DO UPDATE SET
			correction_count = EXCLUDED.correction_count,
			category_adjustments = EXCLUDED.category_adjustments,
			last_updated_at = NOW()
		RETURNING family_id, correction_count, category_adjustments, last_updated_at`

	w, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Weights, error) {
		if _, err := tx.ExecContext(ctx, insertQ,
			cmd.FamilyID, cmd.OriginalCategory, cmd.CorrectedCategory,
			cmd.CorrectedBy, cmd.ShareAnonymized,
		); err != nil {
			return Weights{}, fmt.Errorf("insert correction: %w", err)
		}

		corrections, err := repository.QueryMany(ctx, tx, listQ, []any{cmd.FamilyID}, scanCorrection)
		if err != nil {
			return Weights{}, fmt.Errorf("list corrections: %w", err)
		}

		adjustments := ComputeAdjustments(corrections)
		adjustmentsJSON, err := json.Marshal(adjustments)
		if err != nil {
			return Weights{}, fmt.Errorf("marshal adjustments: %w", err)
		}

		return repository.QueryOne(ctx, tx, upsertQ,
			[]any{cmd.FamilyID, len(corrections), adjustmentsJSON},
			scanWeights,
		)
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("correction recorded",
		"family_id", w.FamilyID,
		"correction_count", w.CorrectionCount,
		"original", cmd.OriginalCategory,
		"corrected", cmd.CorrectedCategory,
	)
	return &w, nil
}

func (r *repo) Weights(ctx context.Context, familyID string) (*Weights, error) {
	q := `
		SELECT family_id, correction_count, category_adjustments, last_updated_at
		FROM family_bias
		WHERE family_id = $1`

	w, err := repository.QueryOne(ctx, r.db, q, []any{familyID}, scanWeights)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &w, nil
}

func (r *repo) Adjustments(ctx context.Context, familyID string) (map[taxonomy.ConcernCategory]int, error) {
	w, err := r.Weights(ctx, familyID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return map[taxonomy.ConcernCategory]int{}, nil
		}
		return nil, err
	}

	if !w.Active() {
		return map[taxonomy.ConcernCategory]int{}, nil
	}

	return w.CategoryAdjustments, nil
}
