package suppression

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/flags"
	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/pkg/repository"
)

// ErrNotFound indicates no suppression audit records exist for the flag.
var ErrNotFound = errors.New("suppression audit not found")

// AuditRecord is an internal-only trace of a suppression decision. These rows
// are never exposed through guardian or child surfaces.
type AuditRecord struct {
	ID              uuid.UUID                `json:"id"`
	FlagID          uuid.UUID                `json:"flag_id"`
	ChildID         string                   `json:"child_id"`
	Reason          flags.SuppressionReason  `json:"reason"`
	Category        taxonomy.ConcernCategory `json:"category"`
	Severity        taxonomy.Severity        `json:"severity"`
	ReleasableAfter time.Time                `json:"releasable_after"`
	CreatedAt       time.Time                `json:"created_at"`
}

// Recorder persists suppression audit records.
type Recorder interface {
	Record(ctx context.Context, rec AuditRecord) error
	ListByFlag(ctx context.Context, flagID uuid.UUID) ([]AuditRecord, error)
}

type auditRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecorder creates the suppression audit store.
func NewRecorder(db *sql.DB, logger *slog.Logger) Recorder {
	return &auditRepo{
		db:     db,
		logger: logger.With("system", "suppression"),
	}
}

const auditColumns = `id, flag_id, child_id, reason, category, severity,
		releasable_after, created_at`

func (r *auditRepo) Record(ctx context.Context, rec AuditRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO suppression_audit (
			id, flag_id, child_id, reason, category, severity,
			releasable_after, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.FlagID,
		rec.ChildID,
		rec.Reason,
		rec.Category,
		rec.Severity,
		rec.ReleasableAfter,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record suppression audit: %w", err)
	}

	r.logger.Info("suppression recorded",
		"flag_id", rec.FlagID,
		"reason", rec.Reason,
		"releasable_after", rec.ReleasableAfter,
	)
	return nil
}

func (r *auditRepo) ListByFlag(ctx context.Context, flagID uuid.UUID) ([]AuditRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM suppression_audit
		WHERE flag_id = $1
		ORDER BY created_at`, auditColumns)

	records, err := repository.QueryMany(ctx, r.db, query, []any{flagID}, scanAuditRecord)
	if err != nil {
		return nil, fmt.Errorf("list suppression audit: %w", err)
	}
	return records, nil
}

func scanAuditRecord(s repository.Scanner) (AuditRecord, error) {
	var rec AuditRecord
	err := s.Scan(
		&rec.ID,
		&rec.FlagID,
		&rec.ChildID,
		&rec.Reason,
		&rec.Category,
		&rec.Severity,
		&rec.ReleasableAfter,
		&rec.CreatedAt,
	)
	return rec, err
}
