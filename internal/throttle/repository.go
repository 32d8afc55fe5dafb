package throttle

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/pkg/repository"
)

const stateColumns = `child_id, date, alerts_sent, throttled_today,
		severity_counts, alerted_flag_ids, updated_at`

type repo struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a throttle repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger) System {
	return &repo{
		db:     db,
		logger: logger.With("system", "throttle"),
	}
}

func (r *repo) Admit(ctx context.Context, cmd AdmitCommand) (*Outcome, error) {
	if cmd.ChildID == "" || cmd.FlagID == uuid.Nil {
		return nil, fmt.Errorf("%w: child_id and flag_id required", ErrInvalid)
	}
	if !cmd.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalid, cmd.Severity)
	}

	date := cmd.DateKey()

	ensureQ := `
		INSERT INTO throttle_state(child_id, date)
		VALUES ($1, $2)
		ON CONFLICT (child_id, date) DO NOTHING`

	lockQ := fmt.Sprintf(`
		SELECT %s FROM throttle_state
		WHERE child_id = $1 AND date = $2
		FOR UPDATE`, stateColumns)

	outcome, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Outcome, error) {
		if _, err := tx.ExecContext(ctx, ensureQ, cmd.ChildID, date); err != nil {
			return Outcome{}, fmt.Errorf("ensure state row: %w", err)
		}

		st, err := repository.QueryOne(ctx, tx, lockQ, []any{cmd.ChildID, date}, scanState)
		if err != nil {
			return Outcome{}, fmt.Errorf("lock state row: %w", err)
		}

		allowed, deduped := st.Admit(cmd)
		if deduped {
			return Outcome{Allowed: true, Deduped: true, State: st}, nil
		}

		st, err = persistState(ctx, tx, st)
		if err != nil {
			return Outcome{}, err
		}

		return Outcome{Allowed: allowed, State: st}, nil
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if !outcome.Deduped {
		r.logger.Info("alert admission",
			"child_id", cmd.ChildID,
			"flag_id", cmd.FlagID,
			"allowed", outcome.Allowed,
			"alerts_sent", outcome.State.AlertsSent,
		)
	}
	return &outcome, nil
}

func (r *repo) Forget(ctx context.Context, cmd AdmitCommand) error {
	if cmd.ChildID == "" || cmd.FlagID == uuid.Nil {
		return fmt.Errorf("%w: child_id and flag_id required", ErrInvalid)
	}

	date := cmd.DateKey()

	lockQ := fmt.Sprintf(`
		SELECT %s FROM throttle_state
		WHERE child_id = $1 AND date = $2
		FOR UPDATE`, stateColumns)

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		st, err := repository.QueryOne(ctx, tx, lockQ, []any{cmd.ChildID, date}, scanState)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return struct{}{}, nil
			}
			return struct{}{}, fmt.Errorf("lock state row: %w", err)
		}

		if !st.Forget(cmd) {
			return struct{}{}, nil
		}

		if _, err := persistState(ctx, tx, st); err != nil {
			return struct{}{}, err
		}

		r.logger.Info("alert slot returned",
			"child_id", cmd.ChildID,
			"flag_id", cmd.FlagID,
			"alerts_sent", st.AlertsSent,
		)
		return struct{}{}, nil
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return nil
}

func (r *repo) State(ctx context.Context, childID, date string) (*State, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM throttle_state
		WHERE child_id = $1 AND date = $2`, stateColumns)

	st, err := repository.QueryOne(ctx, r.db, q, []any{childID, date}, scanState)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &st, nil
}

// persistState writes the mutated counters back to the locked state row.
func persistState(ctx context.Context, tx *sql.Tx, st State) (State, error) {
	updateQ := fmt.Sprintf(`
		UPDATE throttle_state
		SET alerts_sent = $3, throttled_today = $4,
			severity_counts = $5, alerted_flag_ids = $6, updated_at = NOW()
		WHERE child_id = $1 AND date = $2
		RETURNING %s`, stateColumns)

	severityJSON, err := json.Marshal(st.SeverityCounts)
	if err != nil {
		return State{}, fmt.Errorf("marshal severity_counts: %w", err)
	}
	alertedJSON, err := json.Marshal(st.AlertedFlagIDs)
	if err != nil {
		return State{}, fmt.Errorf("marshal alerted_flag_ids: %w", err)
	}

	st, err = repository.QueryOne(ctx, tx, updateQ,
		[]any{st.ChildID, st.Date, st.AlertsSent, st.ThrottledToday, severityJSON, alertedJSON},
		scanState,
	)
	if err != nil {
		return State{}, fmt.Errorf("update state row: %w", err)
	}
	return st, nil
}
