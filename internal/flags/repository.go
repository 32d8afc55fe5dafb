package flags

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/bias"
	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/pkg/pagination"
	"github.com/wardlight/wardlight/pkg/query"
	"github.com/wardlight/wardlight/pkg/repository"
)

const flagColumns = `id, screenshot_id, family_id, child_id, category, severity,
		confidence, adjusted_confidence, reasoning, status, suppression_reason,
		releasable_after, throttled, throttle_level,
		child_notification_status, child_notified_at,
		annotation_deadline, extension_deadline, annotated_at, child_annotation,
		child_explanation, escalated_at, escalation_reason, parent_notified_at,
		corrected_category, correction_parent_id, corrected_at, viewed_by,
		created_at, updated_at`

type repo struct {
	db         *sql.DB
	tuner      bias.System
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a flag repository implementing the System interface.
// Guardian corrections are forwarded to the bias tuner.
func New(
	db *sql.DB,
	tuner bias.System,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		tuner:      tuner,
		logger:     logger.With("system", "flags"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Flag, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	status := StatusPending
	notification := NotificationPending
	var suppressionReason *SuppressionReason
	var releasableAfter, notifiedAt, deadline *time.Time

	switch {
	case cmd.Suppression != nil:
		status = StatusSensitiveHold
		notification = NotificationSkipped
		suppressionReason = &cmd.Suppression.Reason
		releasableAfter = &cmd.Suppression.ReleasableAfter
	case cmd.NotifyChild:
		now := time.Now().UTC()
		d := now.Add(AnnotationWindow)
		notification = NotificationNotified
		notifiedAt = &now
		deadline = &d
	default:
		notification = NotificationSkipped
	}

	id := cmd.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	level := cmd.ThrottleLevel
	if level == "" {
		level = taxonomy.ThrottleStandard
	}

	insertQ := fmt.Sprintf(`
		INSERT INTO flags(
			id, screenshot_id, family_id, child_id, category, severity,
			confidence, adjusted_confidence, reasoning, status,
			suppression_reason, releasable_after, throttled, throttle_level,
			child_notification_status, child_notified_at, annotation_deadline,
			viewed_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, '[]')
		RETURNING %s`, flagColumns)

	f, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Flag, error) {
		created, err := repository.QueryOne(ctx, tx, insertQ, []any{
			id, cmd.ScreenshotID, cmd.FamilyID, cmd.ChildID, cmd.Category, cmd.Severity,
			cmd.Confidence, cmd.Adjusted, cmd.Reasoning, status,
			suppressionReason, releasableAfter, cmd.Throttled, level,
			notification, notifiedAt, deadline,
		}, scanFlag)
		if err != nil {
			return Flag{}, fmt.Errorf("insert flag: %w", err)
		}

		if err := appendAudit(ctx, tx, created.ID, AuditCreated, "system", "pipeline", nil); err != nil {
			return Flag{}, err
		}

		switch {
		case cmd.Suppression != nil:
			note := string(cmd.Suppression.Reason)
			if err := appendAudit(ctx, tx, created.ID, AuditSuppressed, "system", "pipeline", &note); err != nil {
				return Flag{}, err
			}
		case cmd.NotifyChild:
			if err := appendAudit(ctx, tx, created.ID, AuditChildNotified, "system", "pipeline", nil); err != nil {
				return Flag{}, err
			}
		}

		if cmd.Throttled {
			if err := appendAudit(ctx, tx, created.ID, AuditThrottled, "system", "pipeline", nil); err != nil {
				return Flag{}, err
			}
		}

		return created, nil
	})

	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("flag created",
		"id", f.ID,
		"screenshot_id", f.ScreenshotID,
		"child_id", f.ChildID,
		"category", f.Category,
		"status", f.Status,
		"throttled", f.Throttled,
	)
	return &f, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Flag, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	f, err := repository.QueryOne(ctx, r.db, q, args, scanFlag)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if err := r.attach(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Flag], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Reasoning", "ChildExplanation")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count flags: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanFlag)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) SubmitAnnotation(ctx context.Context, id uuid.UUID, cmd AnnotateCommand) (*Flag, error) {
	if !cmd.Option.Valid() {
		return nil, fmt.Errorf("%w: unknown annotation option %q", ErrValidation, cmd.Option)
	}
	if cmd.Explanation != nil && len(*cmd.Explanation) > MaxExplanationLen {
		return nil, fmt.Errorf("%w: explanation exceeds %d characters", ErrValidation, MaxExplanationLen)
	}

	if cmd.Option == AnnotationSkip {
		return r.Escalate(ctx, id, EscalationSkipped)
	}

	updateQ := fmt.Sprintf(`
		UPDATE flags
		SET annotated_at = NOW(), child_annotation = $2, child_explanation = $3,
			child_notification_status = 'annotated', updated_at = NOW()
		WHERE id = $1 AND child_notification_status = 'notified'
		  AND NOW() <= COALESCE(extension_deadline, annotation_deadline)
		RETURNING %s`, flagColumns)

	f, err := r.transition(ctx, id, updateQ,
		[]any{id, cmd.Option, cmd.Explanation},
		AuditAnnotated, "child", "child", nil,
		nil,
	)
	if err != nil {
		return nil, err
	}

	r.logger.Info("annotation submitted", "id", id, "option", cmd.Option)
	return f, nil
}

func (r *repo) RequestExtension(ctx context.Context, id uuid.UUID) (*Flag, error) {
	updateQ := fmt.Sprintf(`
		UPDATE flags
		SET extension_deadline = annotation_deadline + $2::interval, updated_at = NOW()
		WHERE id = $1 AND child_notification_status = 'notified'
		  AND extension_deadline IS NULL
		  AND NOW() <= annotation_deadline
		RETURNING %s`, flagColumns)

	f, err := r.transition(ctx, id, updateQ,
		[]any{id, ExtensionWindow.String()},
		AuditExtensionRequested, "child", "child", nil,
		nil,
	)
	if err != nil {
		return nil, err
	}

	r.logger.Info("extension granted", "id", id, "deadline", f.ExtensionDeadline)
	return f, nil
}

func (r *repo) Escalate(ctx context.Context, id uuid.UUID, reason EscalationReason) (*Flag, error) {
	deadlineCheck := "NOW() > COALESCE(extension_deadline, annotation_deadline)"
	if reason == EscalationSkipped {
		deadlineCheck = "TRUE"
	}

	updateQ := fmt.Sprintf(`
		UPDATE flags
		SET escalated_at = NOW(), escalation_reason = $2,
			child_notification_status = 'expired', parent_notified_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND child_notification_status = 'notified' AND %s
		RETURNING %s`, deadlineCheck, flagColumns)

	note := string(reason)
	f, err := r.transition(ctx, id, updateQ,
		[]any{id, reason},
		AuditEscalated, "system", "escalation", &note,
		func(current Flag) bool {
			// Re-delivered escalation jobs land here once the flag expired.
			return current.Notification == NotificationExpired
		},
	)
	if err != nil {
		return nil, err
	}

	r.logger.Info("flag escalated", "id", id, "reason", reason)
	return f, nil
}

func (r *repo) EscalateExpired(ctx context.Context, cutoff time.Time) ([]Flag, error) {
	updateQ := fmt.Sprintf(`
		UPDATE flags
		SET escalated_at = NOW(), escalation_reason = 'timeout',
			child_notification_status = 'expired', parent_notified_at = NOW(),
			updated_at = NOW()
		WHERE child_notification_status = 'notified'
		  AND COALESCE(extension_deadline, annotation_deadline) < $1
		RETURNING %s`, flagColumns)

	escalated, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) ([]Flag, error) {
		items, err := repository.QueryMany(ctx, tx, updateQ, []any{cutoff}, scanFlag)
		if err != nil {
			return nil, fmt.Errorf("escalate expired flags: %w", err)
		}

		note := string(EscalationTimeout)
		for _, f := range items {
			if err := appendAudit(ctx, tx, f.ID, AuditEscalated, "system", "escalation", &note); err != nil {
				return nil, err
			}
		}

		return items, nil
	})
	if err != nil {
		return nil, err
	}

	if len(escalated) > 0 {
		r.logger.Info("expired flags escalated", "count", len(escalated))
	}
	return escalated, nil
}

func (r *repo) Release(ctx context.Context, id uuid.UUID, actor string, force bool) (*Flag, error) {
	cooldownCheck := "releasable_after <= NOW()"
	if force {
		cooldownCheck = "TRUE"
	}

	updateQ := fmt.Sprintf(`
		UPDATE flags
		SET status = 'released', updated_at = NOW()
		WHERE id = $1 AND status = 'sensitive_hold' AND %s
		RETURNING %s`, cooldownCheck, flagColumns)

	if actor == "" {
		actor = "system"
	}

	f, err := r.transition(ctx, id, updateQ,
		[]any{id},
		AuditReleased, actor, actor, nil,
		func(current Flag) bool {
			// Release is idempotent against an already-released flag.
			return current.Status == StatusReleased
		},
	)
	if err != nil {
		return nil, err
	}

	r.logger.Info("flag released", "id", id, "actor", actor)
	return f, nil
}

func (r *repo) MarkThrottled(ctx context.Context, id uuid.UUID) (*Flag, error) {
	updateQ := fmt.Sprintf(`
		UPDATE flags
		SET throttled = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'released' AND throttled = FALSE
		RETURNING %s`, flagColumns)

	f, err := r.transition(ctx, id, updateQ,
		[]any{id},
		AuditThrottled, "system", "pipeline", nil,
		func(current Flag) bool {
			// Sweep retries land here once the flag is already marked.
			return current.Throttled
		},
	)
	if err != nil {
		return nil, err
	}

	r.logger.Info("released flag throttled", "id", id)
	return f, nil
}

func (r *repo) Releasable(ctx context.Context, cutoff time.Time) ([]Flag, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM flags
		WHERE status = 'sensitive_hold' AND releasable_after <= $1
		ORDER BY releasable_after`, flagColumns)

	return repository.QueryMany(ctx, r.db, q, []any{cutoff}, scanFlag)
}

func (r *repo) Dismiss(ctx context.Context, id uuid.UUID, cmd ActionCommand) (*Flag, error) {
	return r.guardianTransition(ctx, id, cmd, StatusDismissed, AuditDismissed)
}

func (r *repo) Discuss(ctx context.Context, id uuid.UUID, cmd ActionCommand) (*Flag, error) {
	return r.guardianTransition(ctx, id, cmd, StatusReviewed, AuditDiscussed)
}

func (r *repo) EscalateToReview(ctx context.Context, id uuid.UUID, cmd ActionCommand) (*Flag, error) {
	return r.guardianTransition(ctx, id, cmd, StatusReviewed, AuditEscalated)
}

func (r *repo) Correct(ctx context.Context, id uuid.UUID, cmd CorrectCommand) (*Flag, error) {
	if !cmd.CorrectedCategory.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, cmd.CorrectedCategory)
	}
	if cmd.ParentID == "" {
		return nil, fmt.Errorf("%w: parent_id required", ErrValidation)
	}

	updateQ := fmt.Sprintf(`
		UPDATE flags
		SET corrected_category = $2, correction_parent_id = $3, corrected_at = NOW(),
			status = 'reviewed', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'released', 'reviewed')
		  AND corrected_at IS NULL
		RETURNING %s`, flagColumns)

	note := string(cmd.CorrectedCategory)
	f, err := r.transition(ctx, id, updateQ,
		[]any{id, cmd.CorrectedCategory, cmd.ParentID},
		AuditCorrected, cmd.ParentID, cmd.ParentName, &note,
		nil,
	)
	if err != nil {
		return nil, err
	}

	if _, err := r.tuner.Record(ctx, bias.RecordCommand{
		FamilyID:          f.FamilyID,
		OriginalCategory:  f.Category,
		CorrectedCategory: cmd.CorrectedCategory,
		CorrectedBy:       cmd.ParentID,
		ShareAnonymized:   cmd.ShareAnonymized,
	}); err != nil {
		// The correction itself committed; tuner feedback is best-effort.
		r.logger.Error("bias correction forwarding failed", "id", id, "error", err)
	}

	r.logger.Info("flag corrected",
		"id", id,
		"original", f.Category,
		"corrected", cmd.CorrectedCategory,
	)
	return f, nil
}

func (r *repo) View(ctx context.Context, id uuid.UUID, cmd ActionCommand) (*Flag, error) {
	if cmd.ParentID == "" {
		return nil, fmt.Errorf("%w: parent_id required", ErrValidation)
	}

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		if _, err := r.lock(ctx, tx, id); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, appendAudit(ctx, tx, id, AuditViewed, cmd.ParentID, cmd.ParentName, cmd.Note)
	})
	if err != nil {
		return nil, err
	}

	return r.Find(ctx, id)
}

func (r *repo) AddNote(ctx context.Context, id uuid.UUID, cmd NoteCommand) (*Flag, error) {
	if cmd.Author == "" {
		return nil, fmt.Errorf("%w: author required", ErrValidation)
	}
	if cmd.Content == "" || len(cmd.Content) > MaxNoteLen {
		return nil, fmt.Errorf("%w: note must be 1-%d characters", ErrValidation, MaxNoteLen)
	}

	insertQ := `
		INSERT INTO flag_notes(flag_id, author, content)
		VALUES ($1, $2, $3)`

	_, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		if _, err := r.lock(ctx, tx, id); err != nil {
			return struct{}{}, err
		}
		if _, err := tx.ExecContext(ctx, insertQ, id, cmd.Author, cmd.Content); err != nil {
			return struct{}{}, fmt.Errorf("insert note: %w", err)
		}
		return struct{}{}, appendAudit(ctx, tx, id, AuditNoteAdded, cmd.Author, cmd.Author, nil)
	})
	if err != nil {
		return nil, err
	}

	return r.Find(ctx, id)
}

func (r *repo) MarkViewed(ctx context.Context, id uuid.UUID, parentID string) (*Flag, error) {
	if parentID == "" {
		return nil, fmt.Errorf("%w: parent_id required", ErrValidation)
	}

	updateQ := fmt.Sprintf(`
		UPDATE flags
		SET viewed_by = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, flagColumns)

	f, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Flag, error) {
		current, err := r.lock(ctx, tx, id)
		if err != nil {
			return Flag{}, err
		}

		if slices.Contains(current.ViewedBy, parentID) {
			return current, nil
		}

		viewedJSON, err := json.Marshal(append(current.ViewedBy, parentID))
		if err != nil {
			return Flag{}, fmt.Errorf("marshal viewed_by: %w", err)
		}

		return repository.QueryOne(ctx, tx, updateQ, []any{id, viewedJSON}, scanFlag)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return &f, nil
}

// guardianTransition applies a terminal guardian action from an open,
// guardian-visible state. Terminal replays are rejected, not absorbed:
// direct user actions get an explicit conflict.
func (r *repo) guardianTransition(
	ctx context.Context,
	id uuid.UUID,
	cmd ActionCommand,
	target Status,
	action AuditAction,
) (*Flag, error) {
	if cmd.ParentID == "" {
		return nil, fmt.Errorf("%w: parent_id required", ErrValidation)
	}

	updateQ := fmt.Sprintf(`
		UPDATE flags
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'released')
		RETURNING %s`, flagColumns)

	f, err := r.transition(ctx, id, updateQ,
		[]any{id, target},
		action, cmd.ParentID, cmd.ParentName, cmd.Note,
		nil,
	)
	if err != nil {
		return nil, err
	}

	r.logger.Info("guardian action",
		"id", id,
		"action", action,
		"parent_id", cmd.ParentID,
		"status", f.Status,
	)
	return f, nil
}

// transition runs a conditional single-row update and appends its audit
// entry in one transaction. When the guard fails, noop decides from the
// current row whether the operation is an idempotent no-op (returning the
// row unchanged, no audit entry) or a precondition violation.
func (r *repo) transition(
	ctx context.Context,
	id uuid.UUID,
	updateQ string,
	args []any,
	action AuditAction,
	actorID, actorName string,
	note *string,
	noop func(Flag) bool,
) (*Flag, error) {
	f, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Flag, error) {
		updated, err := repository.QueryOne(ctx, tx, updateQ, args, scanFlag)
		if err == nil {
			return updated, appendAudit(ctx, tx, id, action, actorID, actorName, note)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Flag{}, err
		}

		current, err := r.lock(ctx, tx, id)
		if err != nil {
			return Flag{}, err
		}

		if noop != nil && noop(current) {
			return current, nil
		}

		return Flag{}, fmt.Errorf("%w: status=%s notification=%s",
			ErrPrecondition, current.Status, current.Notification)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return &f, nil
}

// lock fetches a flag row FOR UPDATE within a transaction.
func (r *repo) lock(ctx context.Context, tx *sql.Tx, id uuid.UUID) (Flag, error) {
	q := fmt.Sprintf(`SELECT %s FROM flags WHERE id = $1 FOR UPDATE`, flagColumns)

	f, err := repository.QueryOne(ctx, tx, q, []any{id}, scanFlag)
	if err != nil {
		return Flag{}, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return f, nil
}

func (r *repo) attach(ctx context.Context, f *Flag) error {
	auditQ := `
		SELECT id, flag_id, action, actor_id, actor_name, note, created_at
		FROM flag_audit
		WHERE flag_id = $1
		ORDER BY id`

	trail, err := repository.QueryMany(ctx, r.db, auditQ, []any{f.ID}, scanAuditEntry)
	if err != nil {
		return fmt.Errorf("query audit trail: %w", err)
	}
	f.AuditTrail = trail

	notesQ := `
		SELECT id, flag_id, author, content, created_at
		FROM flag_notes
		WHERE flag_id = $1
		ORDER BY id`

	notes, err := repository.QueryMany(ctx, r.db, notesQ, []any{f.ID}, scanNote)
	if err != nil {
		return fmt.Errorf("query notes: %w", err)
	}
	f.Notes = notes

	return nil
}

func appendAudit(
	ctx context.Context,
	tx *sql.Tx,
	flagID uuid.UUID,
	action AuditAction,
	actorID, actorName string,
	note *string,
) error {
	insertQ := `
		INSERT INTO flag_audit(flag_id, action, actor_id, actor_name, note)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.ExecContext(ctx, insertQ, flagID, action, actorID, actorName, note); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func validateCreate(cmd CreateCommand) error {
	if cmd.ScreenshotID == uuid.Nil {
		return fmt.Errorf("%w: screenshot_id required", ErrValidation)
	}
	if cmd.FamilyID == "" || cmd.ChildID == "" {
		return fmt.Errorf("%w: family_id and child_id required", ErrValidation)
	}
	if !cmd.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, cmd.Category)
	}
	if !cmd.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrValidation, cmd.Severity)
	}
	if cmd.Confidence < 0 || cmd.Confidence > 100 {
		return fmt.Errorf("%w: confidence %d outside [0,100]", ErrValidation, cmd.Confidence)
	}
	if cmd.Suppression != nil && cmd.NotifyChild {
		return fmt.Errorf("%w: suppressed flags never notify the child", ErrValidation)
	}
	return nil
}
