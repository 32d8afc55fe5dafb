package flags

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/pkg/pagination"
)

// System defines the public contract for flag lifecycle operations.
// The lifecycle manager is the sole writer of flag state transitions.
type System interface {
	Handler() *Handler

	// Create persists a new flag. Returns ErrDuplicate when an open flag
	// already exists for the screenshot and category.
	Create(ctx context.Context, cmd CreateCommand) (*Flag, error)

	Find(ctx context.Context, id uuid.UUID) (*Flag, error)

	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Flag], error)

	// SubmitAnnotation records the child's explanation. Valid only while
	// notified and before the effective deadline; losers of the deadline
	// race get ErrPrecondition.
	SubmitAnnotation(ctx context.Context, id uuid.UUID, cmd AnnotateCommand) (*Flag, error)

	// RequestExtension grants the single 15-minute deadline extension.
	RequestExtension(ctx context.Context, id uuid.UUID) (*Flag, error)

	// Escalate transitions a notified flag past its deadline (or explicitly
	// skipped) to expired and records guardian notification. Idempotent:
	// escalating an already-escalated flag is a no-op.
	Escalate(ctx context.Context, id uuid.UUID, reason EscalationReason) (*Flag, error)

	// EscalateExpired sweeps all notified flags whose deadline passed before
	// cutoff, escalating each with reason timeout. Returns the escalated flags.
	EscalateExpired(ctx context.Context, cutoff time.Time) ([]Flag, error)

	// Release transitions a sensitive_hold flag to released so it re-enters
	// alert delivery. Idempotent for system retries; only flags whose
	// cooldown elapsed (or force=true, for authorized reviewers) release.
	Release(ctx context.Context, id uuid.UUID, actor string, force bool) (*Flag, error)

	// Releasable lists sensitive_hold flags whose cooldown elapsed at cutoff.
	Releasable(ctx context.Context, cutoff time.Time) ([]Flag, error)

	// MarkThrottled records that a released flag lost its alert slot and
	// stays dashboard-only. Idempotent for sweep retries.
	MarkThrottled(ctx context.Context, id uuid.UUID) (*Flag, error)

	// Guardian actions. Each appends one immutable audit entry and rejects
	// terminal-state replays with ErrPrecondition.
	Dismiss(ctx context.Context, id uuid.UUID, cmd ActionCommand) (*Flag, error)
	Discuss(ctx context.Context, id uuid.UUID, cmd ActionCommand) (*Flag, error)
	EscalateToReview(ctx context.Context, id uuid.UUID, cmd ActionCommand) (*Flag, error)
	Correct(ctx context.Context, id uuid.UUID, cmd CorrectCommand) (*Flag, error)
	View(ctx context.Context, id uuid.UUID, cmd ActionCommand) (*Flag, error)

	// AddNote appends a guardian note.
	AddNote(ctx context.Context, id uuid.UUID, cmd NoteCommand) (*Flag, error)

	// MarkViewed records a co-parent's view; idempotent set-union insert.
	MarkViewed(ctx context.Context, id uuid.UUID, parentID string) (*Flag, error)
}
