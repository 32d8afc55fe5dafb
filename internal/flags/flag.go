// Package flags implements the flag lifecycle domain: the persisted record of
// a concern that passed every gate, tracked through child annotation, review,
// escalation, and guardian actions. Flags are never hard-deleted; status
// encodes logical resolution and every mutation is an append or a guarded
// transition.
package flags

import (
	"time"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/taxonomy"
)

const (
	// AnnotationWindow is the time a notified child has to explain a flag.
	AnnotationWindow = 30 * time.Minute
	// ExtensionWindow is the single extension a child may request.
	ExtensionWindow = 15 * time.Minute

	// MaxExplanationLen bounds a child's explanation text.
	MaxExplanationLen = 500
	// MaxNoteLen bounds a guardian note.
	MaxNoteLen = 2000
)

// Status is the guardian-facing lifecycle state of a flag.
type Status string

const (
	StatusPending       Status = "pending"
	StatusSensitiveHold Status = "sensitive_hold"
	StatusReviewed      Status = "reviewed"
	StatusDismissed     Status = "dismissed"
	StatusReleased      Status = "released"
)

// Open reports whether the flag still awaits guardian resolution.
// The one-open-flag-per-screenshot+category invariant is enforced over
// open statuses only.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusSensitiveHold || s == StatusReleased
}

// NotificationStatus tracks the child-facing notification lifecycle,
// independent of guardian-facing Status.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationNotified  NotificationStatus = "notified"
	NotificationSkipped   NotificationStatus = "skipped"
	NotificationAnnotated NotificationStatus = "annotated"
	NotificationExpired   NotificationStatus = "expired"
)

// SuppressionReason explains why a flag entered sensitive_hold.
type SuppressionReason string

const (
	SuppressionSelfHarm   SuppressionReason = "self_harm_detected"
	SuppressionCrisisURL  SuppressionReason = "crisis_url_visited"
	SuppressionDistress   SuppressionReason = "distress_signals"
)

// EscalationReason explains why a flag escalated to the guardian.
type EscalationReason string

const (
	EscalationTimeout EscalationReason = "timeout"
	EscalationSkipped EscalationReason = "skipped"
)

// AnnotationOption is the child's selected explanation for flagged content.
type AnnotationOption string

const (
	AnnotationSchoolwork AnnotationOption = "schoolwork"
	AnnotationAccident   AnnotationOption = "accident"
	AnnotationCuriosity  AnnotationOption = "curiosity"
	AnnotationOtherText  AnnotationOption = "other"
	AnnotationSkip       AnnotationOption = "skip"
)

// Valid reports whether o is a recognized annotation option.
func (o AnnotationOption) Valid() bool {
	switch o {
	case AnnotationSchoolwork, AnnotationAccident, AnnotationCuriosity,
		AnnotationOtherText, AnnotationSkip:
		return true
	}
	return false
}

// AuditAction names an entry in a flag's append-only audit trail.
type AuditAction string

const (
	AuditCreated            AuditAction = "created"
	AuditSuppressed         AuditAction = "suppressed"
	AuditThrottled          AuditAction = "throttled"
	AuditChildNotified      AuditAction = "child_notified"
	AuditAnnotated          AuditAction = "annotated"
	AuditExtensionRequested AuditAction = "extension_requested"
	AuditEscalated          AuditAction = "escalated"
	AuditReleased           AuditAction = "released"
	AuditDismissed          AuditAction = "dismissed"
	AuditDiscussed          AuditAction = "discussed"
	AuditCorrected          AuditAction = "corrected"
	AuditViewed             AuditAction = "viewed"
	AuditNoteAdded          AuditAction = "note_added"
)

// AuditEntry is one immutable record in a flag's audit trail.
type AuditEntry struct {
	ID        int64       `json:"id"`
	FlagID    uuid.UUID   `json:"flag_id"`
	Action    AuditAction `json:"action"`
	ActorID   string      `json:"actor_id"`
	ActorName string      `json:"actor_name"`
	Note      *string     `json:"note,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Note is a guardian-authored note attached to a flag.
type Note struct {
	ID        int64     `json:"id"`
	FlagID    uuid.UUID `json:"flag_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Flag is the persisted flag document. Optional transition fields are
// pointers; the repository's conditional updates guarantee they are only
// populated in the states that own them.
type Flag struct {
	ID           uuid.UUID                `json:"id"`
	ScreenshotID uuid.UUID                `json:"screenshot_id"`
	FamilyID     string                   `json:"family_id"`
	ChildID      string                   `json:"child_id"`
	Category     taxonomy.ConcernCategory `json:"category"`
	Severity     taxonomy.Severity        `json:"severity"`
	Confidence   int                      `json:"confidence"`
	Adjusted     int                      `json:"adjusted_confidence"`
	Reasoning    string                   `json:"reasoning"`

	Status            Status             `json:"status"`
	SuppressionReason *SuppressionReason `json:"suppression_reason,omitempty"`
	ReleasableAfter   *time.Time         `json:"releasable_after,omitempty"`
	Throttled         bool               `json:"throttled"`
	// ThrottleLevel is the family's alert budget at flag time. Released
	// holds re-enter throttle admission under this level.
	ThrottleLevel taxonomy.ThrottleLevel `json:"throttle_level"`

	Notification       NotificationStatus `json:"child_notification_status"`
	ChildNotifiedAt    *time.Time         `json:"child_notified_at,omitempty"`
	AnnotationDeadline *time.Time         `json:"annotation_deadline,omitempty"`
	ExtensionDeadline  *time.Time         `json:"extension_deadline,omitempty"`
	AnnotatedAt        *time.Time         `json:"annotated_at,omitempty"`
	ChildAnnotation    *AnnotationOption  `json:"child_annotation,omitempty"`
	ChildExplanation   *string            `json:"child_explanation,omitempty"`

	EscalatedAt      *time.Time        `json:"escalated_at,omitempty"`
	EscalationReason *EscalationReason `json:"escalation_reason,omitempty"`
	ParentNotifiedAt *time.Time        `json:"parent_notified_at,omitempty"`

	CorrectedCategory  *taxonomy.ConcernCategory `json:"corrected_category,omitempty"`
	CorrectionParentID *string                   `json:"correction_parent_id,omitempty"`
	CorrectedAt        *time.Time                `json:"corrected_at,omitempty"`

	ViewedBy []string `json:"viewed_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AuditTrail []AuditEntry `json:"audit_trail,omitempty"`
	Notes      []Note       `json:"notes,omitempty"`
}

// Deadline returns the effective annotation deadline, preferring the
// extension when one was granted.
func (f *Flag) Deadline() *time.Time {
	if f.ExtensionDeadline != nil {
		return f.ExtensionDeadline
	}
	return f.AnnotationDeadline
}

// SuppressionHold carries the suppression decision into flag creation.
// It is the only path into sensitive_hold.
type SuppressionHold struct {
	Reason          SuppressionReason `json:"reason"`
	ReleasableAfter time.Time         `json:"releasable_after"`
}

// CreateCommand carries the data needed to persist a new flag.
type CreateCommand struct {
	// ID, when set, fixes the flag identity ahead of insertion so callers
	// can key related state (throttle admission) on it. Zero generates one.
	ID           uuid.UUID                `json:"id,omitempty"`
	ScreenshotID uuid.UUID                `json:"screenshot_id"`
	FamilyID     string                   `json:"family_id"`
	ChildID      string                   `json:"child_id"`
	Category     taxonomy.ConcernCategory `json:"category"`
	Severity     taxonomy.Severity        `json:"severity"`
	Confidence   int                      `json:"confidence"`
	Adjusted     int                      `json:"adjusted_confidence"`
	Reasoning    string                   `json:"reasoning"`

	// Suppression, when set, creates the flag in sensitive_hold with
	// notification skipped. Mutually exclusive with NotifyChild.
	Suppression *SuppressionHold `json:"suppression,omitempty"`
	// Throttled marks the flag dashboard-only: persisted as pending but
	// withheld from interruptive delivery.
	Throttled bool `json:"throttled"`
	// ThrottleLevel records the family's alert budget. Empty defaults to
	// standard.
	ThrottleLevel taxonomy.ThrottleLevel `json:"throttle_level,omitempty"`
	// NotifyChild opens the child annotation window immediately.
	NotifyChild bool `json:"notify_child"`
}

// AnnotateCommand carries a child's annotation submission.
type AnnotateCommand struct {
	Option      AnnotationOption `json:"option"`
	Explanation *string          `json:"explanation,omitempty"`
}

// CorrectCommand carries a guardian's category correction.
type CorrectCommand struct {
	CorrectedCategory taxonomy.ConcernCategory `json:"corrected_category"`
	ParentID          string                   `json:"parent_id"`
	ParentName        string                   `json:"parent_name"`
	// ShareAnonymized forwards the family's aggregation consent to the
	// bias tuner.
	ShareAnonymized bool `json:"share_anonymized"`
}

// ActionCommand identifies the guardian performing a lifecycle action.
type ActionCommand struct {
	ParentID   string  `json:"parent_id"`
	ParentName string  `json:"parent_name"`
	Note       *string `json:"note,omitempty"`
}

// NoteCommand carries a guardian note.
type NoteCommand struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}
