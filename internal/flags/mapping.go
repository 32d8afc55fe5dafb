package flags

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/pkg/query"
	"github.com/wardlight/wardlight/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "flags", "f").
	Project("id", "ID").
	Project("screenshot_id", "ScreenshotID").
	Project("family_id", "FamilyID").
	Project("child_id", "ChildID").
	Project("category", "Category").
	Project("severity", "Severity").
	Project("confidence", "Confidence").
	Project("adjusted_confidence", "Adjusted").
	Project("reasoning", "Reasoning").
	Project("status", "Status").
	Project("suppression_reason", "SuppressionReason").
	Project("releasable_after", "ReleasableAfter").
	Project("throttled", "Throttled").
	Project("throttle_level", "ThrottleLevel").
	Project("child_notification_status", "Notification").
	Project("child_notified_at", "ChildNotifiedAt").
	Project("annotation_deadline", "AnnotationDeadline").
	Project("extension_deadline", "ExtensionDeadline").
	Project("annotated_at", "AnnotatedAt").
	Project("child_annotation", "ChildAnnotation").
	Project("child_explanation", "ChildExplanation").
	Project("escalated_at", "EscalatedAt").
	Project("escalation_reason", "EscalationReason").
	Project("parent_notified_at", "ParentNotifiedAt").
	Project("corrected_category", "CorrectedCategory").
	Project("correction_parent_id", "CorrectionParentID").
	Project("corrected_at", "CorrectedAt").
	Project("viewed_by", "ViewedBy").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for flag queries.
// Nil fields are ignored. All fields use exact matching.
type Filters struct {
	FamilyID     *string                   `json:"family_id,omitempty"`
	ChildID      *string                   `json:"child_id,omitempty"`
	ScreenshotID *uuid.UUID                `json:"screenshot_id,omitempty"`
	Status       *Status                   `json:"status,omitempty"`
	Category     *taxonomy.ConcernCategory `json:"category,omitempty"`
	Severity     *taxonomy.Severity        `json:"severity,omitempty"`
	Throttled    *bool                     `json:"throttled,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("FamilyID", f.FamilyID).
		WhereEquals("ChildID", f.ChildID).
		WhereEquals("ScreenshotID", f.ScreenshotID).
		WhereEquals("Status", f.Status).
		WhereEquals("Category", f.Category).
		WhereEquals("Severity", f.Severity).
		WhereEquals("Throttled", f.Throttled)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("family_id"); v != "" {
		f.FamilyID = &v
	}
	if v := values.Get("child_id"); v != "" {
		f.ChildID = &v
	}
	if v := values.Get("screenshot_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			f.ScreenshotID = &id
		}
	}
	if v := values.Get("status"); v != "" {
		status := Status(v)
		f.Status = &status
	}
	if v := values.Get("category"); v != "" {
		category := taxonomy.ConcernCategory(v)
		f.Category = &category
	}
	if v := values.Get("severity"); v != "" {
		severity := taxonomy.Severity(v)
		f.Severity = &severity
	}
	if v := values.Get("throttled"); v != "" {
		throttled := v == "true"
		f.Throttled = &throttled
	}

	return f
}

func scanFlag(s repository.Scanner) (Flag, error) {
	var f Flag
	var viewedRaw []byte

	err := s.Scan(
		&f.ID,
		&f.ScreenshotID,
		&f.FamilyID,
		&f.ChildID,
		&f.Category,
		&f.Severity,
		&f.Confidence,
		&f.Adjusted,
		&f.Reasoning,
		&f.Status,
		&f.SuppressionReason,
		&f.ReleasableAfter,
		&f.Throttled,
		&f.ThrottleLevel,
		&f.Notification,
		&f.ChildNotifiedAt,
		&f.AnnotationDeadline,
		&f.ExtensionDeadline,
		&f.AnnotatedAt,
		&f.ChildAnnotation,
		&f.ChildExplanation,
		&f.EscalatedAt,
		&f.EscalationReason,
		&f.ParentNotifiedAt,
		&f.CorrectedCategory,
		&f.CorrectionParentID,
		&f.CorrectedAt,
		&viewedRaw,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return f, err
	}

	if len(viewedRaw) > 0 {
		if err := json.Unmarshal(viewedRaw, &f.ViewedBy); err != nil {
			return f, fmt.Errorf("unmarshal viewed_by: %w", err)
		}
	}
	if f.ViewedBy == nil {
		f.ViewedBy = []string{}
	}

	return f, nil
}

func scanAuditEntry(s repository.Scanner) (AuditEntry, error) {
	var e AuditEntry

	err := s.Scan(
		&e.ID,
		&e.FlagID,
		&e.Action,
		&e.ActorID,
		&e.ActorName,
		&e.Note,
		&e.Timestamp,
	)

	return e, err
}

func scanNote(s repository.Scanner) (Note, error) {
	var n Note

	err := s.Scan(
		&n.ID,
		&n.FlagID,
		&n.Author,
		&n.Content,
		&n.CreatedAt,
	)

	return n, err
}
