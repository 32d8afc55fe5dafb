// Package throttle caps daily guardian-facing alerts per child. Admission is
// strictly arrival-ordered and atomic per (child, date); re-admitting a flag
// already in the day's dedup set is a no-op so at-least-once job delivery
// never overcounts.
package throttle

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/taxonomy"
)

// State is the persisted throttle counter for one child on one calendar
// date. A new date gets a fresh row, which is what resets the counters.
type State struct {
	ChildID        string                    `json:"child_id"`
	Date           string                    `json:"date"`
	AlertsSent     int                       `json:"alerts_sent_today"`
	ThrottledToday int                       `json:"throttled_today"`
	SeverityCounts map[taxonomy.Severity]int `json:"severity_counts"`
	AlertedFlagIDs []uuid.UUID               `json:"alerted_flag_ids"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// Alerted reports whether the flag is already in the day's dedup set.
func (s *State) Alerted(flagID uuid.UUID) bool {
	return slices.Contains(s.AlertedFlagIDs, flagID)
}

// Admit applies one admission decision to the day's counters. Flags already
// in the dedup set are reported deduped and leave the state unchanged;
// otherwise the flag either takes an alert slot or counts as throttled.
func (s *State) Admit(cmd AdmitCommand) (allowed, deduped bool) {
	if s.Alerted(cmd.FlagID) {
		return true, true
	}

	limit := cmd.Level.Limit()
	if limit >= 0 && s.AlertsSent >= limit {
		s.ThrottledToday++
		return false, false
	}

	s.AlertsSent++
	if s.SeverityCounts == nil {
		s.SeverityCounts = map[taxonomy.Severity]int{}
	}
	s.SeverityCounts[cmd.Severity]++
	s.AlertedFlagIDs = append(s.AlertedFlagIDs, cmd.FlagID)
	return true, false
}

// Forget reverses a prior admission, removing the flag from the dedup set
// and returning its alert slot. Flags never admitted are a no-op.
func (s *State) Forget(cmd AdmitCommand) bool {
	idx := slices.Index(s.AlertedFlagIDs, cmd.FlagID)
	if idx < 0 {
		return false
	}

	s.AlertedFlagIDs = slices.Delete(s.AlertedFlagIDs, idx, idx+1)
	if s.AlertsSent > 0 {
		s.AlertsSent--
	}
	if s.SeverityCounts[cmd.Severity] > 0 {
		s.SeverityCounts[cmd.Severity]--
	}
	return true
}

// AdmitCommand carries the data needed to request an alert slot.
type AdmitCommand struct {
	ChildID  string            `json:"child_id"`
	FlagID   uuid.UUID         `json:"flag_id"`
	Severity taxonomy.Severity `json:"severity"`
	Level    taxonomy.ThrottleLevel
	// Now is the admission instant; its calendar date keys the state row.
	Now time.Time
}

// DateKey formats the admission date as the state row key.
func (c AdmitCommand) DateKey() string {
	return c.Now.UTC().Format("2006-01-02")
}

// Outcome records an admission decision.
type Outcome struct {
	// Allowed is true when the alert may be delivered immediately.
	Allowed bool `json:"allowed"`
	// Deduped is true when the flag was already admitted today; the
	// admission was a no-op and counters are unchanged.
	Deduped bool `json:"deduped"`
	// State is the throttle state after the decision.
	State State `json:"state"`
}
