package throttle

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/pkg/repository"
)

func scanState(s repository.Scanner) (State, error) {
	var st State
	var severityRaw, alertedRaw []byte

	err := s.Scan(
		&st.ChildID,
		&st.Date,
		&st.AlertsSent,
		&st.ThrottledToday,
		&severityRaw,
		&alertedRaw,
		&st.UpdatedAt,
	)
	if err != nil {
		return st, err
	}

	if len(severityRaw) > 0 {
		if err := json.Unmarshal(severityRaw, &st.SeverityCounts); err != nil {
			return st, fmt.Errorf("unmarshal severity_counts: %w", err)
		}
	}
	if st.SeverityCounts == nil {
		st.SeverityCounts = map[taxonomy.Severity]int{}
	}

	if len(alertedRaw) > 0 {
		if err := json.Unmarshal(alertedRaw, &st.AlertedFlagIDs); err != nil {
			return st, fmt.Errorf("unmarshal alerted_flag_ids: %w", err)
		}
	}
	if st.AlertedFlagIDs == nil {
		st.AlertedFlagIDs = []uuid.UUID{}
	}

	return st, nil
}
