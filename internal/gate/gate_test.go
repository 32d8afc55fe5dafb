package gate_test

import (
	"errors"
	"testing"

	"github.com/wardlight/wardlight/internal/gate"
	"github.com/wardlight/wardlight/internal/taxonomy"
)

func concern(category taxonomy.ConcernCategory, confidence int) gate.Concern {
	return gate.Concern{
		Category:   category,
		Severity:   taxonomy.SeverityMedium,
		Confidence: confidence,
		Reasoning:  "test detection",
	}
}

func TestEvaluateSensitivityThresholds(t *testing.T) {
	tests := []struct {
		name        string
		sensitivity taxonomy.Sensitivity
		confidence  int
		want        bool
	}{
		{"sensitive passes at 60", taxonomy.SensitivitySensitive, 60, true},
		{"sensitive fails at 59", taxonomy.SensitivitySensitive, 59, false},
		{"balanced passes at 75", taxonomy.SensitivityBalanced, 75, true},
		{"balanced fails at 74", taxonomy.SensitivityBalanced, 74, false},
		{"relaxed passes at 90", taxonomy.SensitivityRelaxed, 90, true},
		{"relaxed fails at 89", taxonomy.SensitivityRelaxed, 89, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := gate.Evaluate(
				concern(taxonomy.ConcernViolence, tt.confidence),
				gate.Settings{Sensitivity: tt.sensitivity},
			)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if d.Passed != tt.want {
				t.Errorf("Passed = %v, want %v (threshold %d)", d.Passed, tt.want, d.Threshold)
			}
		})
	}
}

func TestEvaluateSafetyFloor(t *testing.T) {
	// Raw confidence at the safety floor passes under every configuration,
	// including hostile category overrides and approvals.
	settings := gate.Settings{
		Sensitivity: taxonomy.SensitivityRelaxed,
		CategoryThresholds: map[taxonomy.ConcernCategory]int{
			taxonomy.ConcernViolence: 100,
		},
		Approvals: map[taxonomy.ConcernCategory]taxonomy.Approval{
			taxonomy.ConcernViolence: taxonomy.ApprovalApproved,
		},
		BiasAdjustments: map[taxonomy.ConcernCategory]int{
			taxonomy.ConcernViolence: 50,
		},
	}

	d, err := gate.Evaluate(concern(taxonomy.ConcernViolence, gate.AlwaysFlagThreshold), settings)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !d.SafetyOverride {
		t.Error("expected SafetyOverride at the floor")
	}
	if !d.Passed {
		t.Error("safety floor must pass under every configuration")
	}
}

func TestEvaluateSafetyFloorUsesRawConfidence(t *testing.T) {
	// Approval deltas shift the compared confidence but never disarm the floor.
	settings := gate.Settings{
		Sensitivity: taxonomy.SensitivityBalanced,
		Approvals: map[taxonomy.ConcernCategory]taxonomy.Approval{
			taxonomy.ConcernWeapons: taxonomy.ApprovalApproved,
		},
	}

	d, err := gate.Evaluate(concern(taxonomy.ConcernWeapons, 96), settings)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.AdjustedConfidence != 76 {
		t.Errorf("AdjustedConfidence = %d, want 76", d.AdjustedConfidence)
	}
	if !d.Passed {
		t.Error("raw confidence above the floor must pass despite the approval delta")
	}
}

func TestEvaluateCategoryOverride(t *testing.T) {
	settings := gate.Settings{
		Sensitivity: taxonomy.SensitivityBalanced,
		CategoryThresholds: map[taxonomy.ConcernCategory]int{
			taxonomy.ConcernGambling: 50,
		},
	}

	d, err := gate.Evaluate(concern(taxonomy.ConcernGambling, 55), settings)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Threshold != 50 {
		t.Errorf("Threshold = %d, want override 50", d.Threshold)
	}
	if !d.Passed {
		t.Error("expected pass against the category override")
	}
}

func TestEvaluateApprovalDeltas(t *testing.T) {
	tests := []struct {
		name     string
		approval taxonomy.Approval
		want     int
	}{
		{"approved lowers confidence", taxonomy.ApprovalApproved, 50},
		{"disapproved raises confidence", taxonomy.ApprovalDisapproved, 85},
		{"neutral leaves confidence", taxonomy.ApprovalNeutral, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := gate.Settings{
				Sensitivity: taxonomy.SensitivityBalanced,
				Approvals: map[taxonomy.ConcernCategory]taxonomy.Approval{
					taxonomy.ConcernSubstanceUse: tt.approval,
				},
			}

			d, err := gate.Evaluate(concern(taxonomy.ConcernSubstanceUse, 70), settings)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if d.AdjustedConfidence != tt.want {
				t.Errorf("AdjustedConfidence = %d, want %d", d.AdjustedConfidence, tt.want)
			}
		})
	}
}

func TestEvaluateBiasShiftsThreshold(t *testing.T) {
	settings := gate.Settings{
		Sensitivity: taxonomy.SensitivityBalanced,
		BiasAdjustments: map[taxonomy.ConcernCategory]int{
			taxonomy.ConcernViolence: 10,
		},
	}

	d, err := gate.Evaluate(concern(taxonomy.ConcernViolence, 80), settings)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Threshold != 85 {
		t.Errorf("Threshold = %d, want 85 (75 + 10)", d.Threshold)
	}
	if d.Passed {
		t.Error("expected fail against the bias-raised threshold")
	}
}

func TestEvaluateClampsAdjustments(t *testing.T) {
	settings := gate.Settings{
		Sensitivity: taxonomy.SensitivityRelaxed,
		BiasAdjustments: map[taxonomy.ConcernCategory]int{
			taxonomy.ConcernViolence: 50,
		},
	}

	d, err := gate.Evaluate(concern(taxonomy.ConcernViolence, 10), settings)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Threshold != 100 {
		t.Errorf("Threshold = %d, want clamp at 100", d.Threshold)
	}
}

func TestEvaluateInvalidConcern(t *testing.T) {
	tests := []struct {
		name string
		c    gate.Concern
	}{
		{"confidence above range", concern(taxonomy.ConcernViolence, 101)},
		{"confidence below range", concern(taxonomy.ConcernViolence, -1)},
		{"unknown category", gate.Concern{Category: "Mystery", Severity: taxonomy.SeverityLow, Confidence: 80}},
		{"unknown severity", gate.Concern{Category: taxonomy.ConcernViolence, Severity: "extreme", Confidence: 80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := gate.Evaluate(tt.c, gate.Settings{Sensitivity: taxonomy.SensitivityBalanced}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEvaluateConfidenceRangeError(t *testing.T) {
	_, err := gate.Evaluate(concern(taxonomy.ConcernViolence, 150), gate.Settings{})
	if !errors.Is(err, gate.ErrInvalidConfidence) {
		t.Errorf("error = %v, want ErrInvalidConfidence", err)
	}
}

func TestFilterDiscardsFailing(t *testing.T) {
	concerns := []gate.Concern{
		concern(taxonomy.ConcernViolence, 80),
		concern(taxonomy.ConcernGambling, 40),
		concern(taxonomy.ConcernWeapons, 97),
	}

	passed, err := gate.Filter(concerns, gate.Settings{Sensitivity: taxonomy.SensitivityBalanced})
	if err != nil {
		t.Fatalf("Filter() error = %v", err)
	}
	if len(passed) != 2 {
		t.Fatalf("passed = %d decisions, want 2", len(passed))
	}
	if passed[0].Concern.Category != taxonomy.ConcernViolence {
		t.Errorf("first pass = %s, want Violence", passed[0].Concern.Category)
	}
	if passed[1].Concern.Category != taxonomy.ConcernWeapons {
		t.Errorf("second pass = %s, want Weapons", passed[1].Concern.Category)
	}
}

func TestFilterFailsWholeBatchOnInvalidInput(t *testing.T) {
	concerns := []gate.Concern{
		concern(taxonomy.ConcernViolence, 99),
		concern(taxonomy.ConcernWeapons, 101),
	}

	if _, err := gate.Filter(concerns, gate.Settings{Sensitivity: taxonomy.SensitivityBalanced}); err == nil {
		t.Error("expected batch failure for invalid concern")
	}
}
