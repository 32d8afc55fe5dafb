// Package taxonomy defines the fixed category, severity, and sensitivity
// vocabularies shared by the classification and flagging pipeline. The
// taxonomy is versioned so stored results can be interpreted after the
// vocabulary evolves.
package taxonomy

// Version identifies the taxonomy revision stamped onto classification results.
const Version = "2025.2"

// Category is a topical classification of screenshot content.
type Category string

const (
	CategoryEducation     Category = "Education"
	CategoryEntertainment Category = "Entertainment"
	CategorySocialMedia   Category = "Social Media"
	CategoryGaming        Category = "Gaming"
	CategoryOther         Category = "Other"
)

// ConcernCategory is a detected category of potentially troubling content,
// distinct from topical classification.
type ConcernCategory string

const (
	ConcernViolence       ConcernCategory = "Violence"
	ConcernAdultContent   ConcernCategory = "Adult Content"
	ConcernSubstanceUse   ConcernCategory = "Substance Use"
	ConcernBullying       ConcernCategory = "Bullying"
	ConcernHateSpeech     ConcernCategory = "Hate Speech"
	ConcernWeapons        ConcernCategory = "Weapons"
	ConcernGambling       ConcernCategory = "Gambling"
	ConcernSelfHarm       ConcernCategory = "Self-Harm"
	ConcernSuicidal       ConcernCategory = "Suicidal Ideation"
	ConcernEatingDisorder ConcernCategory = "Eating Disorder"
	ConcernDistress       ConcernCategory = "Distress"
)

// ConcernCategories lists every recognized concern category.
var ConcernCategories = []ConcernCategory{
	ConcernViolence,
	ConcernAdultContent,
	ConcernSubstanceUse,
	ConcernBullying,
	ConcernHateSpeech,
	ConcernWeapons,
	ConcernGambling,
	ConcernSelfHarm,
	ConcernSuicidal,
	ConcernEatingDisorder,
	ConcernDistress,
}

// Valid reports whether c is a recognized concern category.
func (c ConcernCategory) Valid() bool {
	for _, known := range ConcernCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Distress reports whether c indicates self-harm or another distress signal
// that must be withheld from guardians pending review.
func (c ConcernCategory) Distress() bool {
	switch c {
	case ConcernSelfHarm, ConcernSuicidal, ConcernEatingDisorder, ConcernDistress:
		return true
	}
	return false
}

// Severity grades how serious a detected concern is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a recognized severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Sensitivity selects the global confidence threshold families monitor at.
type Sensitivity string

const (
	SensitivitySensitive Sensitivity = "sensitive"
	SensitivityBalanced  Sensitivity = "balanced"
	SensitivityRelaxed   Sensitivity = "relaxed"
)

// Threshold returns the global gate threshold for the sensitivity level.
// Unknown values fall back to the balanced threshold.
func (s Sensitivity) Threshold() int {
	switch s {
	case SensitivitySensitive:
		return 60
	case SensitivityRelaxed:
		return 90
	default:
		return 75
	}
}

// ThrottleLevel selects the daily guardian-facing alert budget per child.
type ThrottleLevel string

const (
	ThrottleMinimal  ThrottleLevel = "minimal"
	ThrottleStandard ThrottleLevel = "standard"
	ThrottleDetailed ThrottleLevel = "detailed"
	ThrottleAll      ThrottleLevel = "all"
)

// Limit returns the daily alert cap for the throttle level, or -1 for
// unbounded delivery.
func (t ThrottleLevel) Limit() int {
	switch t {
	case ThrottleMinimal:
		return 1
	case ThrottleStandard:
		return 3
	case ThrottleDetailed:
		return 5
	case ThrottleAll:
		return -1
	default:
		return 3
	}
}

// Approval is a guardian's standing preference for an app or category.
type Approval string

const (
	ApprovalApproved    Approval = "approved"
	ApprovalDisapproved Approval = "disapproved"
	ApprovalNeutral     Approval = "neutral"
)

// ConfidenceDelta returns the adjustment applied to a concern's confidence
// before gating: approved content is trusted more, disapproved less.
func (a Approval) ConfidenceDelta() int {
	switch a {
	case ApprovalApproved:
		return -20
	case ApprovalDisapproved:
		return 15
	default:
		return 0
	}
}
