// Package suppression decides when a gated concern must be withheld from
// guardian visibility. Suppressed flags enter sensitive_hold: persisted for
// retention, never notified, never throttle-counted, and released back into
// delivery only after a cooldown or an explicit reviewer release.
package suppression

import (
	"time"

	"github.com/wardlight/wardlight/internal/flags"
	"github.com/wardlight/wardlight/internal/gate"
	"github.com/wardlight/wardlight/internal/taxonomy"
)

// DefaultCooldown is the hold duration applied when no reason-specific
// cooldown is configured.
const DefaultCooldown = 72 * time.Hour

// Policy computes suppression holds from gated concerns.
type Policy struct {
	defaultCooldown time.Duration
	cooldowns       map[flags.SuppressionReason]time.Duration
}

// Config holds suppression cooldown parameters.
type Config struct {
	// DefaultCooldown applies to reasons without an entry in Cooldowns.
	DefaultCooldown time.Duration
	// Cooldowns overrides the hold duration per suppression reason.
	Cooldowns map[flags.SuppressionReason]time.Duration
}

// NewPolicy creates a suppression policy from the given configuration.
func NewPolicy(cfg Config) *Policy {
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = DefaultCooldown
	}
	return &Policy{
		defaultCooldown: cfg.DefaultCooldown,
		cooldowns:       cfg.Cooldowns,
	}
}

// Evaluate decides whether the concern behind a passing gate decision must be
// suppressed. crisisAdjacent marks concerns whose capture context involved a
// crisis resource without the screenshot itself being crisis-protected.
// Returns nil when the concern may proceed to normal delivery.
//
// Self-harm and suicidal ideation suppress at any severity. Other distress
// signals suppress at medium severity and above.
func (p *Policy) Evaluate(concern gate.Concern, crisisAdjacent bool, at time.Time) *flags.SuppressionHold {
	reason, ok := p.classify(concern, crisisAdjacent)
	if !ok {
		return nil
	}

	return &flags.SuppressionHold{
		Reason:          reason,
		ReleasableAfter: at.Add(p.cooldown(reason)),
	}
}

func (p *Policy) classify(concern gate.Concern, crisisAdjacent bool) (flags.SuppressionReason, bool) {
	if !concern.Category.Distress() {
		return "", false
	}

	switch concern.Category {
	case taxonomy.ConcernSelfHarm, taxonomy.ConcernSuicidal:
		return flags.SuppressionSelfHarm, true
	}

	if crisisAdjacent {
		return flags.SuppressionCrisisURL, true
	}

	if concern.Severity == taxonomy.SeverityMedium || concern.Severity == taxonomy.SeverityHigh {
		return flags.SuppressionDistress, true
	}

	return "", false
}

func (p *Policy) cooldown(reason flags.SuppressionReason) time.Duration {
	if d, ok := p.cooldowns[reason]; ok && d > 0 {
		return d
	}
	return p.defaultCooldown
}
