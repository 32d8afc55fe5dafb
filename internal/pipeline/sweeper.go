package pipeline

import (
	"context"
	"time"

	"github.com/wardlight/wardlight/internal/flags"
	"github.com/wardlight/wardlight/internal/notify"
	"github.com/wardlight/wardlight/internal/throttle"
	"github.com/wardlight/wardlight/pkg/lifecycle"
)

// Start registers the background sweeps with the lifecycle coordinator:
// escalation of notified flags past their annotation deadline, and release
// of sensitive_hold flags whose cooldown elapsed.
func (p *Pipeline) Start(lc *lifecycle.Coordinator) error {
	p.logger.Info("starting pipeline sweeps",
		"escalation_interval", p.cfg.EscalationInterval,
		"release_interval", p.cfg.ReleaseInterval,
	)

	lc.OnShutdown(func() {
		ticker := time.NewTicker(p.cfg.EscalationInterval)
		defer ticker.Stop()

		for {
			select {
			case <-lc.Context().Done():
				return
			case <-ticker.C:
				p.SweepEscalations(lc.Context())
			}
		}
	})

	lc.OnShutdown(func() {
		ticker := time.NewTicker(p.cfg.ReleaseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-lc.Context().Done():
				return
			case <-ticker.C:
				p.SweepReleases(lc.Context())
			}
		}
	})

	return nil
}

// SweepEscalations escalates every notified flag whose effective deadline
// passed, then hands the guardian notification to the sink. One pass; the
// lifecycle loop reruns it on the escalation interval.
func (p *Pipeline) SweepEscalations(ctx context.Context) {
	escalated, err := p.flags.EscalateExpired(ctx, time.Now().UTC())
	if err != nil {
		p.logger.Error("escalation sweep failed", "error", err)
		return
	}
	if len(escalated) == 0 {
		return
	}

	p.logger.Info("escalation sweep", "escalated", len(escalated))

	for _, f := range escalated {
		p.emit(ctx, notify.Event{
			Recipient:   notify.RecipientGuardian,
			RecipientID: f.FamilyID,
			FlagID:      f.ID,
			ChildID:     f.ChildID,
			Category:    f.Category,
			Severity:    f.Severity,
			Message:     "A flagged activity is ready for your review.",
		})
	}
}

// SweepReleases moves sensitive_hold flags whose cooldown elapsed back into
// delivery. Each released flag re-enters throttle admission under the level
// recorded at flag time: admitted releases alert the guardian, throttled
// ones stay dashboard-only.
func (p *Pipeline) SweepReleases(ctx context.Context) {
	now := time.Now().UTC()

	releasable, err := p.flags.Releasable(ctx, now)
	if err != nil {
		p.logger.Error("release sweep failed", "error", err)
		return
	}

	for _, f := range releasable {
		released, err := p.flags.Release(ctx, f.ID, "system", false)
		if err != nil {
			p.logger.Error("release failed", "flag_id", f.ID, "error", err)
			continue
		}
		p.redeliver(ctx, released, now)
	}

	if len(releasable) > 0 {
		p.logger.Info("release sweep", "released", len(releasable))
	}
}

// redeliver spends an alert slot for a released flag. The child annotation
// window stays skipped for sensitive content; the alert goes straight to
// the guardian.
func (p *Pipeline) redeliver(ctx context.Context, f *flags.Flag, now time.Time) {
	admitted, err := p.limiter.Admit(ctx, throttle.AdmitCommand{
		ChildID:  f.ChildID,
		FlagID:   f.ID,
		Severity: f.Severity,
		Level:    f.ThrottleLevel,
		Now:      now,
	})
	if err != nil {
		p.logger.Error("release admission failed", "flag_id", f.ID, "error", err)
		return
	}

	if !admitted.Allowed {
		if _, err := p.flags.MarkThrottled(ctx, f.ID); err != nil {
			p.logger.Error("mark released flag throttled failed", "flag_id", f.ID, "error", err)
		}
		return
	}

	p.emit(ctx, notify.Event{
		Recipient:   notify.RecipientGuardian,
		RecipientID: f.FamilyID,
		FlagID:      f.ID,
		ChildID:     f.ChildID,
		Category:    f.Category,
		Severity:    f.Severity,
		Message:     "A previously held flag is ready for your review.",
	})
}
