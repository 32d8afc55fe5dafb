// Package pipeline orchestrates the decision stages for captured screenshots:
// classification (with the crisis short-circuit), family-tuned confidence
// gating, distress suppression, alert throttling, and flag creation. Each
// stage owns its own state; the pipeline only sequences them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wardlight/wardlight/internal/bias"
	"github.com/wardlight/wardlight/internal/classifier"
	"github.com/wardlight/wardlight/internal/flags"
	"github.com/wardlight/wardlight/internal/gate"
	"github.com/wardlight/wardlight/internal/notify"
	"github.com/wardlight/wardlight/internal/suppression"
	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/internal/throttle"
)

// DefaultConcurrency bounds batch fan-out when the config leaves it unset.
const DefaultConcurrency = 4

// FamilySettings carries the per-family monitoring configuration delivered
// with each job. Profile storage lives upstream; the pipeline only consumes
// the resolved values.
type FamilySettings struct {
	Sensitivity        taxonomy.Sensitivity                          `json:"sensitivity"`
	ThrottleLevel      taxonomy.ThrottleLevel                        `json:"throttle_level"`
	CategoryThresholds map[taxonomy.ConcernCategory]int              `json:"category_thresholds,omitempty"`
	Approvals          map[taxonomy.ConcernCategory]taxonomy.Approval `json:"approvals,omitempty"`
}

// Job is a single screenshot awaiting a decision.
type Job struct {
	ScreenshotID uuid.UUID          `json:"screenshot_id"`
	ImageKey     string             `json:"image_key"`
	FamilyID     string             `json:"family_id"`
	ChildID      string             `json:"child_id"`
	Context      classifier.Context `json:"context"`
	Settings     FamilySettings     `json:"settings"`
	// RecentCrisisVisit marks captures whose surrounding activity touched a
	// crisis resource without this screenshot itself being protected.
	RecentCrisisVisit bool `json:"recent_crisis_visit"`
}

// Validate rejects jobs missing required identities.
func (j Job) Validate() error {
	if j.ScreenshotID == uuid.Nil {
		return fmt.Errorf("%w: screenshot_id is required", ErrInvalidJob)
	}
	if j.ImageKey == "" {
		return fmt.Errorf("%w: image_key is required", ErrInvalidJob)
	}
	if j.FamilyID == "" || j.ChildID == "" {
		return fmt.Errorf("%w: family_id and child_id are required", ErrInvalidJob)
	}
	return nil
}

// ErrInvalidJob indicates a job that cannot enter the pipeline.
var ErrInvalidJob = errors.New("invalid pipeline job")

// Outcome summarizes one pass through the pipeline.
type Outcome struct {
	Classification *classifier.Result `json:"classification"`
	// Decisions are the gate results for every raw concern, passing or not.
	Decisions []gate.Decision `json:"decisions"`
	// Flags are the records created this pass, including suppressed and
	// throttled ones.
	Flags []flags.Flag `json:"flags"`
}

// Config holds pipeline runtime parameters.
type Config struct {
	// Concurrency bounds simultaneous screenshot processing in ProcessBatch.
	Concurrency int
	// EscalationInterval is how often the escalation sweep runs.
	EscalationInterval time.Duration
	// ReleaseInterval is how often elapsed suppression holds are released.
	ReleaseInterval time.Duration
}

// Pipeline wires the decision stages together.
type Pipeline struct {
	cfg         Config
	classifiers classifier.System
	tuner       bias.System
	policy      *suppression.Policy
	audits      suppression.Recorder
	limiter     throttle.System
	flags       flags.System
	sink        notify.Sink
	logger      *slog.Logger
}

// New creates the pipeline orchestrator.
func New(
	cfg Config,
	classifiers classifier.System,
	tuner bias.System,
	policy *suppression.Policy,
	audits suppression.Recorder,
	limiter throttle.System,
	flagSys flags.System,
	sink notify.Sink,
	logger *slog.Logger,
) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.EscalationInterval <= 0 {
		cfg.EscalationInterval = time.Minute
	}
	if cfg.ReleaseInterval <= 0 {
		cfg.ReleaseInterval = 5 * time.Minute
	}

	return &Pipeline{
		cfg:         cfg,
		classifiers: classifiers,
		tuner:       tuner,
		policy:      policy,
		audits:      audits,
		limiter:     limiter,
		flags:       flagSys,
		sink:        sink,
		logger:      logger.With("system", "pipeline"),
	}
}

// Process runs one screenshot through every stage. It is at-least-once
// tolerant: re-delivered jobs find a terminal classification and stop, and
// duplicate flags are absorbed by the open-flag uniqueness constraint.
func (p *Pipeline) Process(ctx context.Context, job Job) (*Outcome, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	result, concerns, err := p.classifiers.Process(ctx, classifier.Job{
		ScreenshotID: job.ScreenshotID,
		ImageKey:     job.ImageKey,
		Context:      job.Context,
	})
	if err != nil {
		if errors.Is(err, classifier.ErrExhausted) && result != nil {
			// Terminal failure is a recorded outcome, not a pipeline error.
			return &Outcome{Classification: result}, nil
		}
		return nil, fmt.Errorf("classify screenshot %s: %w", job.ScreenshotID, err)
	}

	outcome := &Outcome{Classification: result}
	if result.CrisisProtected || len(concerns) == 0 {
		return outcome, nil
	}

	settings, err := p.settings(ctx, job)
	if err != nil {
		return nil, err
	}

	decisions := make([]gate.Decision, 0, len(concerns))
	for _, c := range concerns {
		d, err := gate.Evaluate(c, settings)
		if err != nil {
			return nil, fmt.Errorf("gate screenshot %s: %w", job.ScreenshotID, err)
		}
		decisions = append(decisions, d)
	}
	outcome.Decisions = decisions

	for _, d := range decisions {
		if !d.Passed {
			continue
		}

		f, err := p.deliver(ctx, job, d)
		if err != nil {
			if errors.Is(err, flags.ErrDuplicate) {
				p.logger.Info("open flag already exists",
					"screenshot_id", job.ScreenshotID,
					"category", d.Concern.Category,
				)
				continue
			}
			return nil, err
		}
		outcome.Flags = append(outcome.Flags, *f)
	}

	return outcome, nil
}

// ProcessBatch fans a batch out across a bounded worker group. Individual
// job failures do not cancel the rest of the batch; the first error is
// returned after all jobs finish.
func (p *Pipeline) ProcessBatch(ctx context.Context, jobs []Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	var firstErr error
	var mu sync.Mutex

	for i, job := range jobs {
		g.Go(func() error {
			out, err := p.Process(ctx, job)
			if err != nil {
				p.logger.Error("pipeline job failed",
					"screenshot_id", job.ScreenshotID,
					"error", err,
				)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			outcomes[i] = *out
			return nil
		})
	}

	_ = g.Wait()
	return outcomes, firstErr
}

// settings resolves the effective gate settings for the job's family,
// including active bias adjustments. Bias lookup failures degrade to
// untuned gating rather than stalling the pipeline.
func (p *Pipeline) settings(ctx context.Context, job Job) (gate.Settings, error) {
	adjustments, err := p.tuner.Adjustments(ctx, job.FamilyID)
	if err != nil {
		p.logger.Warn("bias adjustments unavailable",
			"family_id", job.FamilyID,
			"error", err,
		)
		adjustments = nil
	}

	return gate.Settings{
		Sensitivity:        job.Settings.Sensitivity,
		CategoryThresholds: job.Settings.CategoryThresholds,
		Approvals:          job.Settings.Approvals,
		BiasAdjustments:    adjustments,
	}, nil
}

// deliver runs the suppression and throttle stages for a passing decision
// and persists the flag.
func (p *Pipeline) deliver(ctx context.Context, job Job, d gate.Decision) (*flags.Flag, error) {
	now := time.Now().UTC()

	cmd := flags.CreateCommand{
		ID:            uuid.New(),
		ScreenshotID:  job.ScreenshotID,
		FamilyID:      job.FamilyID,
		ChildID:       job.ChildID,
		Category:      d.Concern.Category,
		Severity:      d.Concern.Severity,
		Confidence:    d.Concern.Confidence,
		Adjusted:      d.AdjustedConfidence,
		Reasoning:     d.Concern.Reasoning,
		ThrottleLevel: job.Settings.ThrottleLevel,
	}

	hold := p.policy.Evaluate(d.Concern, job.RecentCrisisVisit, now)
	if hold != nil {
		cmd.Suppression = hold

		f, err := p.flags.Create(ctx, cmd)
		if err != nil {
			return nil, err
		}

		if err := p.audits.Record(ctx, suppression.AuditRecord{
			FlagID:          f.ID,
			ChildID:         job.ChildID,
			Reason:          hold.Reason,
			Category:        d.Concern.Category,
			Severity:        d.Concern.Severity,
			ReleasableAfter: hold.ReleasableAfter,
		}); err != nil {
			p.logger.Error("suppression audit failed", "flag_id", f.ID, "error", err)
		}
		return f, nil
	}

	admit := throttle.AdmitCommand{
		ChildID:  job.ChildID,
		FlagID:   cmd.ID,
		Severity: d.Concern.Severity,
		Level:    job.Settings.ThrottleLevel,
		Now:      now,
	}

	admitted, err := p.limiter.Admit(ctx, admit)
	if err != nil {
		return nil, fmt.Errorf("throttle admit: %w", err)
	}

	cmd.Throttled = !admitted.Allowed
	cmd.NotifyChild = admitted.Allowed

	f, err := p.flags.Create(ctx, cmd)
	if err != nil {
		if admitted.Allowed && errors.Is(err, flags.ErrDuplicate) {
			// The flag never persisted; its alert slot must not count
			// against the day's budget.
			if ferr := p.limiter.Forget(ctx, admit); ferr != nil {
				p.logger.Error("alert slot return failed", "flag_id", cmd.ID, "error", ferr)
			}
		}
		return nil, err
	}

	if admitted.Allowed {
		p.emit(ctx, notify.Event{
			Recipient:   notify.RecipientChild,
			RecipientID: job.ChildID,
			FlagID:      f.ID,
			ChildID:     job.ChildID,
			Category:    f.Category,
			Severity:    f.Severity,
			Message:     "Something you viewed was flagged. You can add context before a guardian is notified.",
		})
	}

	return f, nil
}

func (p *Pipeline) emit(ctx context.Context, event notify.Event) {
	if err := p.sink.Notify(ctx, event); err != nil {
		p.logger.Error("notification hand-off failed",
			"flag_id", event.FlagID,
			"recipient", event.Recipient,
			"error", err,
		)
	}
}
