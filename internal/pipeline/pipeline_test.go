package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/bias"
	"github.com/wardlight/wardlight/internal/classifier"
	"github.com/wardlight/wardlight/internal/flags"
	"github.com/wardlight/wardlight/internal/gate"
	"github.com/wardlight/wardlight/internal/notify"
	"github.com/wardlight/wardlight/internal/pipeline"
	"github.com/wardlight/wardlight/internal/suppression"
	"github.com/wardlight/wardlight/internal/taxonomy"
	"github.com/wardlight/wardlight/internal/throttle"
)

type fakeClassifier struct {
	classifier.System
	result   *classifier.Result
	concerns []gate.Concern
	err      error
}

func (f *fakeClassifier) Process(ctx context.Context, job classifier.Job) (*classifier.Result, []gate.Concern, error) {
	return f.result, f.concerns, f.err
}

type fakeTuner struct {
	bias.System
	adjustments map[taxonomy.ConcernCategory]int
	err         error
}

func (f *fakeTuner) Adjustments(ctx context.Context, familyID string) (map[taxonomy.ConcernCategory]int, error) {
	return f.adjustments, f.err
}

type fakeLimiter struct {
	throttle.System
	allowed bool
	calls   []throttle.AdmitCommand
	forgets []throttle.AdmitCommand
}

func (f *fakeLimiter) Admit(ctx context.Context, cmd throttle.AdmitCommand) (*throttle.Outcome, error) {
	f.calls = append(f.calls, cmd)
	return &throttle.Outcome{Allowed: f.allowed}, nil
}

func (f *fakeLimiter) Forget(ctx context.Context, cmd throttle.AdmitCommand) error {
	f.forgets = append(f.forgets, cmd)
	return nil
}

type fakeFlags struct {
	flags.System
	created    []flags.CreateCommand
	releasable []flags.Flag
	released   []uuid.UUID
	throttled  []uuid.UUID
	err        error
}

func (f *fakeFlags) Create(ctx context.Context, cmd flags.CreateCommand) (*flags.Flag, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, cmd)

	status := flags.StatusPending
	notification := flags.NotificationPending
	if cmd.Suppression != nil {
		status = flags.StatusSensitiveHold
		notification = flags.NotificationSkipped
	}
	return &flags.Flag{
		ID:           cmd.ID,
		ScreenshotID: cmd.ScreenshotID,
		FamilyID:     cmd.FamilyID,
		ChildID:      cmd.ChildID,
		Category:     cmd.Category,
		Severity:     cmd.Severity,
		Confidence:   cmd.Confidence,
		Adjusted:     cmd.Adjusted,
		Status:       status,
		Notification: notification,
		Throttled:    cmd.Throttled,
	}, nil
}

func (f *fakeFlags) Releasable(ctx context.Context, cutoff time.Time) ([]flags.Flag, error) {
	return f.releasable, nil
}

func (f *fakeFlags) Release(ctx context.Context, id uuid.UUID, actor string, force bool) (*flags.Flag, error) {
	f.released = append(f.released, id)
	for _, r := range f.releasable {
		if r.ID == id {
			r.Status = flags.StatusReleased
			return &r, nil
		}
	}
	return nil, flags.ErrNotFound
}

func (f *fakeFlags) MarkThrottled(ctx context.Context, id uuid.UUID) (*flags.Flag, error) {
	f.throttled = append(f.throttled, id)
	return &flags.Flag{ID: id, Status: flags.StatusReleased, Throttled: true}, nil
}

type fakeRecorder struct {
	records []suppression.AuditRecord
}

func (f *fakeRecorder) Record(ctx context.Context, rec suppression.AuditRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecorder) ListByFlag(ctx context.Context, flagID uuid.UUID) ([]suppression.AuditRecord, error) {
	return f.records, nil
}

type fakeSink struct {
	events []notify.Event
}

func (f *fakeSink) Notify(ctx context.Context, event notify.Event) error {
	f.events = append(f.events, event)
	return nil
}

type fixture struct {
	classifiers *fakeClassifier
	tuner       *fakeTuner
	limiter     *fakeLimiter
	flags       *fakeFlags
	audits      *fakeRecorder
	sink        *fakeSink
	pipeline    *pipeline.Pipeline
}

func newFixture(classifiers *fakeClassifier, limiter *fakeLimiter) *fixture {
	f := &fixture{
		classifiers: classifiers,
		tuner:       &fakeTuner{},
		limiter:     limiter,
		flags:       &fakeFlags{},
		audits:      &fakeRecorder{},
		sink:        &fakeSink{},
	}
	f.pipeline = pipeline.New(
		pipeline.Config{},
		f.classifiers,
		f.tuner,
		suppression.NewPolicy(suppression.Config{}),
		f.audits,
		f.limiter,
		f.flags,
		f.sink,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return f
}

func job() pipeline.Job {
	return pipeline.Job{
		ScreenshotID: uuid.New(),
		ImageKey:     "families/fam-1/screens/1.png",
		FamilyID:     "fam-1",
		ChildID:      "child-7",
		Settings: pipeline.FamilySettings{
			Sensitivity:   taxonomy.SensitivityBalanced,
			ThrottleLevel: taxonomy.ThrottleStandard,
		},
	}
}

func completed(screenshotID uuid.UUID) *classifier.Result {
	return &classifier.Result{
		ID:              uuid.New(),
		ScreenshotID:    screenshotID,
		Status:          classifier.StatusCompleted,
		PrimaryCategory: taxonomy.CategoryOther,
		Confidence:      90,
	}
}

func TestProcessRejectsInvalidJob(t *testing.T) {
	f := newFixture(&fakeClassifier{}, &fakeLimiter{})

	_, err := f.pipeline.Process(context.Background(), pipeline.Job{})
	if !errors.Is(err, pipeline.ErrInvalidJob) {
		t.Errorf("error = %v, want ErrInvalidJob", err)
	}
}

func TestProcessCrisisProtectedStopsAfterClassification(t *testing.T) {
	j := job()
	result := completed(j.ScreenshotID)
	result.CrisisProtected = true

	f := newFixture(&fakeClassifier{result: result}, &fakeLimiter{allowed: true})

	out, err := f.pipeline.Process(context.Background(), j)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !out.Classification.CrisisProtected {
		t.Error("expected crisis-protected classification")
	}
	if len(out.Decisions) != 0 || len(out.Flags) != 0 {
		t.Errorf("decisions = %d, flags = %d, want none", len(out.Decisions), len(out.Flags))
	}
	if len(f.flags.created) != 0 {
		t.Error("crisis-protected screenshot must not create flags")
	}
	if len(f.limiter.calls) != 0 {
		t.Error("crisis-protected screenshot must not touch the throttle")
	}
}

func TestProcessExhaustedClassificationIsRecordedOutcome(t *testing.T) {
	j := job()
	result := &classifier.Result{
		ScreenshotID: j.ScreenshotID,
		Status:       classifier.StatusFailed,
	}
	f := newFixture(&fakeClassifier{
		result: result,
		err:    classifier.ErrExhausted,
	}, &fakeLimiter{})

	out, err := f.pipeline.Process(context.Background(), j)
	if err != nil {
		t.Fatalf("Process() error = %v, want recorded outcome", err)
	}
	if out.Classification.Status != classifier.StatusFailed {
		t.Errorf("status = %s, want failed", out.Classification.Status)
	}
}

func TestProcessAdmittedFlagNotifiesChild(t *testing.T) {
	j := job()
	f := newFixture(&fakeClassifier{
		result: completed(j.ScreenshotID),
		concerns: []gate.Concern{{
			Category:   taxonomy.ConcernViolence,
			Severity:   taxonomy.SeverityMedium,
			Confidence: 88,
			Reasoning:  "violent imagery",
		}},
	}, &fakeLimiter{allowed: true})

	out, err := f.pipeline.Process(context.Background(), j)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out.Flags) != 1 {
		t.Fatalf("flags = %d, want 1", len(out.Flags))
	}

	cmd := f.flags.created[0]
	if !cmd.NotifyChild || cmd.Throttled {
		t.Errorf("NotifyChild = %v, Throttled = %v, want admitted delivery", cmd.NotifyChild, cmd.Throttled)
	}
	if cmd.ID == uuid.Nil {
		t.Error("flag identity must be fixed before admission")
	}
	if cmd.ThrottleLevel != taxonomy.ThrottleStandard {
		t.Errorf("throttle level = %s, want the family setting carried onto the flag", cmd.ThrottleLevel)
	}
	if len(f.limiter.calls) != 1 || f.limiter.calls[0].FlagID != cmd.ID {
		t.Error("throttle admission must be keyed on the flag identity")
	}

	if len(f.sink.events) != 1 {
		t.Fatalf("events = %d, want 1 child notification", len(f.sink.events))
	}
	if f.sink.events[0].Recipient != notify.RecipientChild {
		t.Errorf("recipient = %s, want child", f.sink.events[0].Recipient)
	}
}

func TestProcessThrottledFlagIsSilent(t *testing.T) {
	j := job()
	f := newFixture(&fakeClassifier{
		result: completed(j.ScreenshotID),
		concerns: []gate.Concern{{
			Category:   taxonomy.ConcernGambling,
			Severity:   taxonomy.SeverityLow,
			Confidence: 95,
			Reasoning:  "betting site",
		}},
	}, &fakeLimiter{allowed: false})

	out, err := f.pipeline.Process(context.Background(), j)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out.Flags) != 1 {
		t.Fatalf("flags = %d, want 1", len(out.Flags))
	}

	cmd := f.flags.created[0]
	if !cmd.Throttled || cmd.NotifyChild {
		t.Errorf("Throttled = %v, NotifyChild = %v, want silent persistence", cmd.Throttled, cmd.NotifyChild)
	}
	if len(f.sink.events) != 0 {
		t.Error("throttled flag must not notify")
	}
}

func TestProcessSuppressedFlagSkipsThrottle(t *testing.T) {
	j := job()
	f := newFixture(&fakeClassifier{
		result: completed(j.ScreenshotID),
		concerns: []gate.Concern{{
			Category:   taxonomy.ConcernSelfHarm,
			Severity:   taxonomy.SeverityLow,
			Confidence: 90,
			Reasoning:  "self-harm indicators",
		}},
	}, &fakeLimiter{allowed: true})

	out, err := f.pipeline.Process(context.Background(), j)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out.Flags) != 1 {
		t.Fatalf("flags = %d, want 1", len(out.Flags))
	}
	if out.Flags[0].Status != flags.StatusSensitiveHold {
		t.Errorf("status = %s, want sensitive_hold", out.Flags[0].Status)
	}

	cmd := f.flags.created[0]
	if cmd.Suppression == nil {
		t.Fatal("expected suppression hold on the create command")
	}
	if cmd.Suppression.Reason != flags.SuppressionSelfHarm {
		t.Errorf("reason = %s, want self_harm_detected", cmd.Suppression.Reason)
	}

	if len(f.limiter.calls) != 0 {
		t.Error("suppressed flag must never be throttle-counted")
	}
	if len(f.sink.events) != 0 {
		t.Error("suppressed flag must never notify")
	}
	if len(f.audits.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(f.audits.records))
	}
	if f.audits.records[0].Reason != flags.SuppressionSelfHarm {
		t.Errorf("audit reason = %s, want self_harm_detected", f.audits.records[0].Reason)
	}
}

func TestProcessGateFiltersFailingConcerns(t *testing.T) {
	j := job()
	f := newFixture(&fakeClassifier{
		result: completed(j.ScreenshotID),
		concerns: []gate.Concern{
			{Category: taxonomy.ConcernViolence, Severity: taxonomy.SeverityMedium, Confidence: 88, Reasoning: "pass"},
			{Category: taxonomy.ConcernGambling, Severity: taxonomy.SeverityLow, Confidence: 40, Reasoning: "fail"},
		},
	}, &fakeLimiter{allowed: true})

	out, err := f.pipeline.Process(context.Background(), j)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out.Decisions) != 2 {
		t.Errorf("decisions = %d, want both recorded", len(out.Decisions))
	}
	if len(out.Flags) != 1 {
		t.Errorf("flags = %d, want only the passing concern", len(out.Flags))
	}
}

func heldFlag() flags.Flag {
	reason := flags.SuppressionSelfHarm
	return flags.Flag{
		ID:                uuid.New(),
		ScreenshotID:      uuid.New(),
		FamilyID:          "fam-1",
		ChildID:           "child-7",
		Category:          taxonomy.ConcernSelfHarm,
		Severity:          taxonomy.SeverityMedium,
		Status:            flags.StatusSensitiveHold,
		ThrottleLevel:     taxonomy.ThrottleStandard,
		Notification:      flags.NotificationSkipped,
		SuppressionReason: &reason,
	}
}

func TestSweepReleasesReadmitsHeldFlags(t *testing.T) {
	f := newFixture(&fakeClassifier{}, &fakeLimiter{allowed: true})
	held := heldFlag()
	f.flags.releasable = []flags.Flag{held}

	f.pipeline.SweepReleases(context.Background())

	if len(f.flags.released) != 1 || f.flags.released[0] != held.ID {
		t.Fatal("elapsed hold must be released")
	}
	if len(f.limiter.calls) != 1 {
		t.Fatalf("admissions = %d, want released flag to re-enter the throttle", len(f.limiter.calls))
	}
	admit := f.limiter.calls[0]
	if admit.FlagID != held.ID || admit.ChildID != held.ChildID || admit.Level != held.ThrottleLevel {
		t.Errorf("admission = %+v, want keyed on the released flag", admit)
	}

	if len(f.sink.events) != 1 {
		t.Fatalf("events = %d, want 1 guardian alert", len(f.sink.events))
	}
	event := f.sink.events[0]
	if event.Recipient != notify.RecipientGuardian || event.FlagID != held.ID {
		t.Errorf("event = %+v, want guardian alert for the released flag", event)
	}
	if len(f.flags.throttled) != 0 {
		t.Error("admitted release must not be marked throttled")
	}
}

func TestSweepReleasesThrottledStaysDashboardOnly(t *testing.T) {
	f := newFixture(&fakeClassifier{}, &fakeLimiter{allowed: false})
	held := heldFlag()
	f.flags.releasable = []flags.Flag{held}

	f.pipeline.SweepReleases(context.Background())

	if len(f.limiter.calls) != 1 {
		t.Fatalf("admissions = %d, want 1", len(f.limiter.calls))
	}
	if len(f.sink.events) != 0 {
		t.Error("throttled release must not alert")
	}
	if len(f.flags.throttled) != 1 || f.flags.throttled[0] != held.ID {
		t.Error("throttled release must be marked dashboard-only")
	}
}

func TestProcessDuplicateReturnsAlertSlot(t *testing.T) {
	j := job()
	f := newFixture(&fakeClassifier{
		result: completed(j.ScreenshotID),
		concerns: []gate.Concern{{
			Category:   taxonomy.ConcernViolence,
			Severity:   taxonomy.SeverityMedium,
			Confidence: 88,
			Reasoning:  "violent imagery",
		}},
	}, &fakeLimiter{allowed: true})
	f.flags.err = flags.ErrDuplicate

	if _, err := f.pipeline.Process(context.Background(), j); err != nil {
		t.Fatalf("Process() error = %v, duplicate must be absorbed", err)
	}

	if len(f.limiter.calls) != 1 {
		t.Fatalf("admissions = %d, want 1", len(f.limiter.calls))
	}
	if len(f.limiter.forgets) != 1 {
		t.Fatalf("forgets = %d, want the slot returned", len(f.limiter.forgets))
	}
	if f.limiter.forgets[0].FlagID != f.limiter.calls[0].FlagID {
		t.Error("returned slot must match the admitted flag")
	}
}

func TestProcessAbsorbsDuplicateFlags(t *testing.T) {
	j := job()
	f := newFixture(&fakeClassifier{
		result: completed(j.ScreenshotID),
		concerns: []gate.Concern{{
			Category:   taxonomy.ConcernViolence,
			Severity:   taxonomy.SeverityMedium,
			Confidence: 88,
			Reasoning:  "violent imagery",
		}},
	}, &fakeLimiter{allowed: true})
	f.flags.err = flags.ErrDuplicate

	out, err := f.pipeline.Process(context.Background(), j)
	if err != nil {
		t.Fatalf("Process() error = %v, duplicate must be absorbed", err)
	}
	if len(out.Flags) != 0 {
		t.Errorf("flags = %d, want none for a duplicate", len(out.Flags))
	}
}

func TestProcessBiasFailureDegradesToUntuned(t *testing.T) {
	j := job()
	f := newFixture(&fakeClassifier{
		result: completed(j.ScreenshotID),
		concerns: []gate.Concern{{
			Category:   taxonomy.ConcernViolence,
			Severity:   taxonomy.SeverityMedium,
			Confidence: 88,
			Reasoning:  "violent imagery",
		}},
	}, &fakeLimiter{allowed: true})
	f.tuner.err = errors.New("bias store unavailable")

	out, err := f.pipeline.Process(context.Background(), j)
	if err != nil {
		t.Fatalf("Process() error = %v, bias failure must degrade", err)
	}
	if len(out.Flags) != 1 {
		t.Errorf("flags = %d, want untuned gating to proceed", len(out.Flags))
	}
}

func TestProcessBatchCollectsOutcomes(t *testing.T) {
	j1 := job()
	j2 := job()

	f := newFixture(&fakeClassifier{result: completed(j1.ScreenshotID)}, &fakeLimiter{})

	outcomes, err := f.pipeline.ProcessBatch(context.Background(), []pipeline.Job{j1, j2})
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	for i, out := range outcomes {
		if out.Classification == nil {
			t.Errorf("outcome %d missing classification", i)
		}
	}
}

func TestProcessBatchReportsFirstErrorWithoutCancelling(t *testing.T) {
	good := job()
	f := newFixture(&fakeClassifier{result: completed(good.ScreenshotID)}, &fakeLimiter{})

	outcomes, err := f.pipeline.ProcessBatch(context.Background(), []pipeline.Job{{}, good})
	if !errors.Is(err, pipeline.ErrInvalidJob) {
		t.Errorf("error = %v, want ErrInvalidJob from the failing job", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want a slot per job", len(outcomes))
	}
	if outcomes[1].Classification == nil {
		t.Error("valid job must still complete")
	}
}
