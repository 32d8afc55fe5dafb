package classifier_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wardlight/wardlight/internal/classifier"
	"github.com/wardlight/wardlight/internal/taxonomy"
)

// scriptedProvider fails with the scripted errors in order, then succeeds.
type scriptedProvider struct {
	errs  []error
	calls int
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) Classify(ctx context.Context, image []byte, pctx classifier.Context) (*classifier.Output, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return &classifier.Output{
		PrimaryCategory: taxonomy.CategoryEntertainment,
		Confidence:      80,
	}, nil
}

func testPolicy() classifier.Policy {
	return classifier.Policy{
		AttemptTimeout: time.Second,
		MaxRetries:     classifier.MaxRetries,
		BackoffBase:    time.Millisecond,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPolicyRunFirstAttemptSucceeds(t *testing.T) {
	provider := &scriptedProvider{}

	out, retries, err := testPolicy().Run(context.Background(), provider, nil, classifier.Context{}, discardLogger())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out == nil || retries != 0 {
		t.Errorf("out = %v, retries = %d, want output with zero retries", out, retries)
	}
	if provider.calls != 1 {
		t.Errorf("calls = %d, want 1", provider.calls)
	}
}

func TestPolicyRunNonTransientStopsImmediately(t *testing.T) {
	cause := errors.New("image rejected by provider")
	provider := &scriptedProvider{errs: []error{cause}}

	out, retries, err := testPolicy().Run(context.Background(), provider, nil, classifier.Context{}, discardLogger())
	if !errors.Is(err, cause) {
		t.Fatalf("Run() error = %v, want the provider error", err)
	}
	if out != nil {
		t.Error("unexpected output from a failed run")
	}
	if retries != 0 {
		t.Errorf("retries = %d, want 0 for a first-attempt failure", retries)
	}
	if provider.calls != 1 {
		t.Errorf("calls = %d, want no retries for non-transient errors", provider.calls)
	}
}

func TestPolicyRunRetriesTransientErrors(t *testing.T) {
	provider := &scriptedProvider{errs: []error{
		fmt.Errorf("%w: rate limited", classifier.ErrTransient),
		fmt.Errorf("%w: rate limited", classifier.ErrTransient),
	}}

	out, retries, err := testPolicy().Run(context.Background(), provider, nil, classifier.Context{}, discardLogger())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out == nil || retries != 2 {
		t.Errorf("out = %v, retries = %d, want success on the second retry", out, retries)
	}
	if provider.calls != 3 {
		t.Errorf("calls = %d, want 3", provider.calls)
	}
}

func TestPolicyRunExhaustsRetries(t *testing.T) {
	transient := fmt.Errorf("%w: upstream timeout", classifier.ErrTransient)
	provider := &scriptedProvider{errs: []error{transient, transient, transient, transient, transient}}

	policy := testPolicy()
	policy.MaxRetries = 2

	_, retries, err := policy.Run(context.Background(), provider, nil, classifier.Context{}, discardLogger())
	if !errors.Is(err, classifier.ErrTransient) {
		t.Fatalf("Run() error = %v, want the last transient error", err)
	}
	if retries != 2 {
		t.Errorf("retries = %d, want the full budget", retries)
	}
	if provider.calls != 3 {
		t.Errorf("calls = %d, want initial attempt plus two retries", provider.calls)
	}
}
