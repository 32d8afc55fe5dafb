package classifier

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	// AttemptTimeout bounds a single provider call.
	AttemptTimeout = 30 * time.Second
	// MaxRetries is how many times a failed attempt is retried before the
	// classification is terminal at failed.
	MaxRetries = 3
	// BackoffBase is the first retry delay; subsequent delays double.
	BackoffBase = time.Second
)

// Policy controls the provider retry loop.
type Policy struct {
	AttemptTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		AttemptTimeout: AttemptTimeout,
		MaxRetries:     MaxRetries,
		BackoffBase:    BackoffBase,
	}
}

// Run invokes the provider with transient-only retries and exponential
// backoff. The returned count is the number of retries consumed: zero when
// the first attempt settled the call, whether it succeeded or failed on a
// non-transient error.
func (p Policy) Run(
	ctx context.Context,
	provider Provider,
	image []byte,
	pctx Context,
	logger *slog.Logger,
) (*Output, int, error) {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.BackoffBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		out, err := provider.Classify(attemptCtx, image, pctx)
		cancel()

		if err == nil {
			return out, attempt, nil
		}
		lastErr = err

		logger.Warn("classification attempt failed",
			"attempt", attempt,
			"error", err,
		)

		if !errors.Is(err, ErrTransient) {
			return nil, attempt, err
		}
	}

	return nil, p.MaxRetries, lastErr
}
