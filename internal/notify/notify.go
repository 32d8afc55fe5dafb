// Package notify defines the hand-off boundary between the decision pipeline
// and downstream delivery channels. The pipeline decides who may be told
// about a flag; how the message reaches a device is out of scope, so the
// default sink only records the event.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wardlight/wardlight/internal/taxonomy"
)

// Recipient distinguishes guardian-facing from child-facing delivery.
type Recipient string

const (
	RecipientGuardian Recipient = "guardian"
	RecipientChild    Recipient = "child"
)

// Event is a single delivery request emitted by the pipeline.
type Event struct {
	Recipient   Recipient                `json:"recipient"`
	RecipientID string                   `json:"recipient_id"`
	FlagID      uuid.UUID                `json:"flag_id"`
	ChildID     string                   `json:"child_id"`
	Category    taxonomy.ConcernCategory `json:"category"`
	Severity    taxonomy.Severity        `json:"severity"`
	Message     string                   `json:"message"`
}

// Sink receives delivery requests. Implementations must not block on slow
// channels; the pipeline treats delivery as fire-and-forget.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

type logSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that records delivery requests without sending
// anything. It stands in wherever a push or messaging integration would be
// wired.
func NewLogSink(logger *slog.Logger) Sink {
	return &logSink{logger: logger.With("system", "notify")}
}

func (s *logSink) Notify(_ context.Context, event Event) error {
	s.logger.Info("notification emitted",
		"recipient", event.Recipient,
		"recipient_id", event.RecipientID,
		"flag_id", event.FlagID,
		"child_id", event.ChildID,
		"category", event.Category,
		"severity", event.Severity,
	)
	return nil
}
