package api

import (
	"fmt"

	"github.com/wardlight/wardlight/internal/bias"
	"github.com/wardlight/wardlight/internal/classifier"
	"github.com/wardlight/wardlight/internal/flags"
	"github.com/wardlight/wardlight/internal/notify"
	"github.com/wardlight/wardlight/internal/pipeline"
	"github.com/wardlight/wardlight/internal/suppression"
	"github.com/wardlight/wardlight/internal/throttle"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Bias       bias.System
	Classifier classifier.System
	Flags      flags.System
	Throttle   throttle.System
	Pipeline   *pipeline.Pipeline
}

// NewDomain creates all domain systems from the API runtime.
func NewDomain(runtime *Runtime) (*Domain, error) {
	db := runtime.Database.Connection()

	tuner := bias.New(db, runtime.Logger)

	flagSystem := flags.New(db, tuner, runtime.Logger, runtime.Pagination)

	limiter := throttle.New(db, runtime.Logger)

	provider, err := classifier.NewOpenAIProvider(runtime.Config.Classifier.Provider())
	if err != nil {
		return nil, fmt.Errorf("classifier provider init failed: %w", err)
	}

	classifierSystem := classifier.New(
		db,
		provider,
		runtime.Storage,
		runtime.Crisis,
		runtime.Logger,
	)

	decisions := pipeline.New(
		runtime.Config.Safety.Pipeline(),
		classifierSystem,
		tuner,
		suppression.NewPolicy(runtime.Config.Safety.Suppression()),
		suppression.NewRecorder(db, runtime.Logger),
		limiter,
		flagSystem,
		notify.NewLogSink(runtime.Logger),
		runtime.Logger,
	)

	return &Domain{
		Bias:       tuner,
		Classifier: classifierSystem,
		Flags:      flagSystem,
		Throttle:   limiter,
		Pipeline:   decisions,
	}, nil
}
