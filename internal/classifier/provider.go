package classifier

import (
	"context"

	"github.com/wardlight/wardlight/internal/gate"
	"github.com/wardlight/wardlight/internal/taxonomy"
)

// Candidate is a raw topical classification candidate from the provider.
type Candidate struct {
	Category   taxonomy.Category `json:"category"`
	Confidence int               `json:"confidence"`
}

// Output is the raw provider response for a single screenshot. The provider
// is treated as opaque and unreliable; all interpretation happens in
// Assemble and the gate.
type Output struct {
	PrimaryCategory     taxonomy.Category `json:"primary_category"`
	Confidence          int               `json:"confidence"`
	SecondaryCandidates []Candidate       `json:"secondary_candidates"`
	Concerns            []gate.Concern    `json:"concerns"`
}

// Context carries screenshot metadata handed to the provider alongside the
// image.
type Context struct {
	URL      string `json:"url,omitempty"`
	AppName  string `json:"app_name,omitempty"`
	ChildAge int    `json:"child_age,omitempty"`
}

// Provider is the AI classification backend. Implementations must honor
// ctx cancellation; calls may fail or time out.
type Provider interface {
	Name() string
	Model() string
	Classify(ctx context.Context, image []byte, pctx Context) (*Output, error)
}
