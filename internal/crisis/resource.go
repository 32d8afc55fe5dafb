// Package crisis decides whether a URL belongs to a protected crisis resource.
// Visits to crisis resources are never classified, never produce concerns, and
// never become guardian-visible flags. The allowlist is versioned reference
// data refreshed periodically from a distribution endpoint, with a local seed
// file and a fail-open cached snapshot for availability.
package crisis

import "time"

// ResourceCategory groups crisis resources by the kind of support they provide.
type ResourceCategory string

const (
	CategorySuicidePrevention ResourceCategory = "suicide_prevention"
	CategoryCrisisText        ResourceCategory = "crisis_text"
	CategoryDomesticViolence  ResourceCategory = "domestic_violence"
	CategorySubstanceAbuse    ResourceCategory = "substance_abuse"
	CategoryMentalHealth      ResourceCategory = "mental_health"
	CategoryLGBTQSupport      ResourceCategory = "lgbtq_support"
	CategoryChildAbuse        ResourceCategory = "child_abuse"
)

// Resource is a single protected crisis resource entry.
// Domain matches exactly (www-insensitive). WildcardPattern, when set,
// additionally matches any subdomain of its base domain. Aliases match
// exactly under the same normalization as Domain.
type Resource struct {
	Domain          string           `json:"domain" yaml:"domain"`
	WildcardPattern string           `json:"wildcard_pattern,omitempty" yaml:"wildcard_pattern,omitempty"`
	Aliases         []string         `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Category        ResourceCategory `json:"category" yaml:"category"`
}

// Allowlist is a versioned crisis resource distribution document.
type Allowlist struct {
	Version     string     `json:"version" yaml:"version"`
	LastUpdated time.Time  `json:"last_updated" yaml:"last_updated"`
	Resources   []Resource `json:"resources" yaml:"resources"`
}
