package model

import "time"

// LODTier buckets a selected entity by update cadence and render fidelity.
type LODTier int

const (
	TierHero LODTier = iota
	TierHigh
	TierMedium
	TierLow
)

// Tiers lists all tiers from highest to lowest fidelity.
var Tiers = []LODTier{TierHero, TierHigh, TierMedium, TierLow}

func (t LODTier) String() string {
	switch t {
	case TierHero:
		return "hero"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "unknown"
	}
}

// SelectedEntity is one curated catalog object with its render state.
// Instances are created wholesale by each selection recompute and never
// partially mutated in place; position updates replace the whole value.
type SelectedEntity struct {
	CatalogID     string
	Name          string
	Category      Category
	PriorityScore float64
	Tier          LODTier

	// Position and Velocity are ECEF kilometres (km/s for velocity).
	Position Vec3
	Velocity Vec3

	LastComputedAt time.Time

	// Pinned marks an always-include entity: floor-pinned to Hero and
	// exempt from demotion.
	Pinned bool
}

// RenderBudget bounds the rendered population. PerTierCount never admits more
// than its value into a tier; TotalInstanceCap bounds the whole selected set
// regardless of catalog size.
type RenderBudget struct {
	PerTierCount     map[LODTier]int
	PerTierInterval  map[LODTier]time.Duration
	TotalInstanceCap int
}

// EntityDiff is an id-keyed incremental update delivered to the host
// renderer, so the consumer can apply minimal GPU buffer updates instead of
// re-uploading full snapshots.
type EntityDiff struct {
	Added   []SelectedEntity `json:"added"`
	Updated []SelectedEntity `json:"updated"`
	Removed []string         `json:"removed"`
}

// Empty reports whether the diff carries no changes.
func (d EntityDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}
