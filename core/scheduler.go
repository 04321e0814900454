package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/orbitdeck/model"
)

// BudgetScheduler assigns LOD tiers and refresh cadences to a selected set,
// enforcing the per-tier counts and the total instance cap. It is not
// concurrency-safe; the engine drives it from a single goroutine.
type BudgetScheduler struct {
	budget model.RenderBudget
}

// NewBudgetScheduler creates a scheduler for the given budget.
func NewBudgetScheduler(budget model.RenderBudget) *BudgetScheduler {
	return &BudgetScheduler{budget: budget}
}

// Budget returns the active render budget.
func (s *BudgetScheduler) Budget() model.RenderBudget {
	return s.budget
}

// SetBudget swaps the render budget; the next AssignTiers call applies it.
func (s *BudgetScheduler) SetBudget(budget model.RenderBudget) {
	s.budget = budget
}

// AssignTiers ranks entities by priority score and distance to the viewer
// and fills tiers top-down. When a tier is full the remaining members are
// demoted to the next-lower tier, never dropped. Pinned entities are
// floor-pinned to Hero and exempt from demotion, even past the Hero count.
//
// The returned slice is the input reordered with tiers set. An
// ErrBudgetViolation means the accounting itself is broken, which is a
// programming defect, not an expected runtime condition.
func (s *BudgetScheduler) AssignTiers(entities []model.SelectedEntity, viewer model.Vec3) ([]model.SelectedEntity, error) {
	if limit := s.budget.TotalInstanceCap; limit > 0 && len(entities) > limit {
		return nil, fmt.Errorf("%w: %d entities exceed total instance cap %d", ErrBudgetViolation, len(entities), limit)
	}

	pinned := make([]model.SelectedEntity, 0, len(entities))
	rest := make([]model.SelectedEntity, 0, len(entities))
	for _, e := range entities {
		if e.Pinned {
			e.Tier = model.TierHero
			pinned = append(pinned, e)
		} else {
			rest = append(rest, e)
		}
	}

	rank := func(e model.SelectedEntity) float64 {
		dist := e.Position.DistanceTo(viewer)
		return e.PriorityScore / (1 + dist/EarthRadiusKm)
	}
	sort.Slice(rest, func(i, j int) bool {
		ri, rj := rank(rest[i]), rank(rest[j])
		if ri != rj {
			return ri > rj
		}
		return rest[i].CatalogID < rest[j].CatalogID
	})

	// Fill tiers top-down. Pinned entities consume Hero capacity first but
	// are never displaced by it.
	capacity := make(map[model.LODTier]int, len(model.Tiers))
	for _, tier := range model.Tiers {
		capacity[tier] = s.budget.PerTierCount[tier]
	}
	heroUsed := len(pinned)

	out := make([]model.SelectedEntity, 0, len(entities))
	out = append(out, pinned...)

	tierIdx := 0
	placed := make(map[model.LODTier]int, len(model.Tiers))
	placed[model.TierHero] = heroUsed
	for _, e := range rest {
		for tierIdx < len(model.Tiers)-1 && placed[model.Tiers[tierIdx]] >= capacity[model.Tiers[tierIdx]] {
			tierIdx++
		}
		tier := model.Tiers[tierIdx]
		e.Tier = tier
		placed[tier]++
		out = append(out, e)
	}

	// Invariant: no unpinned overflow above the per-tier counts.
	for _, tier := range model.Tiers[:len(model.Tiers)-1] {
		limit := capacity[tier]
		if tier == model.TierHero && heroUsed > limit {
			// Pinned overflow is allowed by contract.
			limit = heroUsed
		}
		if placed[tier] > limit {
			return nil, fmt.Errorf("%w: tier %s holds %d of %d", ErrBudgetViolation, tier, placed[tier], limit)
		}
	}

	return out, nil
}

// Due returns the entities whose position is older than their tier's refresh
// interval at the given instant. This is the batch handed to the propagator
// each tick. Entities that have never been computed are always due.
func (s *BudgetScheduler) Due(entities []model.SelectedEntity, now time.Time) []model.SelectedEntity {
	var due []model.SelectedEntity
	for _, e := range entities {
		if e.LastComputedAt.IsZero() {
			due = append(due, e)
			continue
		}
		interval := s.budget.PerTierInterval[e.Tier]
		if interval <= 0 || now.Sub(e.LastComputedAt) >= interval {
			due = append(due, e)
		}
	}
	return due
}
