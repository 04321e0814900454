package core

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/signalsfoundry/orbitdeck/model"
)

// Diversity-fill bucket widths. Coarse on purpose: the goal is to spread the
// remaining budget across distinct orbital planes, not to classify orbits.
const (
	inclinationBandDeg = 10.0
	raanBandDeg        = 30.0
)

// Select curates the catalog down to at most crit.MaxCount entities. It is a
// pure function over its inputs: identical catalog, criteria, and weights
// produce a byte-identical ordered result, so re-renders never flicker.
//
// Phases, in budget order:
//  1. Always-include entries (active, pinned to tier Hero).
//  2. Per-category quotas, ranked by priority score via bounded heaps.
//  3. Diversity fill across inclination/RAAN buckets.
//
// If fewer active candidates exist than MaxCount, all of them are returned.
func Select(entries []model.CatalogEntry, crit model.SelectionCriteria, weights model.ScoreWeights) []model.SelectedEntity {
	if crit.MaxCount <= 0 {
		return nil
	}

	active := make([]model.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsActive {
			active = append(active, e)
		}
	}
	// Sort once by ID so every later tie-break and iteration order is
	// derived from a deterministic base ordering.
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	newest := newestEpoch(active)
	score := func(e model.CatalogEntry) float64 {
		return PriorityScore(e, crit, weights, newest)
	}

	selected := make([]model.SelectedEntity, 0, crit.MaxCount)
	used := make(map[string]bool, crit.MaxCount)

	// Phase 1: always-include, budget off the top.
	for _, e := range active {
		if len(selected) >= crit.MaxCount {
			break
		}
		if _, ok := crit.AlwaysIncludeIDs[e.ID]; !ok {
			continue
		}
		selected = append(selected, newSelected(e, score(e), model.TierHero, true))
		used[e.ID] = true
	}
	pinnedCount := len(selected)

	// Phase 2: category quotas via bounded min-heaps, O(n log quota).
	for _, category := range sortedQuotaCategories(crit.CategoryQuotas) {
		quota := crit.CategoryQuotas[category]
		if quota <= 0 {
			continue
		}
		h := &candidateHeap{}
		for _, e := range active {
			if used[e.ID] || e.Category != category {
				continue
			}
			pushBounded(h, candidate{entry: e, score: score(e)}, quota)
		}
		for _, c := range drainDescending(h) {
			if len(selected) >= crit.MaxCount {
				break
			}
			selected = append(selected, newSelected(c.entry, c.score, model.TierLow, false))
			used[c.entry.ID] = true
		}
	}

	// Phase 3: diversity fill across orbital-plane buckets.
	if len(selected) < crit.MaxCount {
		fillDiverse(&selected, used, active, crit.MaxCount, score)
	}

	// Stable output order: pinned by ID, then score descending, ID ascending.
	rest := selected[pinnedCount:]
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].PriorityScore != rest[j].PriorityScore {
			return rest[i].PriorityScore > rest[j].PriorityScore
		}
		return rest[i].CatalogID < rest[j].CatalogID
	})

	return selected
}

// PriorityScore is the configured weighted function of epoch recency,
// category importance, and (when a region filter is set) geographic
// relevance. It depends only on its arguments; there is no hidden
// time-of-day input, which is what keeps Select reproducible.
func PriorityScore(e model.CatalogEntry, crit model.SelectionCriteria, weights model.ScoreWeights, newest time.Time) float64 {
	recency := 0.0
	if !e.Epoch.IsZero() && !newest.IsZero() {
		ageDays := newest.Sub(e.Epoch).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		recency = 1 / (1 + ageDays)
	}

	catRank := weights.CategoryRank[e.Category]

	region := 0.0
	if crit.Region != nil {
		region = regionRelevance(e, *crit.Region)
	}

	return weights.Recency*recency + weights.CategoryImportance*catRank + weights.RegionRelevance*region
}

// regionRelevance estimates how relevant an orbit is to a geographic box
// from its inclination alone: an orbit overflies latitudes up to its
// inclination, so a box whose latitudes exceed that coverage scores zero and
// relevance decays as the box sits closer to the coverage edge.
func regionRelevance(e model.CatalogEntry, box model.BBox) float64 {
	incl := math.Abs(e.Elements.InclinationDeg)
	if incl > 90 {
		// Retrograde orbits cover the complementary latitude band.
		incl = 180 - incl
	}

	centerLat := math.Abs((box.MinLat + box.MaxLat) / 2)
	if centerLat > incl {
		return 0
	}
	if incl == 0 {
		return 1
	}
	return 1 - centerLat/incl*0.5
}

//
// ---------- Diversity fill ----------
//

// fillDiverse spends the remaining budget one bucket at a time, bucketing
// unused candidates by inclination/RAAN bands and taking the best of each
// under-represented bucket round-robin. This avoids visual clustering and
// maximises global coverage.
func fillDiverse(selected *[]model.SelectedEntity, used map[string]bool, active []model.CatalogEntry, maxCount int, score func(model.CatalogEntry) float64) {
	buckets := make(map[string][]candidate)
	var keys []string
	for _, e := range active {
		if used[e.ID] {
			continue
		}
		key := planeBucket(e.Elements)
		if _, ok := buckets[key]; !ok {
			keys = append(keys, key)
		}
		buckets[key] = append(buckets[key], candidate{entry: e, score: score(e)})
	}
	sort.Strings(keys)
	for _, key := range keys {
		b := buckets[key]
		sort.Slice(b, func(i, j int) bool {
			if b[i].score != b[j].score {
				return b[i].score > b[j].score
			}
			return b[i].entry.ID < b[j].entry.ID
		})
		buckets[key] = b
	}

	for len(*selected) < maxCount {
		picked := false
		for _, key := range keys {
			if len(*selected) >= maxCount {
				break
			}
			b := buckets[key]
			if len(b) == 0 {
				continue
			}
			c := b[0]
			buckets[key] = b[1:]
			*selected = append(*selected, newSelected(c.entry, c.score, model.TierLow, false))
			used[c.entry.ID] = true
			picked = true
		}
		if !picked {
			return
		}
	}
}

func planeBucket(el model.OrbitalElements) string {
	ib := int(math.Floor(el.InclinationDeg / inclinationBandDeg))
	rb := int(math.Floor(el.RAANDeg / raanBandDeg))
	return bucketKey(ib, rb)
}

func bucketKey(ib, rb int) string {
	// Fixed-width so string ordering matches numeric ordering.
	return fmt.Sprintf("i%03d-r%03d", ib, rb)
}

//
// ---------- Bounded candidate heap ----------
//

type candidate struct {
	entry model.CatalogEntry
	score float64
}

// candidateHeap is a min-heap by (score asc, ID desc): the root is always
// the weakest member, so pushBounded can hold the top-k in O(log k).
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].entry.ID > h[j].entry.ID
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

func pushBounded(h *candidateHeap, c candidate, bound int) {
	if h.Len() < bound {
		heap.Push(h, c)
		return
	}
	weakest := (*h)[0]
	if c.score > weakest.score || (c.score == weakest.score && c.entry.ID < weakest.entry.ID) {
		(*h)[0] = c
		heap.Fix(h, 0)
	}
}

// drainDescending empties the heap strongest-first.
func drainDescending(h *candidateHeap) []candidate {
	out := make([]candidate, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(candidate)
	}
	return out
}

//
// ---------- Helpers ----------
//

func newSelected(e model.CatalogEntry, score float64, tier model.LODTier, pinned bool) model.SelectedEntity {
	return model.SelectedEntity{
		CatalogID:     e.ID,
		Name:          e.Name,
		Category:      e.Category,
		PriorityScore: score,
		Tier:          tier,
		Pinned:        pinned,
	}
}

func sortedQuotaCategories(quotas map[model.Category]int) []model.Category {
	out := make([]model.Category, 0, len(quotas))
	for category := range quotas {
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newestEpoch(entries []model.CatalogEntry) time.Time {
	var newest time.Time
	for _, e := range entries {
		if e.Epoch.After(newest) {
			newest = e.Epoch
		}
	}
	return newest
}
