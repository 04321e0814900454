package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/signalsfoundry/orbitdeck/core"
	"github.com/signalsfoundry/orbitdeck/model"
)

// Tick advances render state to the given instant: the entities whose tier
// cadence has elapsed are re-propagated as one batch and the results applied
// as a single atomic commit before the next render pass reads positions.
// Nothing on this path blocks on network I/O.
func (e *Engine) Tick(now time.Time) {
	st := e.state.Load()
	if len(st.entities) == 0 {
		return
	}

	e.mu.Lock()
	due := e.scheduler.Due(st.entities, now)
	e.mu.Unlock()
	if len(due) == 0 {
		return
	}

	batch := make([]model.CatalogEntry, 0, len(due))
	for _, entity := range due {
		if entry, ok := st.entries[entity.CatalogID]; ok {
			batch = append(batch, entry)
		}
	}

	ctx := context.Background()
	states := core.PropagateBatch(ctx, e.propagator, batch, now, e.log)
	e.metrics.ObservePropagationBatch(len(batch))

	entities := make([]model.SelectedEntity, len(st.entities))
	copy(entities, st.entities)

	var diff model.EntityDiff
	for _, entity := range due {
		state, ok := states[entity.CatalogID]
		if !ok {
			// Propagation failure: keep the last good position in place.
			continue
		}
		idx, ok := st.byID[entity.CatalogID]
		if !ok {
			continue
		}
		next := entities[idx]
		next.Position = state.Position
		next.Velocity = state.Velocity
		next.LastComputedAt = now
		entities[idx] = next
		diff.Updated = append(diff.Updated, next)
	}
	if diff.Empty() {
		return
	}

	nextState := &committed{
		entities:   entities,
		byID:       st.byID,
		entries:    st.entries,
		stale:      st.stale,
		fallback:   st.fallback,
		criteria:   st.criteria,
		computedAt: st.computedAt,
	}

	e.mu.Lock()
	if e.state.Load() != st {
		// A recompute committed while this tick was propagating; its
		// selection wins and the next tick refreshes positions.
		e.mu.Unlock()
		return
	}
	e.state.Store(nextState)
	e.mu.Unlock()

	e.notify(diff)
}

// Search returns the IDs of catalog entries whose name or ID contains the
// query, case-insensitively. It searches the full catalog snapshot, not just
// the selected set, so the host UI can pin objects that aren't on screen.
func (e *Engine) Search(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	snapshot := e.store.Snapshot()
	var ids []string
	for _, entry := range snapshot.Entries {
		if strings.Contains(strings.ToLower(entry.Name), query) ||
			strings.Contains(strings.ToLower(entry.ID), query) {
			ids = append(ids, entry.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// HitTest returns the selected entity nearest to the pick ray, if any lies
// within toleranceKm of it.
func (e *Engine) HitTest(ray core.Ray, toleranceKm float64) (model.SelectedEntity, bool) {
	st := e.state.Load()

	best := model.SelectedEntity{}
	bestDist := toleranceKm
	found := false
	for _, entity := range st.entities {
		d := ray.DistanceToPoint(entity.Position)
		if d <= bestDist {
			// Ties go to the lower catalog ID for a stable answer.
			if found && d == bestDist && entity.CatalogID >= best.CatalogID {
				continue
			}
			best = entity
			bestDist = d
			found = true
		}
	}
	return best, found
}
