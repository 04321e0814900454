package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/orbitdeck/core"
	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/model"
)

// SetCriteria applies a partial criteria update and schedules a debounced
// recompute. Calls landing inside the debounce window coalesce: exactly one
// recompute runs, using the latest criteria. A recompute already in flight
// for an older criteria value is superseded, never merged.
func (e *Engine) SetCriteria(patch model.CriteriaPatch) {
	e.mu.Lock()
	e.applyPatchLocked(patch)
	gen := e.bumpGenerationLocked()

	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
	}
	e.debounceTimer = time.AfterFunc(e.debounce, func() {
		e.recompute(context.Background(), gen)
	})
	e.mu.Unlock()
}

// Recompute runs the selection pipeline immediately, bypassing the debounce.
// Used at startup and after catalog refreshes.
func (e *Engine) Recompute(ctx context.Context) {
	e.mu.Lock()
	gen := e.bumpGenerationLocked()
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	e.mu.Unlock()
	e.recompute(ctx, gen)
}

// RefreshCatalog refreshes the given categories through the store and
// recomputes the selection over the fresh snapshot. Fetch failures degrade
// (stale cache, fallback set) rather than fail the recompute.
func (e *Engine) RefreshCatalog(ctx context.Context, categories []model.Category) error {
	ctx, log := logging.WithCycleLogger(ctx, e.log)
	ctx, span := e.tracer.Start(ctx, "engine.RefreshCatalog")
	defer span.End()

	err := e.store.Refresh(ctx, categories)
	if err != nil {
		log.Warn(ctx, "catalog refresh finished with errors",
			logging.String("error", err.Error()),
		)
	}
	e.Recompute(ctx)
	return err
}

func (e *Engine) applyPatchLocked(patch model.CriteriaPatch) {
	if patch.MaxCount != nil {
		e.criteria.MaxCount = *patch.MaxCount
	}
	if patch.ZoomLevel != nil {
		e.criteria.ZoomLevel = *patch.ZoomLevel
	}
	if patch.SearchText != nil {
		e.criteria.SearchText = *patch.SearchText
	}
	if patch.ClearRegion {
		e.criteria.Region = nil
	} else if patch.Region != nil {
		r := *patch.Region
		e.criteria.Region = &r
	}
	if patch.CategoryQuotas != nil {
		e.criteria.CategoryQuotas = make(map[model.Category]int, len(patch.CategoryQuotas))
		for category, quota := range patch.CategoryQuotas {
			e.criteria.CategoryQuotas[category] = quota
		}
	}
	if patch.AlwaysIncludeIDs != nil {
		e.criteria.AlwaysIncludeIDs = make(map[string]struct{}, len(patch.AlwaysIncludeIDs))
		for _, id := range patch.AlwaysIncludeIDs {
			e.criteria.AlwaysIncludeIDs[id] = struct{}{}
		}
	}
}

// recompute runs selection over an immutable catalog snapshot and commits
// the result, unless a newer generation superseded it meanwhile. Consumers
// only ever observe fully-committed results.
func (e *Engine) recompute(ctx context.Context, gen uint64) {
	ctx, span := e.tracer.Start(ctx, "engine.recompute")
	defer span.End()

	start := time.Now()

	e.mu.Lock()
	crit := e.criteria.Clone()
	viewer := e.viewer
	e.mu.Unlock()

	snapshot := e.store.Snapshot()
	selected := core.Select(snapshot.Entries, crit, e.weights)

	// Back the selected set with its catalog records and give every entity
	// an initial position so the first committed frame is renderable.
	entries := make(map[string]model.CatalogEntry, len(selected))
	byCatalogID := make(map[string]model.CatalogEntry, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		byCatalogID[entry.ID] = entry
	}
	batch := make([]model.CatalogEntry, 0, len(selected))
	for _, sel := range selected {
		if entry, ok := byCatalogID[sel.CatalogID]; ok {
			entries[sel.CatalogID] = entry
			batch = append(batch, entry)
		}
	}
	states := core.PropagateBatch(ctx, e.propagator, batch, start, e.log)
	e.metrics.ObservePropagationBatch(len(batch))

	kept := selected[:0]
	for _, sel := range selected {
		state, ok := states[sel.CatalogID]
		if !ok {
			// Propagation rejected the elements; drop the entity rather
			// than render it at the origin.
			continue
		}
		sel.Position = state.Position
		sel.Velocity = state.Velocity
		sel.LastComputedAt = start
		kept = append(kept, sel)
	}

	e.mu.Lock()
	tiered, err := e.scheduler.AssignTiers(kept, viewer)
	e.mu.Unlock()
	if err != nil {
		// Budget violations are programming defects; keep the last good
		// selection on screen and shout.
		e.log.Error(ctx, "tier assignment failed", logging.String("error", err.Error()))
		return
	}

	next := &committed{
		entities:   tiered,
		byID:       indexByID(tiered),
		entries:    entries,
		stale:      snapshot.Stale,
		fallback:   snapshot.FromFallback,
		criteria:   crit,
		computedAt: start,
	}

	e.mu.Lock()
	if gen != e.generation {
		// A newer criteria value superseded this run.
		e.mu.Unlock()
		span.SetAttributes(attribute.Bool("superseded", true))
		return
	}
	prev := e.state.Load()
	e.state.Store(next)
	e.mu.Unlock()

	e.observeRecompute(time.Since(start), next, len(snapshot.Entries))
	e.notify(diffStates(prev, next))
}

func (e *Engine) observeRecompute(d time.Duration, st *committed, catalogSize int) {
	perTier := make(map[model.LODTier]int, len(model.Tiers))
	for _, entity := range st.entities {
		perTier[entity.Tier]++
	}
	staleCount := 0
	for _, isStale := range st.stale {
		if isStale {
			staleCount++
		}
	}
	e.metrics.ObserveRecompute(d, perTier)
	e.metrics.SetCatalogCounts(catalogSize, staleCount)
}

// diffStates computes the id-keyed incremental diff between two committed
// generations. An entity counts as updated when any rendered field changed.
func diffStates(prev, next *committed) model.EntityDiff {
	var diff model.EntityDiff

	for _, entity := range next.entities {
		idx, existed := prev.byID[entity.CatalogID]
		if !existed {
			diff.Added = append(diff.Added, entity)
			continue
		}
		if prev.entities[idx] != entity {
			diff.Updated = append(diff.Updated, entity)
		}
	}
	for _, entity := range prev.entities {
		if _, kept := next.byID[entity.CatalogID]; !kept {
			diff.Removed = append(diff.Removed, entity.CatalogID)
		}
	}
	return diff
}

func indexByID(entities []model.SelectedEntity) map[string]int {
	out := make(map[string]int, len(entities))
	for i, entity := range entities {
		out[entity.CatalogID] = i
	}
	return out
}
