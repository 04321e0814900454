package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/orbitdeck/catalog"
	"github.com/signalsfoundry/orbitdeck/core"
	"github.com/signalsfoundry/orbitdeck/model"
)

var testEpoch = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

// fakeProvider serves canned catalog entries per category.
type fakeProvider struct {
	mu      sync.Mutex
	entries map[model.Category][]model.CatalogEntry
	err     error
}

func (f *fakeProvider) FetchCategory(ctx context.Context, category model.Category) ([]model.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[category], nil
}

// countingMetrics counts recompute commits.
type countingMetrics struct {
	mu         sync.Mutex
	recomputes int
}

func (m *countingMetrics) ObserveRecompute(time.Duration, map[model.LODTier]int) {
	m.mu.Lock()
	m.recomputes++
	m.mu.Unlock()
}
func (m *countingMetrics) SetCatalogCounts(int, int)   {}
func (m *countingMetrics) ObservePropagationBatch(int) {}

func (m *countingMetrics) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recomputes
}

func testEntry(id string, category model.Category, incl, raan float64) model.CatalogEntry {
	return model.CatalogEntry{
		ID:       id,
		Name:     "SAT " + id,
		Category: category,
		Elements: model.OrbitalElements{
			InclinationDeg: incl,
			RAANDeg:        raan,
			MeanMotion:     15.0,
			Epoch:          testEpoch,
		},
		Epoch:    testEpoch,
		IsActive: true,
	}
}

func testEngineBudget() model.RenderBudget {
	return model.RenderBudget{
		PerTierCount: map[model.LODTier]int{
			model.TierHero:   2,
			model.TierHigh:   3,
			model.TierMedium: 5,
			model.TierLow:    20,
		},
		PerTierInterval:  map[model.LODTier]time.Duration{},
		TotalInstanceCap: 30,
	}
}

func newTestEngine(t *testing.T, provider catalog.Provider, crit model.SelectionCriteria, opts ...Option) *Engine {
	t.Helper()
	store := catalog.NewStore(provider)
	return New(store, core.NewKeplerPropagator(), Config{
		Criteria: crit,
		Weights: model.ScoreWeights{
			Recency:            0.5,
			CategoryImportance: 0.5,
			CategoryRank:       map[model.Category]float64{"stations": 1.0, "weather": 0.5},
		},
		Budget:   testEngineBudget(),
		Debounce: 50 * time.Millisecond,
	}, opts...)
}

func fiveEntryProvider() *fakeProvider {
	return &fakeProvider{entries: map[model.Category][]model.CatalogEntry{
		"weather": {
			testEntry("00001", "weather", 98, 10),
			testEntry("00002", "weather", 55, 40),
			testEntry("00003", "weather", 72, 90),
			testEntry("00004", "weather", 28, 200),
			testEntry("00005", "weather", 82, 300),
		},
	}}
}

func TestEngineRefreshProducesCommittedSelection(t *testing.T) {
	eng := newTestEngine(t, fiveEntryProvider(), model.SelectionCriteria{MaxCount: 3})

	if err := eng.RefreshCatalog(context.Background(), []model.Category{"weather"}); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	entities := eng.Entities()
	if len(entities) != 3 {
		t.Fatalf("committed %d entities, want 3", len(entities))
	}
	for _, e := range entities {
		if e.Position == (model.Vec3{}) {
			t.Fatalf("entity %s committed without a position", e.CatalogID)
		}
		if e.LastComputedAt.IsZero() {
			t.Fatalf("entity %s committed without a compute time", e.CatalogID)
		}
	}

	status := eng.Status()
	if status.SelectedCount != 3 || status.Degraded {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSetCriteriaDebounceCoalesces(t *testing.T) {
	metrics := &countingMetrics{}
	eng := newTestEngine(t, fiveEntryProvider(), model.SelectionCriteria{MaxCount: 5}, WithMetrics(metrics))

	if err := eng.RefreshCatalog(context.Background(), []model.Category{"weather"}); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	base := metrics.count()

	three, two := 3, 2
	eng.SetCriteria(model.CriteriaPatch{MaxCount: &three})
	eng.SetCriteria(model.CriteriaPatch{MaxCount: &two})

	time.Sleep(300 * time.Millisecond)

	if got := metrics.count() - base; got != 1 {
		t.Fatalf("two patches inside the debounce window ran %d recomputes, want 1", got)
	}
	if got := eng.Criteria().MaxCount; got != 2 {
		t.Fatalf("criteria max count = %d, want the latest patch value 2", got)
	}
	if got := len(eng.Entities()); got != 2 {
		t.Fatalf("committed %d entities, want 2", got)
	}
}

func TestEngineEmitsRemovalDiffs(t *testing.T) {
	eng := newTestEngine(t, fiveEntryProvider(), model.SelectionCriteria{MaxCount: 5})
	if err := eng.RefreshCatalog(context.Background(), []model.Category{"weather"}); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	var mu sync.Mutex
	var diffs []model.EntityDiff
	unsubscribe := eng.OnUpdate(func(d model.EntityDiff) {
		mu.Lock()
		diffs = append(diffs, d)
		mu.Unlock()
	})
	defer unsubscribe()

	two := 2
	eng.SetCriteria(model.CriteriaPatch{MaxCount: &two})
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(diffs) != 1 {
		t.Fatalf("got %d diffs, want 1", len(diffs))
	}
	if len(diffs[0].Removed) != 3 {
		t.Fatalf("shrinking 5 -> 2 should remove 3 entities, got %+v", diffs[0])
	}
}

func TestEngineTickRefreshesDuePositions(t *testing.T) {
	eng := newTestEngine(t, fiveEntryProvider(), model.SelectionCriteria{MaxCount: 3})
	if err := eng.RefreshCatalog(context.Background(), []model.Category{"weather"}); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	before := eng.Entities()

	var mu sync.Mutex
	updated := 0
	unsubscribe := eng.OnUpdate(func(d model.EntityDiff) {
		mu.Lock()
		updated += len(d.Updated)
		mu.Unlock()
	})
	defer unsubscribe()

	// Zero tier intervals mean every entity is due each tick.
	frame := time.Now().UTC().Add(10 * time.Minute)
	eng.Tick(frame)

	after := eng.Entities()
	moved := 0
	for i := range after {
		if after[i].Position != before[i].Position {
			moved++
		}
		if !after[i].LastComputedAt.Equal(frame) {
			t.Fatalf("entity %s not stamped with the frame time", after[i].CatalogID)
		}
	}
	if moved != len(after) {
		t.Fatalf("%d of %d entities moved over 10 minutes", moved, len(after))
	}

	mu.Lock()
	defer mu.Unlock()
	if updated != len(after) {
		t.Fatalf("update diff covered %d entities, want %d", updated, len(after))
	}
}

func TestEngineDegradedStatusOnTotalFailure(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: unreachable", catalog.ErrNetwork)}
	fallback := []model.CatalogEntry{testEntry("25544", "stations", 51.6, 115.9)}

	store := catalog.NewStore(provider, catalog.WithFallback(fallback))
	eng := New(store, core.NewKeplerPropagator(), Config{
		Criteria: model.SelectionCriteria{
			MaxCount:         10,
			AlwaysIncludeIDs: map[string]struct{}{"25544": {}},
		},
		Weights: model.ScoreWeights{Recency: 1},
		Budget:  testEngineBudget(),
	})

	if err := eng.RefreshCatalog(context.Background(), []model.Category{"stations"}); err == nil {
		t.Fatalf("expected refresh error from failing provider")
	}

	status := eng.Status()
	if !status.Degraded || !status.FromFallback {
		t.Fatalf("total fetch failure should degrade to fallback, got %+v", status)
	}
	entities := eng.Entities()
	if len(entities) != 1 || entities[0].CatalogID != "25544" {
		t.Fatalf("fallback entity should still render, got %+v", entities)
	}
	if entities[0].Tier != model.TierHero || !entities[0].Pinned {
		t.Fatalf("fallback ISS should be pinned Hero, got %+v", entities[0])
	}
}

func TestEngineSearch(t *testing.T) {
	eng := newTestEngine(t, fiveEntryProvider(), model.SelectionCriteria{MaxCount: 2})
	if err := eng.RefreshCatalog(context.Background(), []model.Category{"weather"}); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	// Search spans the full catalog, not just the 2 selected entities.
	if got := eng.Search("sat 000"); len(got) != 5 {
		t.Fatalf("search matched %d ids, want 5: %v", len(got), got)
	}
	if got := eng.Search("00003"); len(got) != 1 || got[0] != "00003" {
		t.Fatalf("search by id failed: %v", got)
	}
	if got := eng.Search("   "); got != nil {
		t.Fatalf("blank query should match nothing, got %v", got)
	}
}

func TestEngineHitTest(t *testing.T) {
	eng := newTestEngine(t, fiveEntryProvider(), model.SelectionCriteria{MaxCount: 3})
	if err := eng.RefreshCatalog(context.Background(), []model.Category{"weather"}); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	target := eng.Entities()[0]
	ray := core.Ray{
		Origin:    model.Vec3{X: target.Position.X + 1000, Y: target.Position.Y, Z: target.Position.Z},
		Direction: model.Vec3{X: -1},
	}

	hit, ok := eng.HitTest(ray, 50)
	if !ok || hit.CatalogID != target.CatalogID {
		t.Fatalf("expected to hit %s, got ok=%v hit=%+v", target.CatalogID, ok, hit)
	}

	miss := core.Ray{Origin: model.Vec3{X: 50000}, Direction: model.Vec3{X: 1}}
	if _, ok := eng.HitTest(miss, 10); ok {
		t.Fatalf("ray pointing away from every entity should miss")
	}
}

func TestEngineSetBudgetRecomputesImmediately(t *testing.T) {
	eng := newTestEngine(t, fiveEntryProvider(), model.SelectionCriteria{MaxCount: 5})
	if err := eng.RefreshCatalog(context.Background(), []model.Category{"weather"}); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	budget := testEngineBudget()
	budget.PerTierCount[model.TierHero] = 1
	budget.PerTierCount[model.TierHigh] = 1
	eng.SetBudget(context.Background(), budget)

	counts := make(map[model.LODTier]int)
	for _, e := range eng.Entities() {
		counts[e.Tier]++
	}
	if counts[model.TierHero] != 1 || counts[model.TierHigh] != 1 {
		t.Fatalf("new budget not applied: %v", counts)
	}
}
