// Package engine hosts the visualization facade: the top-level API a host
// renderer consumes. It owns the selection recompute pipeline, the
// copy-on-write committed state the render path reads, and the incremental
// diff stream.
package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/orbitdeck/catalog"
	"github.com/signalsfoundry/orbitdeck/core"
	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/model"
)

const defaultDebounce = 150 * time.Millisecond

// MetricsRecorder receives engine-level observations. The observability
// collector implements it; tests use small fakes.
type MetricsRecorder interface {
	ObserveRecompute(d time.Duration, perTier map[model.LODTier]int)
	SetCatalogCounts(entries, staleCategories int)
	ObservePropagationBatch(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRecompute(time.Duration, map[model.LODTier]int) {}
func (noopMetrics) SetCatalogCounts(int, int)                            {}
func (noopMetrics) ObservePropagationBatch(int)                          {}

// committed is one immutable generation of render state. The render path
// reads it through an atomic pointer, so no reader ever observes a partially
// updated selection and no reader-side locking is needed.
type committed struct {
	entities []model.SelectedEntity
	byID     map[string]int
	// entries backs the selected set with its catalog records so ticks can
	// re-propagate without touching the store.
	entries    map[string]model.CatalogEntry
	stale      map[model.Category]bool
	fallback   bool
	criteria   model.SelectionCriteria
	computedAt time.Time
}

// Engine is the satellite curation engine behind the visualization facade.
// Construct one per display; all collaborators are passed in, never reached
// through package globals.
type Engine struct {
	store      *catalog.Store
	propagator core.Propagator
	scheduler  *core.BudgetScheduler
	weights    model.ScoreWeights
	log        logging.Logger
	metrics    MetricsRecorder
	tracer     trace.Tracer
	debounce   time.Duration

	// mu guards criteria, generation, the debounce timer, viewer, and the
	// subscriber table. It is never held while subscribers run.
	mu            sync.Mutex
	criteria      model.SelectionCriteria
	generation    uint64
	debounceTimer *time.Timer
	viewer        model.Vec3
	subscribers   map[int]func(model.EntityDiff)
	nextSubID     int

	state atomic.Pointer[committed]
}

// Config carries the initial engine parameters. Selection criteria and the
// render budget are runtime-updatable afterwards through the facade.
type Config struct {
	Criteria model.SelectionCriteria
	Weights  model.ScoreWeights
	Budget   model.RenderBudget
	Debounce time.Duration
	Viewer   model.Vec3
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs an engine over the given catalog store and propagation
// strategy. Call Recompute (or RefreshCatalog) once to produce the first
// committed selection.
func New(store *catalog.Store, propagator core.Propagator, cfg Config, opts ...Option) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	e := &Engine{
		store:       store,
		propagator:  propagator,
		scheduler:   core.NewBudgetScheduler(cfg.Budget),
		weights:     cfg.Weights,
		log:         logging.Noop(),
		metrics:     noopMetrics{},
		tracer:      otel.Tracer("orbitdeck/engine"),
		debounce:    cfg.Debounce,
		criteria:    cfg.Criteria.Clone(),
		viewer:      cfg.Viewer,
		subscribers: make(map[int]func(model.EntityDiff)),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.state.Store(&committed{
		byID:    make(map[string]int),
		entries: make(map[string]model.CatalogEntry),
	})
	return e
}

// Entities returns a copy of the current committed selection.
func (e *Engine) Entities() []model.SelectedEntity {
	st := e.state.Load()
	out := make([]model.SelectedEntity, len(st.entities))
	copy(out, st.entities)
	return out
}

// Criteria returns a copy of the current selection criteria.
func (e *Engine) Criteria() model.SelectionCriteria {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.criteria.Clone()
}

// SetViewer updates the viewer position used for distance-based tier
// assignment. It takes effect on the next recompute.
func (e *Engine) SetViewer(viewer model.Vec3) {
	e.mu.Lock()
	e.viewer = viewer
	e.mu.Unlock()
}

// SetBudget swaps the render budget and recomputes immediately so the new
// caps apply.
func (e *Engine) SetBudget(ctx context.Context, budget model.RenderBudget) {
	e.mu.Lock()
	e.scheduler.SetBudget(budget)
	gen := e.bumpGenerationLocked()
	e.mu.Unlock()
	e.recompute(ctx, gen)
}

// Status reports the freshness of what is on screen so the host UI can
// surface a degraded/stale indicator.
type Status struct {
	Degraded        bool             `json:"degraded"`
	FromFallback    bool             `json:"from_fallback"`
	StaleCategories []model.Category `json:"stale_categories,omitempty"`
	SelectedCount   int              `json:"selected_count"`
	LastRecompute   time.Time        `json:"last_recompute"`
}

// Status returns the current degraded/staleness summary.
func (e *Engine) Status() Status {
	st := e.state.Load()

	var stale []model.Category
	for category, isStale := range st.stale {
		if isStale {
			stale = append(stale, category)
		}
	}
	sortCategories(stale)

	return Status{
		Degraded:        st.fallback || len(stale) > 0,
		FromFallback:    st.fallback,
		StaleCategories: stale,
		SelectedCount:   len(st.entities),
		LastRecompute:   st.computedAt,
	}
}

// OnUpdate registers a diff callback and returns its unsubscribe function.
// Callbacks receive id-keyed {added, removed, updated} diffs, never full
// snapshots, and run synchronously on the committing goroutine: keep them
// fast and hand heavy work to your own queue.
func (e *Engine) OnUpdate(fn func(model.EntityDiff)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// bumpGenerationLocked invalidates any in-flight recompute. Caller holds mu.
func (e *Engine) bumpGenerationLocked() uint64 {
	e.generation++
	return e.generation
}

func (e *Engine) notify(diff model.EntityDiff) {
	if diff.Empty() {
		return
	}
	e.mu.Lock()
	fns := make([]func(model.EntityDiff), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(diff)
	}
}

func sortCategories(categories []model.Category) {
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
}
