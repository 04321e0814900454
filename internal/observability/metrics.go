package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/orbitdeck/model"
)

// EngineCollector bundles the engine's Prometheus metrics and provides the
// /metrics handler plus an HTTP middleware for the API surface. It satisfies
// engine.MetricsRecorder and catalog's fetch recorder so both layers drive
// their own gauges.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	CatalogEntries  prometheus.Gauge
	StaleCategories prometheus.Gauge
	SelectedPerTier *prometheus.GaugeVec

	RecomputeDuration    prometheus.Histogram
	PropagationBatchSize prometheus.Histogram
	FetchOutcomes        *prometheus.CounterVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewEngineCollector registers the engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	catalogEntries, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_entries",
		Help: "Entries in the most recent merged catalog snapshot.",
	}), "catalog_entries")
	if err != nil {
		return nil, err
	}
	staleCategories, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_stale_categories",
		Help: "Categories currently serving stale cached data.",
	}), "catalog_stale_categories")
	if err != nil {
		return nil, err
	}

	selectedPerTier := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "selected_entities",
		Help: "Selected entities in the committed render state, by LOD tier.",
	}, []string{"tier"})
	selectedPerTier, err = registerGaugeVec(reg, selectedPerTier, "selected_entities")
	if err != nil {
		return nil, err
	}

	recompute, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "selection_recompute_duration_seconds",
		Help:    "Selection recompute latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}), "selection_recompute_duration_seconds")
	if err != nil {
		return nil, err
	}
	batchSize, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "propagation_batch_size",
		Help:    "Entities per propagation batch.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	}), "propagation_batch_size")
	if err != nil {
		return nil, err
	}

	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetches_total",
		Help: "Category fetch attempts, labeled by category and outcome.",
	}, []string{"category", "outcome"})
	fetches, err = registerCounterVec(reg, fetches, "catalog_fetches_total")
	if err != nil {
		return nil, err
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Handled API requests, labeled by path, method, and status code.",
	}, []string{"path", "method", "code"})
	requests, err = registerCounterVec(reg, requests, "api_requests_total")
	if err != nil {
		return nil, err
	}
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"path", "method"})
	durations, err = registerHistogramVec(reg, durations, "api_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:             gatherer,
		CatalogEntries:       catalogEntries,
		StaleCategories:      staleCategories,
		SelectedPerTier:      selectedPerTier,
		RecomputeDuration:    recompute,
		PropagationBatchSize: batchSize,
		FetchOutcomes:        fetches,
		HTTPRequests:         requests,
		HTTPDurations:        durations,
	}, nil
}

// ObserveRecompute records one selection recompute and the resulting per-tier
// populations. Implements engine.MetricsRecorder.
func (c *EngineCollector) ObserveRecompute(d time.Duration, perTier map[model.LODTier]int) {
	if c == nil {
		return
	}
	c.RecomputeDuration.Observe(d.Seconds())
	for _, tier := range model.Tiers {
		c.SelectedPerTier.WithLabelValues(tier.String()).Set(float64(perTier[tier]))
	}
}

// SetCatalogCounts updates the catalog snapshot gauges.
func (c *EngineCollector) SetCatalogCounts(entries, staleCategories int) {
	if c == nil {
		return
	}
	c.CatalogEntries.Set(float64(entries))
	c.StaleCategories.Set(float64(staleCategories))
}

// ObservePropagationBatch records the size of one propagation batch.
func (c *EngineCollector) ObservePropagationBatch(n int) {
	if c == nil {
		return
	}
	c.PropagationBatchSize.Observe(float64(n))
}

// RecordFetch counts one category fetch outcome. Implements the catalog
// store's fetch recorder.
func (c *EngineCollector) RecordFetch(category string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.FetchOutcomes.WithLabelValues(category, outcome).Inc()
}

// Middleware records request counts and durations for API handlers. The
// route pattern is used as the path label so cardinality stays bounded.
func (c *EngineCollector) Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		if c == nil {
			return
		}
		code := strconv.Itoa(sw.code)
		c.HTTPRequests.WithLabelValues(pattern, r.Method, code).Inc()
		c.HTTPDurations.WithLabelValues(pattern, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so streaming handlers behind the
// middleware can still assert http.Flusher.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
