package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/model"
)

const defaultCacheTTL = time.Hour

// Catalog is an immutable merged snapshot of all cached categories. Entries
// are deduped by ID (most-recent epoch wins) and sorted by ID so identical
// cache states always produce identical snapshots.
type Catalog struct {
	Entries   []model.CatalogEntry
	Stale     map[model.Category]bool
	FetchedAt time.Time

	// FromFallback is set when every category is unavailable and the
	// snapshot was built from the bundled fallback set instead.
	FromFallback bool
}

// Degraded reports whether any category is serving stale data, or the whole
// snapshot came from the fallback set.
func (c Catalog) Degraded() bool {
	if c.FromFallback {
		return true
	}
	for _, stale := range c.Stale {
		if stale {
			return true
		}
	}
	return false
}

type categoryCache struct {
	entries   []model.CatalogEntry
	fetchedAt time.Time
	stale     bool
	lastErr   error
}

// FetchRecorder observes category fetch outcomes. The observability
// collector implements it.
type FetchRecorder interface {
	RecordFetch(category string, err error)
}

type noopFetchRecorder struct{}

func (noopFetchRecorder) RecordFetch(string, error) {}

// Store owns the per-category catalog cache. It is constructed at startup
// and passed by reference into the engine; there is no process-wide
// singleton. All methods are safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	provider   Provider
	ttl        time.Duration
	log        logging.Logger
	now        func() time.Time
	recorder   FetchRecorder
	fallback   []model.CatalogEntry
	categories map[model.Category]*categoryCache
	inflight   map[model.Category]chan struct{}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL sets the cache freshness TTL; zero or negative uses the default.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(log logging.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// WithFallback installs the minimal always-include set served when every
// category fetch fails, so the display is never empty.
func WithFallback(entries []model.CatalogEntry) StoreOption {
	return func(s *Store) { s.fallback = entries }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithFetchRecorder wires fetch outcome metrics.
func WithFetchRecorder(rec FetchRecorder) StoreOption {
	return func(s *Store) {
		if rec != nil {
			s.recorder = rec
		}
	}
}

// NewStore creates an empty catalog store backed by the given provider.
func NewStore(provider Provider, opts ...StoreOption) *Store {
	s := &Store{
		provider:   provider,
		ttl:        defaultCacheTTL,
		log:        logging.Noop(),
		now:        time.Now,
		recorder:   noopFetchRecorder{},
		categories: make(map[model.Category]*categoryCache),
		inflight:   make(map[model.Category]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchCategory returns the entries for one category, fetching through the
// provider when the cache is missing or past its TTL. A fetch already in
// flight for the same category is joined, not duplicated. On refresh failure
// the stale cache is served and flagged stale.
func (s *Store) FetchCategory(ctx context.Context, category model.Category) ([]model.CatalogEntry, error) {
	s.mu.RLock()
	cached, ok := s.categories[category]
	fresh := ok && !cached.stale && s.now().Sub(cached.fetchedAt) < s.ttl
	s.mu.RUnlock()

	if fresh {
		return cached.entries, nil
	}
	return s.refreshCategory(ctx, category)
}

// Refresh fetches all the given categories concurrently. Per-category
// failures are isolated: the error is joined into the return value, the
// stale cache (if any) stays available, and the other categories proceed.
func (s *Store) Refresh(ctx context.Context, categories []model.Category) error {
	var wg sync.WaitGroup
	errs := make([]error, len(categories))

	for i, category := range categories {
		wg.Add(1)
		go func(i int, category model.Category) {
			defer wg.Done()
			if _, err := s.refreshCategory(ctx, category); err != nil {
				errs[i] = err
			}
		}(i, category)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// refreshCategory performs (or joins) the single in-flight fetch for a
// category and updates the cache with the outcome.
func (s *Store) refreshCategory(ctx context.Context, category model.Category) ([]model.CatalogEntry, error) {
	s.mu.Lock()
	if ch, ok := s.inflight[category]; ok {
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		if cached, ok := s.categories[category]; ok {
			return cached.entries, cached.lastErr
		}
		return nil, ErrNetwork
	}
	ch := make(chan struct{})
	s.inflight[category] = ch
	s.mu.Unlock()

	entries, err := s.provider.FetchCategory(ctx, category)
	s.recorder.RecordFetch(string(category), err)

	s.mu.Lock()
	delete(s.inflight, category)
	close(ch)

	cached, ok := s.categories[category]
	if !ok {
		cached = &categoryCache{}
		s.categories[category] = cached
	}
	if err != nil {
		cached.stale = true
		cached.lastErr = err
		out := cached.entries
		s.mu.Unlock()

		s.log.Warn(ctx, "category refresh failed, serving stale cache",
			logging.String("category", string(category)),
			logging.Int("cached_entries", len(out)),
			logging.String("error", err.Error()),
		)
		return out, err
	}

	cached.entries = entries
	cached.fetchedAt = s.now()
	cached.stale = false
	cached.lastErr = nil
	s.mu.Unlock()

	s.log.Info(ctx, "category refreshed",
		logging.String("category", string(category)),
		logging.Int("entries", len(entries)),
	)
	return entries, nil
}

// Snapshot merges all successfully cached categories into an immutable
// catalog value. A total failure across every category yields the fallback
// set so downstream selection always has the always-include entities.
func (s *Store) Snapshot() Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stale := make(map[model.Category]bool, len(s.categories))
	byID := make(map[string]model.CatalogEntry)
	for category, cached := range s.categories {
		stale[category] = cached.stale
		for _, entry := range cached.entries {
			existing, ok := byID[entry.ID]
			if !ok || entry.Epoch.After(existing.Epoch) {
				byID[entry.ID] = entry
			}
		}
	}

	if len(byID) == 0 {
		entries := make([]model.CatalogEntry, len(s.fallback))
		copy(entries, s.fallback)
		sortEntries(entries)
		return Catalog{
			Entries:      entries,
			Stale:        stale,
			FetchedAt:    s.now(),
			FromFallback: true,
		}
	}

	entries := make([]model.CatalogEntry, 0, len(byID))
	for _, entry := range byID {
		entries = append(entries, entry)
	}
	sortEntries(entries)

	return Catalog{
		Entries:   entries,
		Stale:     stale,
		FetchedAt: s.now(),
	}
}

// Invalidate marks every cached category stale so the next FetchCategory
// goes back to the provider.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cached := range s.categories {
		cached.stale = true
	}
}

func sortEntries(entries []model.CatalogEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
}
