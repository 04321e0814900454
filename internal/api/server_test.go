package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/orbitdeck/catalog"
	"github.com/signalsfoundry/orbitdeck/core"
	"github.com/signalsfoundry/orbitdeck/engine"
	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/model"
)

type fakeProvider struct {
	mu      sync.Mutex
	entries []model.CatalogEntry
}

func (f *fakeProvider) FetchCategory(ctx context.Context, category model.Category) ([]model.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries, nil
}

func apiEntry(id string, incl, raan float64) model.CatalogEntry {
	epoch := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	return model.CatalogEntry{
		ID:       id,
		Name:     "SAT " + id,
		Category: "weather",
		Elements: model.OrbitalElements{
			InclinationDeg: incl,
			RAANDeg:        raan,
			MeanMotion:     15.0,
			Epoch:          epoch,
		},
		Epoch:    epoch,
		IsActive: true,
	}
}

func newTestHandler(t *testing.T) (http.Handler, *engine.Engine) {
	t.Helper()

	provider := &fakeProvider{entries: []model.CatalogEntry{
		apiEntry("00001", 98, 10),
		apiEntry("00002", 55, 40),
		apiEntry("00003", 72, 90),
	}}
	store := catalog.NewStore(provider)
	eng := engine.New(store, core.NewKeplerPropagator(), engine.Config{
		Criteria: model.SelectionCriteria{MaxCount: 3},
		Weights:  model.ScoreWeights{Recency: 1},
		Budget: model.RenderBudget{
			PerTierCount: map[model.LODTier]int{
				model.TierHero:   1,
				model.TierHigh:   1,
				model.TierMedium: 1,
				model.TierLow:    10,
			},
			PerTierInterval:  map[model.LODTier]time.Duration{},
			TotalInstanceCap: 10,
		},
	})
	if err := eng.RefreshCatalog(context.Background(), []model.Category{"weather"}); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	return NewServer(eng, logging.Noop(), nil).Handler(), eng
}

func TestHandleEntities(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/entities", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("GET /v1/entities status = %d, want 200", rr.Code)
	}
	var resp entitiesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Entities) != 3 {
		t.Fatalf("returned %d entities, want 3", len(resp.Entities))
	}
	for _, e := range resp.Entities {
		if e.Tier == "" || e.CatalogID == "" {
			t.Fatalf("incomplete wire entity: %+v", e)
		}
	}
}

func TestHandleSearch(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/search?q=00002", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("search status = %d, want 200", rr.Code)
	}
	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.IDs) != 1 || resp.IDs[0] != "00002" {
		t.Fatalf("search ids = %v, want [00002]", resp.IDs)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/search", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("search without q = %d, want 400", rr.Code)
	}
}

func TestHandleCriteria(t *testing.T) {
	handler, eng := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/criteria",
		strings.NewReader(`{"max_count": 2}`)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("valid criteria patch = %d, want 202: %s", rr.Code, rr.Body.String())
	}
	if got := eng.Criteria().MaxCount; got != 2 {
		t.Fatalf("patch not applied, max count = %d", got)
	}

	for _, body := range []string{
		`{"max_count": -5}`,
		`{"region": {"min_lat": 120, "max_lat": 130}}`,
		`{"region": {"min_lat": 0, "max_lat": 10}, "clear_region": true}`,
		`{"max_count": }`,
		`{"unknown_field": 1}`,
	} {
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/criteria", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s = %d, want 400", body, rr.Code)
		}
	}
}

func TestHandleHitTest(t *testing.T) {
	handler, eng := newTestHandler(t)

	target := eng.Entities()[0]
	req := hitTestRequest{
		Origin:      vec3JSON{X: target.Position.X + 1000, Y: target.Position.Y, Z: target.Position.Z},
		Direction:   vec3JSON{X: -1},
		ToleranceKm: 50,
	}
	payload, _ := json.Marshal(req)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/hittest", strings.NewReader(string(payload))))
	if rr.Code != http.StatusOK {
		t.Fatalf("hittest status = %d, want 200", rr.Code)
	}
	var resp hitTestResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Hit || resp.Entity == nil || resp.Entity.CatalogID != target.CatalogID {
		t.Fatalf("expected hit on %s, got %+v", target.CatalogID, resp)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/hittest",
		strings.NewReader(`{"direction": {"x": 0, "y": 0, "z": 0}, "tolerance_km": 5}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("zero direction = %d, want 400", rr.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d, want 200", rr.Code)
	}
	var status engine.Status
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.SelectedCount != 3 || status.Degraded {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestHandleUpdatesStreamsInitialSnapshot(t *testing.T) {
	handler, _ := newTestHandler(t)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/updates")
	if err != nil {
		t.Fatalf("GET /v1/updates: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	// The first event carries the full current selection as an added diff.
	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read event line: %v", err)
	}
	if !strings.HasPrefix(event, "event: diff") {
		t.Fatalf("first line = %q, want event: diff", event)
	}
	data, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read data line: %v", err)
	}
	if !strings.HasPrefix(data, "data: ") {
		t.Fatalf("second line = %q, want data payload", data)
	}

	var diff diffJSON
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(data), "data: ")), &diff); err != nil {
		t.Fatalf("decode diff payload: %v", err)
	}
	if len(diff.Added) != 3 {
		t.Fatalf("initial snapshot carried %d entities, want 3", len(diff.Added))
	}
}
