// Package api exposes the engine facade over HTTP JSON for host renderers
// that live out of process. Incremental updates stream over SSE; everything
// else is plain request/response.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/orbitdeck/core"
	"github.com/signalsfoundry/orbitdeck/engine"
	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/internal/observability"
	"github.com/signalsfoundry/orbitdeck/model"
)

const maxBodyBytes = 1 << 20

// Server wires the engine facade to HTTP handlers.
type Server struct {
	engine    *engine.Engine
	log       logging.Logger
	collector *observability.EngineCollector
}

// NewServer builds the API server. The collector may be nil; metrics
// middleware then degrades to a pass-through.
func NewServer(eng *engine.Engine, log logging.Logger, collector *observability.EngineCollector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{engine: eng, log: log, collector: collector}
}

// Handler returns the routed HTTP handler, including /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, s.collector.Middleware(pattern, fn))
	}

	route("GET /v1/entities", s.handleEntities)
	route("GET /v1/search", s.handleSearch)
	route("GET /v1/status", s.handleStatus)
	route("GET /v1/updates", s.handleUpdates)
	route("POST /v1/criteria", s.handleCriteria)
	route("POST /v1/hittest", s.handleHitTest)

	if s.collector != nil {
		mux.Handle("GET /metrics", s.collector.Handler())
	}
	return mux
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	entities := s.engine.Entities()
	resp := entitiesResponse{Entities: make([]entityJSON, 0, len(entities))}
	for _, e := range entities {
		resp.Entities = append(resp.Entities, toEntityJSON(e))
	}
	s.writeJSON(r, w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(r, w, http.StatusBadRequest, errors.New("query parameter q is required"))
		return
	}
	ids := s.engine.Search(query)
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(r, w, http.StatusOK, searchResponse{IDs: ids})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r, w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleCriteria(w http.ResponseWriter, r *http.Request) {
	var patch model.CriteriaPatch
	if err := decodeBody(r, &patch); err != nil {
		s.writeError(r, w, http.StatusBadRequest, err)
		return
	}
	if err := ValidateCriteriaPatch(patch); err != nil {
		s.writeError(r, w, http.StatusBadRequest, err)
		return
	}

	s.engine.SetCriteria(patch)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHitTest(w http.ResponseWriter, r *http.Request) {
	var req hitTestRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(r, w, http.StatusBadRequest, err)
		return
	}
	if err := validateHitTest(req); err != nil {
		s.writeError(r, w, http.StatusBadRequest, err)
		return
	}

	ray := core.Ray{
		Origin:    model.Vec3{X: req.Origin.X, Y: req.Origin.Y, Z: req.Origin.Z},
		Direction: model.Vec3{X: req.Direction.X, Y: req.Direction.Y, Z: req.Direction.Z},
	}
	entity, ok := s.engine.HitTest(ray, req.ToleranceKm)

	resp := hitTestResponse{Hit: ok}
	if ok {
		e := toEntityJSON(entity)
		resp.Entity = &e
	}
	s.writeJSON(r, w, http.StatusOK, resp)
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.New("malformed request body: " + err.Error())
	}
	return nil
}

func (s *Server) writeJSON(r *http.Request, w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn(r.Context(), "response encode failed",
			logging.String("path", r.URL.Path),
			logging.String("error", err.Error()),
		)
	}
}

func (s *Server) writeError(r *http.Request, w http.ResponseWriter, code int, err error) {
	s.log.Warn(r.Context(), "request rejected",
		logging.String("path", r.URL.Path),
		logging.Int("status", code),
		logging.String("error", err.Error()),
	)
	s.writeJSON(r, w, code, errorResponse{Error: err.Error()})
}
