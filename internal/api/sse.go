package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/signalsfoundry/orbitdeck/internal/logging"
	"github.com/signalsfoundry/orbitdeck/model"
)

const (
	// updateBuffer bounds how many diffs a slow client may lag before the
	// stream is dropped. Clients reconnect and resync from /v1/entities.
	updateBuffer      = 64
	heartbeatInterval = 15 * time.Second
)

// handleUpdates streams entity diffs as server-sent events. The first event
// is a synthetic "added" diff carrying the full current selection so a client
// never has to race the subscription against a snapshot fetch.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(r, w, http.StatusInternalServerError, errStreamingUnsupported)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := make(chan model.EntityDiff, updateBuffer)
	overflow := make(chan struct{}, 1)
	unsubscribe := s.engine.OnUpdate(func(diff model.EntityDiff) {
		select {
		case updates <- diff:
		default:
			select {
			case overflow <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	snapshot := model.EntityDiff{Added: s.engine.Entities()}
	if err := writeEvent(w, flusher, snapshot); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-overflow:
			s.log.Warn(ctx, "update stream fell behind, closing",
				logging.String("remote", r.RemoteAddr),
			)
			return
		case diff := <-updates:
			if err := writeEvent(w, flusher, diff); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

var errStreamingUnsupported = errors.New("streaming unsupported by connection")

func writeEvent(w http.ResponseWriter, flusher http.Flusher, diff model.EntityDiff) error {
	payload, err := json.Marshal(toDiffJSON(diff))
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: diff\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
