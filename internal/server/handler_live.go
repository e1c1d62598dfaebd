package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/me/ossim/pkg/model"
)

type liveResponse struct {
	RunID     string          `json:"run_id"`
	Snapshot  *model.Snapshot `json:"snapshot"`
	LastEvent *model.Event    `json:"last_event"`
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.live == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("live run", "current"))
		return
	}
	respondOK(w, reqID, s.liveState())
}

func (s *Server) liveState() liveResponse {
	return liveResponse{
		RunID:     s.live.RunID(),
		Snapshot:  s.live.Snapshot(),
		LastEvent: s.live.LastEvent(),
	}
}

// handleLiveStream streams live snapshots via Server-Sent Events.
// GET /api/v1/live/stream
func (s *Server) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.live == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("live run", "current"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	if err := sendSSEEvent(w, flusher, "init", s.liveState()); err != nil {
		s.logger.Debug("sse client disconnected", "error", err)
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	last := s.live.Snapshot()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			snap := s.live.Snapshot()
			if snap == last {
				fmt.Fprintf(w, ": heartbeat\n\n")
				flusher.Flush()
				continue
			}
			last = snap
			if err := sendSSEEvent(w, flusher, "snapshot", s.liveState()); err != nil {
				s.logger.Debug("sse client disconnected", "error", err)
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
