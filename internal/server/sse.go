package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentd-ai/agentd/internal/event"
)

const sseHeartbeat = 30 * time.Second

// handleEvents streams the event bus to the caller as server-sent events.
// An optional sessionId query filters to one session's events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	filter := r.URL.Query().Get("sessionId")

	// Buffered so a stalled client drops events instead of blocking the
	// bus fan-out goroutine.
	events := make(chan event.Event, 64)
	unsubscribe := s.bus.SubscribeAll(func(ev event.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev := <-events:
			data, err := json.Marshal(ev.Data)
			if err != nil {
				continue
			}
			if filter != "" && !matchesSession(data, filter) {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

// matchesSession probes a marshaled payload for its sessionId field.
func matchesSession(data []byte, sessionID string) bool {
	var probe struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.SessionID == sessionID
}
