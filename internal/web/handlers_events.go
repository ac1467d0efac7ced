package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var displayEventsHeartbeatInterval = 15 * time.Second

// handleDisplayEvents streams the same events as /ws/display over SSE for
// clients that cannot speak WebSocket.
func (s *Server) handleDisplayEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "stream unavailable")
		return
	}

	client := s.hub.subscribe()
	defer s.hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSEEvent(w, flusher, s.initEvent()); err != nil {
		return
	}

	heartbeat := time.NewTicker(displayEventsHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.gone:
			return
		case <-heartbeat.C:
			if err := writeSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		case ev := <-client.send:
			if err := writeSSEEvent(w, flusher, ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) initEvent() displayEvent {
	return displayEvent{
		Type:   eventLabelsInit,
		Labels: s.host.Labels(),
		TS:     time.Now().UTC(),
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev displayEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEComment(w http.ResponseWriter, flusher http.Flusher, comment string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
