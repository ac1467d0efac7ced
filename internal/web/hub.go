package web

import (
	"log/slog"
	"sync"
	"time"
)

// Display event types.
const (
	eventLabelsInit   = "labels_init"
	eventLabelChanged = "label_changed"
)

type displayEvent struct {
	Type    string            `json:"type"`
	Command string            `json:"command,omitempty"`
	Label   string            `json:"label,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
	TS      time.Time         `json:"ts"`
}

// hubClient is one connected feed consumer. gone is closed when the hub
// drops it.
type hubClient struct {
	send chan displayEvent
	gone chan struct{}
}

// hub fans display events out to every client without ever blocking the
// notifier: a client whose queue is full is evicted.
type hub struct {
	buffer int

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

func newHub(buffer int) *hub {
	return &hub{buffer: buffer, clients: make(map[*hubClient]struct{})}
}

func (h *hub) subscribe() *hubClient {
	c := &hubClient{
		send: make(chan displayEvent, h.buffer),
		gone: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *hub) unsubscribe(c *hubClient) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.gone)
	}
}

func (h *hub) broadcast(ev displayEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			webLog.Warn("slow_client_dropped", slog.Int("buffer", h.buffer))
			h.removeLocked(c)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
