package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsURL(baseURL, path string) string {
	if strings.HasPrefix(baseURL, "https://") {
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + path
	}
	return "ws://" + strings.TrimPrefix(baseURL, "http://") + path
}

func readEvent(t *testing.T, conn *websocket.Conn) displayEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev displayEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestDisplayWSUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t, Config{Token: "secret-token"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws/display"), nil)
	if err == nil {
		t.Fatal("expected websocket dial error for unauthorized request")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
}

func TestDisplayWSInitAndChanges(t *testing.T) {
	srv, reg := newTestServer(t, Config{Token: "secret-token"})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws/display?token=secret-token"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	init := readEvent(t, conn)
	if init.Type != eventLabelsInit {
		t.Fatalf("expected %s, got %s", eventLabelsInit, init.Type)
	}
	if init.Labels["record"] != "Start Recording" {
		t.Fatalf("unexpected init labels: %v", init.Labels)
	}

	if err := reg.Press("record", ""); err != nil {
		t.Fatalf("press: %v", err)
	}

	changed := readEvent(t, conn)
	if changed.Type != eventLabelChanged || changed.Command != "record" {
		t.Fatalf("unexpected event: %+v", changed)
	}
	if changed.Label != "REC● Marks: 0" {
		t.Fatalf("unexpected label %q", changed.Label)
	}
	if changed.TS.IsZero() {
		t.Fatal("label_changed must carry a timestamp")
	}
}

func TestDisplayWSPressMessage(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws/display"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = readEvent(t, conn)

	if err := conn.WriteJSON(wsClientMessage{Type: "press", Command: "record"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The broadcast and the direct reply may arrive in either order.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		seen[msg["type"].(string)] = true
		if msg["label"] != "REC● Marks: 0" {
			t.Fatalf("unexpected label in %v", msg)
		}
	}
	if !seen["pressed"] || !seen[eventLabelChanged] {
		t.Fatalf("expected pressed and label_changed, got %v", seen)
	}

	if err := conn.WriteJSON(wsClientMessage{Type: "explode"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply wsReply
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != "error" || reply.Code != "UNSUPPORTED_MESSAGE" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestDisplayWSShutdownClosesClients(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/ws/display"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = readEvent(t, conn)

	srv.hub.closeAll()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to close")
	}
}

func TestAllowWSOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://example.test", true},
		{"http://evil.test", false},
		{"::bad", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://example.test/ws/display", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := allowWSOrigin(req); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}
