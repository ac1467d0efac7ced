package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowork/flowork-deck/internal/plugin"
)

const wsWriteTimeout = 10 * time.Second

type wsClientMessage struct {
	Type    string `json:"type"` // ping, press
	Command string `json:"command,omitempty"`
	Param   string `json:"param,omitempty"`
}

type wsReply struct {
	Type    string    `json:"type"` // pong, pressed, error
	Command string    `json:"command,omitempty"`
	Label   string    `json:"label,omitempty"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	TS      time.Time `json:"ts"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// wsConnWriter serializes writes; gorilla connections allow one writer.
type wsConnWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}

func (w *wsConnWriter) Close(code int, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(time.Second))
}

func (s *Server) handleDisplayWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := s.hub.subscribe()
	defer s.hub.unsubscribe(client)

	writer := &wsConnWriter{conn: conn}
	if err := writer.WriteJSON(s.initEvent()); err != nil {
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readDisplayWS(conn, writer)
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			writer.Close(websocket.CloseGoingAway, "server shutting down")
			return
		case <-readDone:
			return
		case <-client.gone:
			writer.Close(websocket.ClosePolicyViolation, "client too slow")
			return
		case ev := <-client.send:
			if err := writer.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) readDisplayWS(conn *websocket.Conn, writer *wsConnWriter) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				webLog.Warn("websocket_closed_unexpectedly", slog.String("error", err.Error()))
			}
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = writer.WriteJSON(wsError("INVALID_MESSAGE", "invalid json payload"))
			continue
		}

		switch msg.Type {
		case "ping":
			_ = writer.WriteJSON(wsReply{Type: "pong", TS: time.Now().UTC()})
		case "press":
			_ = writer.WriteJSON(s.wsPress(msg))
		default:
			_ = writer.WriteJSON(wsError("UNSUPPORTED_MESSAGE", "supported message types: ping,press"))
		}
	}
}

func (s *Server) wsPress(msg wsClientMessage) wsReply {
	if s.cfg.ReadOnly {
		return wsError("READ_ONLY", "presses are disabled in read-only mode")
	}
	if err := s.host.Press(msg.Command, msg.Param); err != nil {
		if errors.Is(err, plugin.ErrUnknownCommand) {
			return wsError("NOT_FOUND", err.Error())
		}
		return wsError("PRESS_FAILED", err.Error())
	}
	label, _ := s.host.Label(msg.Command, msg.Param)
	return wsReply{Type: "pressed", Command: msg.Command, Label: label, TS: time.Now().UTC()}
}

func wsError(code, message string) wsReply {
	return wsReply{Type: "error", Code: code, Message: message, TS: time.Now().UTC()}
}
