package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dakeena/living-chronicle/internal/engine"
)

const (
	heartbeatPeriod = 15 * time.Second
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// authorizePush checks the relay token and reserves a push connection
// slot. The returned release func must be called when the stream ends.
func (s *Server) authorizePush(w http.ResponseWriter, r *http.Request) (release func(), ok bool) {
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return nil, false
	}
	// Browsers cannot set headers on websocket upgrades, so the token may
	// also arrive as a query parameter.
	if !bearer(r, s.RelayKey) && r.URL.Query().Get("token") != s.RelayKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	if atomic.AddInt32(&s.pushConns, 1) > maxPushConns {
		atomic.AddInt32(&s.pushConns, -1)
		http.Error(w, "too many push connections", http.StatusServiceUnavailable)
		return nil, false
	}
	return func() { atomic.AddInt32(&s.pushConns, -1) }, true
}

// handleStream pushes every tick result as a server-sent event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	release, ok := s.authorizePush(w, r)
	if !ok {
		return
	}
	defer release()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Runner.Hub().Subscribe()
	defer s.Runner.Hub().Unsubscribe(subID)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()
	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(heartbeatPeriod)
	defer heartbeat.Stop()

	for {
		select {
		case res, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, res)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSEEvent writes one tick in SSE format, using the day as event id.
func writeSSEEvent(w http.ResponseWriter, res *engine.TickResult) {
	data, err := json.Marshal(res)
	if err != nil {
		slog.Error("encode tick", "day", res.Day, "error", err)
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: tick\ndata: %s\n\n", res.Day, data)
}

// handleWebsocket pushes every tick result as a JSON text frame. Inbound
// frames are read only to service pings and detect disconnects.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	release, ok := s.authorizePush(w, r)
	if !ok {
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, ch := s.Runner.Hub().Subscribe()
	defer s.Runner.Hub().Unsubscribe(subID)
	slog.Info("websocket client connected", "sub_id", subID)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Warn("websocket read error", "sub_id", subID, "error", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case res, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(res); err != nil {
				slog.Debug("websocket write failed", "sub_id", subID, "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			slog.Info("websocket client disconnected", "sub_id", subID)
			return
		}
	}
}
