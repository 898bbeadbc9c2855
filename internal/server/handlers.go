// Package server exposes HTTP handlers, including the WebSocket upgrade and
// the health check.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// NewWebSocketHandler returns the handler for WebSocket upgrade requests. It
// enforces the configured origin allow-list, upgrades the connection, and
// hands the resulting client to the hub, which starts its pumps.
func NewWebSocketHandler(hub *Hub, cfg *Config) http.HandlerFunc {
	checker := newOriginChecker(cfg.AllowedOrigins, hub.logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checker.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, cfg)
		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.Close()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chatrelay server is running!")
}
