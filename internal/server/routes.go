// Package server wires HTTP handlers into a ServeMux for the relay
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: the health check, the WebSocket endpoint, and, when a static
// directory is configured, the bundled client assets at the root.
func SetupRoutes(hub *Hub, cfg *Config) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/ws", NewWebSocketHandler(hub, cfg))

	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	} else {
		mux.HandleFunc("/", HealthHandler)
	}

	return mux
}
