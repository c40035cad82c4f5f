package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	server "little-sb/server"
	"little-sb/server/internal/net/ws"
	"little-sb/server/internal/telemetry"
)

// HTTPHandlerConfig carries the handler wiring options.
type HTTPHandlerConfig struct {
	Logger telemetry.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *nethttp.Request) bool {
		// The protocol is not browser-facing; origin checks add nothing.
		return true
	},
}

// NewHTTPHandler builds the server mux: the game websocket plus the health
// and diagnostics endpoints.
func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	wsHandler := ws.NewHandler(hub, logger)

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := hub.Diagnostics()
		payload["server_time"] = time.Now().UnixMilli()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Printf("failed to encode diagnostics: %v", err)
		}
	})

	mux.HandleFunc("/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("websocket upgrade failed: %v", err)
			return
		}
		wsHandler.Serve(conn)
	})

	return mux
}
