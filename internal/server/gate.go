// Package server exposes HTTP handlers, including the authenticated WebSocket
// upgrade and the health check.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/gorilla/websocket"
)

// Gate authenticates handshakes before any connection state exists. A
// rejected handshake never reaches the hub.
type Gate struct {
	validator auth.TokenValidator
	upgrader  websocket.Upgrader
	log       *slog.Logger
}

// NewGate builds the gate shared by every realtime channel.
func NewGate(validator auth.TokenValidator, cfg Config, log *slog.Logger) *Gate {
	policy := newOriginPolicy(cfg.Origins(), log)
	return &Gate{
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
		log: log,
	}
}

// Handler returns the upgrade handler for one hub. It validates the method,
// extracts the credential (handshake payload, then bearer header, then the
// access cookie), validates it, and only then upgrades and registers.
func (g *Gate) Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		token, source, ok := auth.CredentialFromRequest(r, auth.HandshakeSources...)
		if !ok {
			g.log.Info("Rejected handshake without credential", "hub", hub.Name(), "remote", r.RemoteAddr)
			auth.WriteUnauthorized(w, "no token provided")
			return
		}

		principal, err := g.validator.Validate(r.Context(), token)
		if err != nil {
			g.log.Info("Rejected handshake with invalid credential", "hub", hub.Name(), "remote", r.RemoteAddr, "source", source)
			auth.WriteUnauthorized(w, "invalid token")
			return
		}

		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.log.Warn("WebSocket upgrade failed", "hub", hub.Name(), "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, principal)
		if err := hub.Register(client); err != nil {
			g.log.Warn("Registering client failed", "hub", hub.Name(), "error", err)
			_ = conn.Close()
		}
	}
}

// HealthHandler reports liveness along with the number of connected sessions per hub.
func HealthHandler(hubs ...*Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		connections := make(map[string]int, len(hubs))
		for _, h := range hubs {
			connections[h.Name()] = h.ClientCount()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"connections": connections,
		})
	}
}
