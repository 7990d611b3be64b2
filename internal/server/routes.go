// Package server wires the realtime handlers onto the application router.
package server

import (
	"github.com/go-chi/chi/v5"
)

const (
	ChatPath          = "/ws/chat"
	NotificationsPath = "/ws/notifications"
	HealthPath        = "/healthz"
)

// SetupRoutes mounts the health check and both realtime channels on r.
func SetupRoutes(r chi.Router, gate *Gate, chat, notifications *Hub) {
	r.Get(HealthPath, HealthHandler(chat, notifications))
	r.HandleFunc(ChatPath, gate.Handler(chat))
	r.HandleFunc(NotificationsPath, gate.Handler(notifications))
}
