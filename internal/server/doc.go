// Package server implements the realtime half of relaychat: two WebSocket
// channels (chat rooms and per-user notifications) sharing one connection
// gate, plus the dispatcher the HTTP API uses to push persisted events.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, the connection gate, routing, and HTTP helpers.
package server
