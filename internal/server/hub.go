// Package server coordinates client registration, room membership, targeted
// delivery, and connection cleanup for the realtime system via the Hub type.
package server

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/domain"
)

// ErrHubClosed is returned by hub operations issued after shutdown.
var ErrHubClosed = errors.New("hub closed")

// Delivery targets either every member of a room or every session of a user.
type Delivery struct {
	Room    string
	UserID  domain.UserID
	Payload []byte
}

type membershipOp struct {
	client *Client
	room   string
	join   bool
	done   chan bool
}

type deliveryOp struct {
	delivery Delivery
	done     chan int
}

// Hub owns the only shared mutable server state: the connection table, the
// room membership table and the per-user session index. All mutations happen
// inside Run, each one under a single write lock, so a concurrent reader or
// delivery never observes a half-applied change.
type Hub struct {
	name       string
	clients    map[*Client]bool
	rooms      map[string]map[*Client]struct{}
	sessions   map[domain.UserID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	membership chan membershipOp
	deliveries chan deliveryOp
	checker    MembershipChecker
	roomless   bool
	cfg        Config
	log        *slog.Logger
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub named after the channel it serves. A nil checker admits
// every join without consulting the persistence collaborator.
func NewHub(name string, cfg Config, checker MembershipChecker, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]struct{}),
		sessions:   make(map[domain.UserID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		membership: make(chan membershipOp),
		deliveries: make(chan deliveryOp),
		checker:    checker,
		cfg:        cfg.Sanitize(),
		log:        log.With("hub", name),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// NewSessionHub creates a hub that only delivers to user sessions. Its clients
// cannot join rooms.
func NewSessionHub(name string, cfg Config, log *slog.Logger) *Hub {
	h := NewHub(name, cfg, nil, log)
	h.roomless = true
	return h
}

// Name returns the channel name the hub serves.
func (h *Hub) Name() string { return h.name }

// Register binds a new client to the hub and starts its pumps.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// Unregister releases a client and all of its room memberships. Calling it
// more than once for the same client is harmless.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Join adds the client to a room. It reports whether membership changed;
// joining an already-joined room is a no-op.
func (h *Hub) Join(client *Client, room string) (bool, error) {
	return h.applyMembership(membershipOp{client: client, room: room, join: true})
}

// Leave removes the client from a room. Leaving a room that was never joined is a no-op.
func (h *Hub) Leave(client *Client, room string) (bool, error) {
	return h.applyMembership(membershipOp{client: client, room: room, join: false})
}

func (h *Hub) applyMembership(op membershipOp) (bool, error) {
	op.done = make(chan bool, 1)
	select {
	case h.membership <- op:
	case <-h.ctx.Done():
		return false, ErrHubClosed
	}
	select {
	case changed := <-op.done:
		return changed, nil
	case <-h.ctx.Done():
		return false, ErrHubClosed
	}
}

// Deliver pushes a payload to the delivery's targets and returns how many
// sessions accepted it. Zero targets is not an error.
func (h *Hub) Deliver(ctx context.Context, d Delivery) (int, error) {
	op := deliveryOp{delivery: d, done: make(chan int, 1)}
	select {
	case h.deliveries <- op:
	case <-h.ctx.Done():
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-op.done:
		return n, nil
	case <-h.ctx.Done():
		return 0, ErrHubClosed
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if client is still registered and not closed
	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, membership changes and deliveries. This method should be
// called in a separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case op := <-h.membership:
			op.done <- h.handleMembership(op)

		case op := <-h.deliveries:
			op.done <- h.handleDelivery(op.delivery)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.log.Warn("Received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	userID := client.principal.UserID
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[*Client]struct{})
	}
	h.sessions[userID][client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.log.Info("Client registered", "addr", client.addr, "user", userID, "clients", clientCount)

	if client.conn == nil {
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	if !h.detach(client) {
		h.mutex.Unlock()
		return
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()
	// Close the channel after releasing the lock
	close(client.send)
	h.log.Info("Client unregistered", "addr", client.addr, "user", client.principal.UserID, "clients", clientCount)
}

// detach removes every trace of the client. The caller holds the write lock.
func (h *Hub) detach(client *Client) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	client.closed = true

	for room := range client.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	client.rooms = make(map[string]struct{})

	userID := client.principal.UserID
	if sessions := h.sessions[userID]; sessions != nil {
		delete(sessions, client)
		if len(sessions) == 0 {
			delete(h.sessions, userID)
		}
	}
	return true
}

func (h *Hub) handleMembership(op membershipOp) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[op.client]; !ok {
		return false
	}

	_, joined := op.client.rooms[op.room]
	switch {
	case op.join && !joined:
		if h.rooms[op.room] == nil {
			h.rooms[op.room] = make(map[*Client]struct{})
		}
		h.rooms[op.room][op.client] = struct{}{}
		op.client.rooms[op.room] = struct{}{}
		h.log.Debug("Client joined room", "addr", op.client.addr, "room", op.room, "members", len(h.rooms[op.room]))
		return true
	case !op.join && joined:
		delete(op.client.rooms, op.room)
		if members := h.rooms[op.room]; members != nil {
			delete(members, op.client)
			if len(members) == 0 {
				delete(h.rooms, op.room)
			}
		}
		h.log.Debug("Client left room", "addr", op.client.addr, "room", op.room)
		return true
	default:
		return false
	}
}

// handleDelivery sends the payload to every target and evicts targets whose
// send buffer is full.
func (h *Hub) handleDelivery(d Delivery) int {
	targets := h.targetSnapshot(d)
	if len(targets) == 0 {
		h.log.Debug("No connected targets for delivery", "room", d.Room, "user", d.UserID)
		return 0
	}

	h.log.Debug("Delivering event", "room", d.Room, "user", d.UserID, "targets", len(targets))

	delivered := 0
	var clientsToRemove []*Client
	for _, client := range targets {
		if h.safeSend(client, d.Payload) {
			delivered++
			continue
		}
		clientsToRemove = append(clientsToRemove, client)
	}
	h.removeFailedClients(clientsToRemove)
	return delivered
}

// targetSnapshot returns a thread-safe snapshot of the delivery's recipients.
func (h *Hub) targetSnapshot(d Delivery) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	var set map[*Client]struct{}
	if d.Room != "" {
		set = h.rooms[d.Room]
	} else {
		set = h.sessions[d.UserID]
	}

	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients removes clients that failed to receive messages and closes their channels
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if h.detach(client) {
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("Client removed due to full send buffer", "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// RoomsOf returns the rooms the client currently belongs to, sorted.
func (h *Hub) RoomsOf(client *Client) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	rooms := make([]string, 0, len(client.rooms))
	for room := range client.rooms {
		rooms = append(rooms, room)
	}
	slices.Sort(rooms)
	return rooms
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[room])
}

// SessionCount returns the number of connections bound to a user.
func (h *Hub) SessionCount(userID domain.UserID) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions[userID])
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.log.Warn("Error closing client connection", "addr", client.addr, "error", err)
				}
			}
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
