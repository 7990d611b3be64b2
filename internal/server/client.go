// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	pongWait        = 60 * time.Second
	pingPeriod      = 54 * time.Second
	writeWait       = 10 * time.Second
	membershipCheck = 5 * time.Second
)

// Client is one authenticated realtime connection. The principal is fixed at
// construction; the room set is owned by the hub and guarded by its mutex.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	principal      auth.Principal
	rooms          map[string]struct{}
	closed         bool
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig
	log            *slog.Logger
}

// NewClient creates a Client bound to an authenticated principal. The send
// channel is buffered to absorb bursts of deliveries.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, principal auth.Principal) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		addr:           addr,
		principal:      principal,
		rooms:          make(map[string]struct{}),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		log:            hub.log.With("addr", addr, "user", principal.UserID),
	}
}

// UserID returns the identity the connection was admitted under.
func (c *Client) UserID() domain.UserID {
	return c.principal.UserID
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info("Client disconnected", "reason", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info("Client connection closed", "reason", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warn("Unexpected WebSocket error", "error", err)
		return true
	}

	c.log.Warn("WebSocket read error", "error", err)
	return true
}

// checkRateLimit reports whether the inbound event fits the token bucket.
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Warn("Rate limit exceeded; discarding event", "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes one inbound envelope and applies it.
func (c *Client) processMessage(rawMessage []byte) {
	var env Envelope
	if err := json.Unmarshal(rawMessage, &env); err != nil {
		c.log.Debug("Invalid envelope", "error", err)
		c.sendError(CodeInvalidPayload, "malformed event envelope")
		return
	}

	switch env.Event {
	case EventJoinConversation, EventLeaveConversation:
		if c.hub.roomless {
			c.sendError(CodeUnsupportedEvent, env.Event+" is not served on the "+c.hub.name+" channel")
			return
		}
		if env.Event == EventJoinConversation {
			c.handleJoin(env.Data)
		} else {
			c.handleLeave(env.Data)
		}
	default:
		c.sendError(CodeUnsupportedEvent, "unsupported event "+env.Event)
	}
}

func (c *Client) handleJoin(data json.RawMessage) {
	conversationID, ok := conversationIDFrom(data)
	if !ok {
		c.sendError(CodeInvalidPayload, "conversation id is required")
		return
	}

	if checker := c.hub.checker; checker != nil {
		ctx, cancel := context.WithTimeout(c.hub.ctx, membershipCheck)
		member, err := checker.IsParticipant(ctx, conversationID, c.principal.UserID)
		cancel()
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.sendError(CodeNotFound, "conversation not found")
			return
		case err != nil:
			c.log.Error("Membership check failed", "conversation", conversationID, "error", err)
			c.sendError(CodeInternal, "membership check failed")
			return
		case !member:
			c.log.Info("Join rejected for non-participant", "conversation", conversationID)
			c.sendError(CodeForbidden, "not a participant of this conversation")
			return
		}
	}

	if _, err := c.hub.Join(c, conversationID); err != nil {
		c.log.Debug("Join dropped", "conversation", conversationID, "error", err)
	}
}

func (c *Client) handleLeave(data json.RawMessage) {
	conversationID, ok := conversationIDFrom(data)
	if !ok {
		c.sendError(CodeInvalidPayload, "conversation id is required")
		return
	}
	if _, err := c.hub.Leave(c, conversationID); err != nil {
		c.log.Debug("Leave dropped", "conversation", conversationID, "error", err)
	}
}

func (c *Client) sendError(code, message string) {
	payload, err := EncodeEnvelope(EventError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		c.log.Error("Encoding error event", "error", err)
		return
	}
	if !c.hub.safeSend(c, payload) {
		c.log.Debug("Error event dropped", "code", code)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn("Error closing connection in readPump", "error", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return false
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error closing connection in writePump", "error", err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing close message", "error", err)
		}
	}
	return false
}

// writeTextMessage writes a frame holding the message and every envelope
// already queued behind it, separated by newlines.
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Warn("Error creating writer", "error", err)
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.log.Warn("Error writing message", "error", err)
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Warn("Error writing separator", "error", err)
			return false
		}
		if _, err := w.Write(queued); err != nil {
			c.log.Warn("Error writing queued message", "error", err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warn("Error closing writer", "error", err)
		return false
	}
	return true
}

func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}
