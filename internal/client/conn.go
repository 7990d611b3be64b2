package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 5 * time.Second
	writeWait        = 10 * time.Second
)

// Handler receives the data of one inbound event.
type Handler = func(data json.RawMessage)

// Conn is one authenticated realtime channel. Handlers run sequentially on
// the connection's read goroutine in arrival order.
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger

	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial opens a channel at wsURL, presenting token as the handshake payload.
// A rejected credential fails with domain.ErrUnauthorized.
func Dial(ctx context.Context, wsURL, token string, header http.Header, log *slog.Logger) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", wsURL, err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: realtime handshake rejected", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrTransient, u.Path, err)
	}

	c := &Conn{
		ws:       ws,
		log:      log.With("channel", u.Path),
		handlers: make(map[string]map[uint64]Handler),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// On subscribes h to event and returns a function that removes it.
func (c *Conn) On(event string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

// Emit sends one event envelope.
func (c *Conn) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{Event: event, Data: raw})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return c.closedErr()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Done is closed once the read loop stops.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the read loop stopped.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close sends a normal closure and waits for the read loop to stop.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Conn) closedErr() error {
	if c.err != nil {
		return fmt.Errorf("connection closed: %w", c.err)
	}
	return errors.New("connection closed")
}

func (c *Conn) readLoop() {
	defer c.closeOnce.Do(func() { close(c.done) })

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			c.err = err
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Realtime read loop stopped", "error", err)
			}
			return
		}

		// The server may batch several envelopes into one frame.
		for _, raw := range bytes.Split(frame, []byte{'\n'}) {
			if len(bytes.TrimSpace(raw)) == 0 {
				continue
			}
			c.dispatch(raw)
		}
	}
}

func (c *Conn) dispatch(raw []byte) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn("Dropping malformed event", "error", err)
		return
	}

	if env.Event == "error" {
		c.log.Warn("Server reported error", "data", string(env.Data))
	}

	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		h(env.Data)
	}
}
