// Package testutil provides common utilities shared by the relaychat tests.
//
// It covers issuing credentials, dialing the realtime channels, reading the
// newline-batched event frames, and asserting HTTP response properties.
package testutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// Secret is the signing secret every test server is configured with.
const Secret = "test-secret"

// Origin is the browser origin test dialers present.
const Origin = "http://localhost:8080"

// Logger returns a debug logger for components under test.
func Logger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// Token issues a valid access token for the user.
func Token(t *testing.T, userID domain.UserID) string {
	t.Helper()
	token, err := auth.IssueToken(Secret, userID, time.Hour)
	require.NoError(t, err)
	return token
}

// WebSocketURL rewrites an http test server URL into the ws URL for path.
func WebSocketURL(t *testing.T, serverURL, path string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = path
	return u.String()
}

// ConnectWebSocket dials the URL presenting the token as the handshake
// payload. An empty token dials without a credential.
func ConnectWebSocket(wsURL, token string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	if token != "" {
		u, err := url.Parse(wsURL)
		if err != nil {
			return nil, nil, err
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		wsURL = u.String()
	}

	headers := http.Header{}
	headers.Set("Origin", Origin)

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil && resp.Body != nil && err == nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Envelope mirrors the wire frame for assertions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SendEvent writes one envelope.
func SendEvent(conn *websocket.Conn, event string, data any) error {
	return conn.WriteJSON(map[string]any{"event": event, "data": data})
}

// EventReader splits batched frames so each call yields one envelope.
type EventReader struct {
	conn    *websocket.Conn
	pending [][]byte
}

// NewEventReader wraps a connection.
func NewEventReader(conn *websocket.Conn) *EventReader {
	return &EventReader{conn: conn}
}

// Next returns the next envelope or fails once timeout elapses.
func (r *EventReader) Next(t *testing.T, timeout time.Duration) Envelope {
	t.Helper()
	env, err := r.next(timeout)
	require.NoError(t, err)
	return env
}

// ExpectNone asserts that nothing arrives within the window.
func (r *EventReader) ExpectNone(t *testing.T, window time.Duration) {
	t.Helper()
	env, err := r.next(window)
	if err == nil {
		t.Fatalf("expected no event, got %q", env.Event)
	}
}

func (r *EventReader) next(timeout time.Duration) (Envelope, error) {
	if len(r.pending) == 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return Envelope{}, err
		}
		_, frame, err := r.conn.ReadMessage()
		if err != nil {
			return Envelope{}, err
		}
		r.pending = bytes.Split(frame, []byte{'\n'})
	}
	raw := r.pending[0]
	r.pending = r.pending[1:]

	var env Envelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// Eventually polls cond until it holds or the timeout elapses.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}
