package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	chat          *server.Hub
	notifications *server.Hub
	dispatcher    *server.Dispatcher
}

func newTestServer(t *testing.T, customize func(cfg *server.Config)) *testServer {
	t.Helper()
	cfg := server.NewConfig()
	cfg.JWTSecret = testutil.Secret
	if customize != nil {
		customize(&cfg)
	}
	cfg = cfg.Sanitize()

	log := testutil.Logger()
	validator, err := auth.NewHS256Validator(cfg.JWTSecret)
	require.NoError(t, err)

	chat := server.NewHub("chat", cfg, nil, log)
	notifications := server.NewSessionHub("notifications", cfg, log)
	go chat.Run()
	go notifications.Run()

	r := chi.NewRouter()
	server.SetupRoutes(r, server.NewGate(validator, cfg, log), chat, notifications)
	ts := httptest.NewServer(r)

	t.Cleanup(func() {
		ts.Close()
		_ = chat.Shutdown(time.Second)
		_ = notifications.Shutdown(time.Second)
	})

	return &testServer{
		Server:        ts,
		chat:          chat,
		notifications: notifications,
		dispatcher:    server.NewDispatcher(chat, notifications, log),
	}
}

func (s *testServer) dial(t *testing.T, path string, userID domain.UserID) *websocket.Conn {
	t.Helper()
	conn, _, err := testutil.ConnectWebSocket(testutil.WebSocketURL(t, s.URL, path), testutil.Token(t, userID))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGate_RejectsMissingCredential(t *testing.T) {
	ts := newTestServer(t, nil)

	conn, resp, err := testutil.ConnectWebSocket(testutil.WebSocketURL(t, ts.URL, server.ChatPath), "")
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)

	require.Zero(t, ts.chat.ClientCount(), "a rejected handshake creates no binding")
}

func TestGate_RejectsInvalidCredential(t *testing.T) {
	ts := newTestServer(t, nil)

	expired, err := auth.IssueToken(testutil.Secret, 1, -time.Minute)
	require.NoError(t, err)
	forged, err := auth.IssueToken("other-secret", 1, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{"garbage": "not-a-jwt", "expired": expired, "forged": forged} {
		t.Run(name, func(t *testing.T) {
			_, resp, err := testutil.ConnectWebSocket(testutil.WebSocketURL(t, ts.URL, server.NotificationsPath), token)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer func() { _ = resp.Body.Close() }()
			testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
		})
	}
	require.Zero(t, ts.notifications.ClientCount())
}

func TestGate_CredentialChannels(t *testing.T) {
	ts := newTestServer(t, nil)
	wsURL := testutil.WebSocketURL(t, ts.URL, server.NotificationsPath)
	token := testutil.Token(t, 5)

	t.Run("authorization header", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", testutil.Origin)
		header.Set("Authorization", "Bearer "+token)
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.NoError(t, err)
		_ = conn.Close()
	})

	t.Run("access cookie", func(t *testing.T) {
		header := http.Header{}
		header.Set("Origin", testutil.Origin)
		header.Set("Cookie", "accessToken="+token)
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.NoError(t, err)
		_ = conn.Close()
	})
}

func TestGate_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+server.ChatPath, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	testutil.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
}

func TestGate_OriginPolicy(t *testing.T) {
	ts := newTestServer(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = "http://example.com"
	})
	wsURL := testutil.WebSocketURL(t, ts.URL, server.ChatPath) + "?token=" + testutil.Token(t, 1)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{name: "exact match", origin: "http://example.com", allowed: true},
		{name: "case insensitive", origin: "HTTP://Example.COM", allowed: true},
		{name: "path ignored", origin: "http://example.com/some/path", allowed: true},
		{name: "native client without origin", origin: "", allowed: true},
		{name: "different scheme", origin: "https://example.com"},
		{name: "different port", origin: "http://example.com:9090"},
		{name: "malformed", origin: "not-a-url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if tt.allowed {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			_ = resp.Body.Close()
			testutil.AssertStatusCode(t, resp, http.StatusForbidden)
		})
	}
}

func TestGate_MessageSizeLimitClosesConnection(t *testing.T) {
	ts := newTestServer(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 64
	})
	conn := ts.dial(t, server.ChatPath, 1)
	testutil.Eventually(t, func() bool { return ts.chat.ClientCount() == 1 }, "client registered")

	oversized := strings.Repeat("x", 128)
	require.NoError(t, testutil.SendEvent(conn, server.EventJoinConversation, oversized))

	testutil.Eventually(t, func() bool { return ts.chat.ClientCount() == 0 }, "oversized frame drops the connection")
}

func TestGate_RateLimitDiscardsExcessEvents(t *testing.T) {
	ts := newTestServer(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 3, RefillInterval: time.Hour}
	})
	conn := ts.dial(t, server.ChatPath, 1)

	rooms := []string{"r1", "r2", "r3", "r4", "r5", "r6"}
	for _, room := range rooms {
		require.NoError(t, testutil.SendEvent(conn, server.EventJoinConversation, room))
	}

	joined := func() int {
		n := 0
		for _, room := range rooms {
			n += ts.chat.RoomSize(room)
		}
		return n
	}
	testutil.Eventually(t, func() bool { return joined() == 3 }, "burst admitted")
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 3, joined(), "events beyond the burst are discarded")
}

func TestDispatcher_MessageReachesJoinedMembersOnly(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.dial(t, server.ChatPath, 1)
	bob := ts.dial(t, server.ChatPath, 2)
	carol := ts.dial(t, server.ChatPath, 3)

	require.NoError(t, testutil.SendEvent(alice, server.EventJoinConversation, "c1"))
	require.NoError(t, testutil.SendEvent(bob, server.EventJoinConversation, map[string]string{"conversationId": "c1"}))
	require.NoError(t, testutil.SendEvent(carol, server.EventJoinConversation, "c2"))
	testutil.Eventually(t, func() bool { return ts.chat.RoomSize("c1") == 2 }, "both joined")

	msg := domain.Message{ID: "m1", ConversationID: "c1", SenderID: 1, Content: "hi", CreatedAt: time.Now().UTC()}
	n, err := ts.dispatcher.DispatchMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, conn := range []*websocket.Conn{alice, bob} {
		env := testutil.NewEventReader(conn).Next(t, time.Second)
		require.Equal(t, server.EventNewMessage, env.Event)
		require.Contains(t, string(env.Data), `"content":"hi"`)
	}
	testutil.NewEventReader(carol).ExpectNone(t, 150*time.Millisecond)
}

func TestDispatcher_DisconnectedMemberReceivesNothing(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.dial(t, server.ChatPath, 1)

	require.NoError(t, testutil.SendEvent(alice, server.EventJoinConversation, "a"))
	require.NoError(t, testutil.SendEvent(alice, server.EventJoinConversation, "b"))
	testutil.Eventually(t, func() bool { return ts.chat.RoomSize("a") == 1 && ts.chat.RoomSize("b") == 1 }, "joined both")

	require.NoError(t, alice.Close())
	testutil.Eventually(t, func() bool { return ts.chat.ClientCount() == 0 }, "disconnect observed")

	for _, room := range []string{"a", "b"} {
		n, err := ts.dispatcher.DispatchMessage(context.Background(), domain.Message{ID: "m-" + room, ConversationID: room})
		require.NoError(t, err)
		require.Zero(t, n)
	}
}

func TestDispatcher_NotificationReachesEverySession(t *testing.T) {
	ts := newTestServer(t, nil)
	firstTab := ts.dial(t, server.NotificationsPath, 3)
	secondTab := ts.dial(t, server.NotificationsPath, 3)
	other := ts.dial(t, server.NotificationsPath, 4)
	testutil.Eventually(t, func() bool { return ts.notifications.SessionCount(3) == 2 }, "both tabs registered")

	n, err := ts.dispatcher.DispatchNotification(context.Background(), domain.Notification{
		ID: "n1", RecipientID: 3, Type: domain.NotificationNewMessage, Title: "New message", Content: "alice: hi",
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, conn := range []*websocket.Conn{firstTab, secondTab} {
		env := testutil.NewEventReader(conn).Next(t, time.Second)
		require.Equal(t, server.EventNotificationCreated, env.Event)
		require.Contains(t, string(env.Data), `"isRead":false`)
	}
	testutil.NewEventReader(other).ExpectNone(t, 150*time.Millisecond)
}

func TestHub_ShutdownClosesConnectedClients(t *testing.T) {
	ts := newTestServer(t, nil)
	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = ts.dial(t, server.ChatPath, domain.UserID(i+1))
	}
	testutil.Eventually(t, func() bool { return ts.chat.ClientCount() == len(conns) }, "all registered")

	require.NoError(t, ts.chat.Shutdown(2*time.Second))

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		_, _, err := conn.ReadMessage()
		require.Error(t, err)
	}
}

func TestHealthHandler(t *testing.T) {
	ts := newTestServer(t, nil)
	_ = ts.dial(t, server.ChatPath, 1)
	testutil.Eventually(t, func() bool { return ts.chat.ClientCount() == 1 }, "registered")

	resp, err := http.Get(ts.URL + server.HealthPath)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
