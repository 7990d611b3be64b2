package server_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/domain"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestCreateServer(t *testing.T) {
	handler := http.NewServeMux()
	srv := server.CreateServer(":8080", handler)

	require.Equal(t, ":8080", srv.Addr)
	require.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	require.Equal(t, 15*time.Second, srv.ReadTimeout)
	require.Equal(t, 15*time.Second, srv.WriteTimeout)
	require.Equal(t, 60*time.Second, srv.IdleTimeout)
}

func TestServer_StartAndShutdownWithoutClients(t *testing.T) {
	log := testutil.Logger()
	srv := server.CreateServer("127.0.0.1:0", http.NewServeMux())

	errChan := make(chan error, 1)
	go func() { errChan <- server.StartServer(srv, log) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, server.ShutdownServer(srv, 2*time.Second, log))
	select {
	case err := <-errChan:
		require.NoError(t, err, "a clean shutdown is not an error")
	case <-time.After(2 * time.Second):
		t.Fatal("StartServer did not return")
	}
}

func TestHub_ConcurrentShutdownIsSafe(t *testing.T) {
	hub := server.NewHub("chat", server.NewConfig(), nil, testutil.Logger())
	go hub.Run()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- hub.Shutdown(2 * time.Second)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	_, err := hub.Deliver(context.Background(), server.Delivery{Room: "c1", Payload: []byte("{}")})
	require.ErrorIs(t, err, server.ErrHubClosed)
}

func TestHub_ConcurrentConnections(t *testing.T) {
	ts := newTestServer(t, nil)
	const clients = 10

	wsURL := testutil.WebSocketURL(t, ts.URL, server.ChatPath)
	tokens := make([]string, clients)
	for i := range tokens {
		tokens[i] = testutil.Token(t, domain.UserID(i+1))
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns []*websocket.Conn
	)
	errs := make(chan error, clients)
	for i, token := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := testutil.ConnectWebSocket(wsURL, token)
			if err != nil {
				errs <- fmt.Errorf("client %d dial: %w", i, err)
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			if err := testutil.SendEvent(conn, server.EventJoinConversation, "lobby"); err != nil {
				errs <- fmt.Errorf("client %d join: %w", i, err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	t.Cleanup(func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	})
	for err := range errs {
		require.NoError(t, err)
	}

	testutil.Eventually(t, func() bool { return ts.chat.RoomSize("lobby") == clients }, "all clients joined")

	n, err := ts.dispatcher.DispatchMessage(context.Background(), domain.Message{ID: "m1", ConversationID: "lobby", SenderID: 1, Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, clients, n)
}
