package server

import (
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	require.Equal(t, ":8080", cfg.Port)
	require.EqualValues(t, 512, cfg.MaxMessageSize)
	require.Equal(t, 5, cfg.RateLimit.Burst)
	require.True(t, cfg.VerifyRoomMembership)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("RATE_LIMIT_BURST", "0")
	t.Setenv("VERIFY_ROOM_MEMBERSHIP", "false")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Port)
	require.Equal(t, "s3cret", cfg.JWTSecret)
	require.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Origins())
	require.Equal(t, defaultBurst, cfg.RateLimit.Burst, "non-positive values fall back to defaults")
	require.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	require.False(t, cfg.VerifyRoomMembership)
}

func TestSanitize(t *testing.T) {
	cfg := Config{MaxMessageSize: -1, SendBufferSize: 0}.Sanitize()

	require.Equal(t, defaultPort, cfg.Port)
	require.EqualValues(t, defaultMaxMessageSize, cfg.MaxMessageSize)
	require.Equal(t, defaultSendBufferSize, cfg.SendBufferSize)
	require.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestOriginPolicy(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "listed", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "normalized case", allowed: []string{"HTTP://LOCALHOST:8080"}, origin: "http://localhost:8080", want: true},
		{name: "unlisted", allowed: []string{"http://localhost:8080"}, origin: "http://evil.example"},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anything.example", want: true},
		{name: "wildcard still rejects malformed", allowed: []string{"*"}, origin: "javascript:alert(1)"},
		{name: "invalid config entries ignored", allowed: []string{"not-a-url", " "}, origin: "http://localhost:8080"},
		{name: "no origin header", allowed: []string{"http://localhost:8080"}, origin: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, log)
			r := httptest.NewRequest("GET", "/ws/chat", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, policy.checkOrigin(r))
		})
	}
}

func TestConversationIDFrom(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: `"c1"`, want: "c1", ok: true},
		{raw: `{"conversationId":" c2 "}`, want: "c2", ok: true},
		{raw: `""`},
		{raw: `{}`},
		{raw: `42`},
	}

	for _, tt := range tests {
		got, ok := conversationIDFrom([]byte(tt.raw))
		require.Equal(t, tt.ok, ok, tt.raw)
		require.Equal(t, tt.want, got, tt.raw)
	}
}
