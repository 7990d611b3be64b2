// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the realtime service.
package server

import (
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// RateLimitConfig defines the parameters for per-connection inbound event rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port                 string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	CORSAllowedOrigins   string        `env:"CORS_ALLOWED_ORIGINS,default=*"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=512"`
	SendBufferSize       int           `env:"SEND_BUFFER_SIZE,default=256"`
	JWTSecret            string        `env:"JWT_ACCESS_SECRET,required=true"`
	DatabasePath         string        `env:"DATABASE_PATH,default=relaychat.db"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	VerifyRoomMembership bool          `env:"VERIFY_ROOM_MEMBERSHIP,default=true"`
	RateLimit            RateLimitConfig
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 512
	defaultSendBufferSize  = 256
	defaultBurst           = 5
	defaultRefillInterval  = time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() Config {
	return Config{
		Port:                 defaultPort,
		AllowedOrigins:       "http://localhost:8080",
		CORSAllowedOrigins:   "*",
		MaxMessageSize:       defaultMaxMessageSize,
		SendBufferSize:       defaultSendBufferSize,
		DatabasePath:         "relaychat.db",
		LogLevel:             "INFO",
		ShutdownTimeout:      defaultShutdownTimeout,
		VerifyRoomMembership: true,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
	}
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables fall back to the tag defaults.
func NewConfigFromEnv() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, err
	}
	return cfg.Sanitize(), nil
}

// Sanitize replaces empty or non-positive values with defaults.
func (cfg Config) Sanitize() Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	return cfg
}

// Origins returns the websocket origin allowlist as a slice.
func (cfg Config) Origins() []string {
	return parseOrigins(cfg.AllowedOrigins)
}

// CORSOrigins returns the HTTP CORS allowlist as a slice.
func (cfg Config) CORSOrigins() []string {
	return parseOrigins(cfg.CORSAllowedOrigins)
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
