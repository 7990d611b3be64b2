package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newLimiter builds a per-connection token bucket holding burst events that
// refills completely once per interval.
func newLimiter(cfg RateLimitConfig) *rate.Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = defaultRefillInterval
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst)
}
