package ratelimit

import (
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// TrackCooldown returns base stretched by a random 0-50% so that parallel
// workers do not hit the remote services in lockstep.
func TrackCooldown(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	return base + rand.N(base/2+1) //nolint:gosec
}

// NewLimiter allows perMinute requests per minute with a burst of one.
// A non-positive perMinute disables limiting.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}
