// Package ratelimit enforces per-provider request and token budgets using
// fixed one-minute windows, either in process or shared through Redis.
package ratelimit

import (
	"context"
	"time"
)

// Window is the length of a rate-limit window.
const Window = time.Minute

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides fixed-window budget checks.
type Limiter interface {
	// Allow consumes cost units from key's current window if the total stays
	// within limit. A zero cost only checks that the window is not exhausted.
	Allow(ctx context.Context, key string, limit, cost int, now time.Time) (Result, error)

	// Record adds cost units to key's current window unconditionally.
	Record(ctx context.Context, key string, cost int, now time.Time) error
}

// Limiter backends selectable through configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func windowStart(now time.Time) int64 {
	return now.Unix() / int64(Window/time.Second)
}

func windowReset(window int64) time.Time {
	return time.Unix((window+1)*int64(Window/time.Second), 0).UTC()
}
