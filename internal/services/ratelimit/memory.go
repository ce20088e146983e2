package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// entry returns key's counter, reset if the window moved. Caller holds mu.
func (l *MemoryLimiter) entry(key string, window int64) *memoryEntry {
	e := l.counters[key]
	if e == nil {
		e = &memoryEntry{window: window}
		l.counters[key] = e
	}
	if e.window != window {
		e.window = window
		e.count = 0
	}
	return e
}

// Allow checks and consumes budget in the current minute.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit, cost int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	window := windowStart(now)
	reset := windowReset(window)

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entry(key, window)
	if e.count >= limit || e.count+cost > limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	e.count += cost
	return Result{Allowed: true, Remaining: limit - e.count, Reset: reset}, nil
}

// Record adds cost to the current minute.
func (l *MemoryLimiter) Record(_ context.Context, key string, cost int, now time.Time) error {
	if key == "" || cost <= 0 {
		return nil
	}
	l.mu.Lock()
	l.entry(key, windowStart(now)).count += cost
	l.mu.Unlock()
	return nil
}
