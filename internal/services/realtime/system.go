package realtime

import (
	"context"
	"runtime"
	"time"

	"github.com/opsbridge/control-service/internal/core/events"
	"github.com/opsbridge/control-service/internal/pkg/clock"
)

// SessionCounter reports how many automation sessions are running.
type SessionCounter interface {
	ActiveCount() int
}

// SystemState is the snapshot served on the system topic.
type SystemState struct {
	ConnectedClients int       `json:"connectedClients"`
	ActiveSessions   int       `json:"activeSessions"`
	UptimeSeconds    int64     `json:"uptime"`
	HeapAllocMB      float64   `json:"heapAllocMb"`
	Goroutines       int       `json:"goroutines"`
	Timestamp        time.Time `json:"timestamp"`
}

// SystemMonitor builds SystemState snapshots.
type SystemMonitor struct {
	broker    *Broker
	sessions  SessionCounter
	clock     clock.Clock
	startedAt time.Time
}

// NewSystemMonitor creates a monitor. sessions may be nil.
func NewSystemMonitor(broker *Broker, sessions SessionCounter, clk clock.Clock) *SystemMonitor {
	if clk == nil {
		clk = clock.SystemUTC{}
	}
	return &SystemMonitor{broker: broker, sessions: sessions, clock: clk, startedAt: clk.NowUTC()}
}

// Snapshot returns the current system state.
func (m *SystemMonitor) Snapshot() *SystemState {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	now := m.clock.NowUTC()
	state := &SystemState{
		UptimeSeconds: int64(now.Sub(m.startedAt).Seconds()),
		HeapAllocMB:   float64(mem.HeapAlloc) / (1024 * 1024),
		Goroutines:    runtime.NumGoroutine(),
		Timestamp:     now,
	}
	if m.broker != nil {
		state.ConnectedClients = m.broker.ConnectedClients()
	}
	if m.sessions != nil {
		state.ActiveSessions = m.sessions.ActiveCount()
	}
	return state
}

// State implements StateSource for the system topic.
func (m *SystemMonitor) State(_ context.Context, _ events.Params) (interface{}, bool) {
	return m.Snapshot(), true
}
