// Package automation tracks the lifecycle of automation sessions and streams
// their progress to realtime subscribers.
package automation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsbridge/control-service/internal/core/events"
	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/pkg/clock"
)

const (
	// DefaultRetention is how long an ended session stays queryable.
	DefaultRetention = time.Hour

	// SnapshotLogCount is the number of log lines returned by Get.
	SnapshotLogCount = 10
)

// Config holds the configuration for the session registry.
type Config struct {
	Publisher events.Publisher // optional
	Mirror    *Mirror          // optional
	Clock     clock.Clock
	Retention time.Duration
}

// StartRequest opens a new session. An empty ID is generated.
type StartRequest struct {
	ID             string `json:"sessionId"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
}

// entry holds one session. mu guards the fields; emit is taken before mu is
// released and held while the snapshot is mirrored and published, so
// subscribers and the mirror see changes in the order they were applied.
type entry struct {
	mu        sync.Mutex
	emit      sync.Mutex
	session   *models.AutomationSession
	expiresAt time.Time
}

// Registry owns every live session. The map is guarded by mu; each entry's
// fields are guarded by its own mutex so updates to different sessions never
// contend.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*entry
	publisher events.Publisher
	mirror    *Mirror
	clock     clock.Clock
	retention time.Duration
}

// NewRegistry creates a new session registry.
func NewRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	r := &Registry{
		sessions:  make(map[string]*entry),
		publisher: cfg.Publisher,
		mirror:    cfg.Mirror,
		clock:     cfg.Clock,
		retention: cfg.Retention,
	}
	if r.publisher == nil {
		r.publisher = events.Noop{}
	}
	if r.clock == nil {
		r.clock = clock.SystemUTC{}
	}
	if r.retention <= 0 {
		r.retention = DefaultRetention
	}
	return r, nil
}

// Start registers a new session in the starting state.
func (r *Registry) Start(ctx context.Context, req *StartRequest) (*models.AutomationSession, error) {
	if req == nil || strings.TrimSpace(req.OrganizationID) == "" {
		return nil, domainerrors.NewValidationError("organization id is required", "")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, domainerrors.NewValidationError("name is required", "")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := r.clock.NowUTC()

	e := &entry{session: &models.AutomationSession{
		ID:             id,
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Status:         models.SessionStatusStarting,
		StartTime:      now,
		LastActivity:   now,
		Logs:           []models.SessionLogEntry{},
	}}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return nil, domainerrors.NewConflictError("session already exists", id)
	}
	r.sessions[id] = e
	r.mu.Unlock()

	e.mu.Lock()
	snapshot := copySession(e.session, 0)
	e.emit.Lock()
	e.mu.Unlock()

	r.mirrorSave(ctx, snapshot)
	r.publish(snapshot, map[string]interface{}{
		"event":   events.SessionStarted,
		"session": snapshot,
	})
	e.emit.Unlock()

	log.Info().
		Str("session_id", id).
		Str("organization_id", req.OrganizationID).
		Msg("automation session started")
	return snapshot, nil
}

// Update merges the provided fields and appends an optional log line.
func (r *Registry) Update(ctx context.Context, id string, u *models.SessionUpdate) (*models.AutomationSession, error) {
	if u == nil {
		return nil, domainerrors.NewValidationError("update is required", "")
	}
	if u.Status != nil && !u.Status.Valid() {
		return nil, domainerrors.NewValidationError("invalid status", string(*u.Status))
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		return nil, domainerrors.NewValidationError("progress must be between 0 and 100", "")
	}

	e := r.lookup(id)
	if e == nil {
		return nil, domainerrors.NewNotFoundError("session", id)
	}

	now := r.clock.NowUTC()
	e.mu.Lock()
	s := e.session
	if u.Status != nil && s.Status.Terminal() && !u.Status.Terminal() {
		current := s.Status
		e.mu.Unlock()
		return nil, domainerrors.NewConflictError("session has already ended",
			fmt.Sprintf("cannot move from %s to %s", current, *u.Status))
	}
	if u.Status != nil {
		s.Status = *u.Status
		if s.Status.Terminal() && e.expiresAt.IsZero() {
			end := now
			s.EndTime = &end
			e.expiresAt = now.Add(r.retention)
		}
	}
	if u.CurrentStep != nil {
		s.CurrentStep = *u.CurrentStep
	}
	if u.Progress != nil {
		s.Progress = *u.Progress
	}
	var logEntry *models.SessionLogEntry
	if u.LogMessage != "" {
		level := u.LogLevel
		if level == "" {
			level = models.LogLevelInfo
		}
		appended := appendLog(s, models.SessionLogEntry{Timestamp: now, Message: u.LogMessage, Level: level})
		logEntry = &appended
	}
	s.LastActivity = now
	snapshot := copySession(s, 0)
	e.emit.Lock()
	e.mu.Unlock()
	defer e.emit.Unlock()

	data := map[string]interface{}{
		"event":       events.SessionUpdated,
		"sessionId":   snapshot.ID,
		"status":      snapshot.Status,
		"currentStep": snapshot.CurrentStep,
		"progress":    snapshot.Progress,
	}
	if logEntry != nil {
		data["log"] = logEntry
	}

	r.mirrorSave(ctx, snapshot)
	r.publish(snapshot, data)
	return snapshot, nil
}

// End closes a session with its result and schedules it for removal after
// the retention window.
func (r *Registry) End(ctx context.Context, id string, result *models.SessionResult) (*models.AutomationSession, error) {
	if result == nil {
		result = &models.SessionResult{}
	}

	e := r.lookup(id)
	if e == nil {
		return nil, domainerrors.NewNotFoundError("session", id)
	}

	now := r.clock.NowUTC()
	e.mu.Lock()
	s := e.session
	level, message := models.LogLevelSuccess, "Session completed successfully"
	s.Status = models.SessionStatusCompleted
	if !result.Success {
		s.Status = models.SessionStatusFailed
		level, message = models.LogLevelError, "Session failed"
		if result.Error != "" {
			message += ": " + result.Error
		}
	}
	end := now
	s.EndTime = &end
	s.LastActivity = now
	s.Result = result
	appendLog(s, models.SessionLogEntry{Timestamp: now, Message: message, Level: level})
	e.expiresAt = now.Add(r.retention)
	snapshot := copySession(s, 0)
	e.emit.Lock()
	e.mu.Unlock()

	r.mirrorSave(ctx, snapshot)
	r.publish(snapshot, map[string]interface{}{
		"event":     events.SessionEnded,
		"sessionId": snapshot.ID,
		"status":    snapshot.Status,
		"result":    snapshot.Result,
		"endTime":   snapshot.EndTime,
	})
	e.emit.Unlock()

	log.Info().
		Str("session_id", id).
		Str("status", string(snapshot.Status)).
		Msg("automation session ended")
	return snapshot, nil
}

// Get returns a snapshot of the session with its most recent log lines,
// consulting the mirror for sessions this process does not hold.
func (r *Registry) Get(ctx context.Context, id string) (*models.AutomationSession, error) {
	if e := r.lookup(id); e != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return copySession(e.session, SnapshotLogCount), nil
	}

	if r.mirror != nil {
		s, err := r.mirror.Load(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("session mirror read failed")
		} else if s != nil {
			return copySession(s, SnapshotLogCount), nil
		}
	}
	return nil, domainerrors.NewNotFoundError("session", id)
}

// List returns snapshots without logs, newest first. An empty organizationID
// lists every tenant.
func (r *Registry) List(organizationID string) []*models.AutomationSession {
	out := make([]*models.AutomationSession, 0)
	for _, e := range r.entries() {
		e.mu.Lock()
		if organizationID == "" || e.session.OrganizationID == organizationID {
			out = append(out, copySession(e.session, -1))
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// ActiveCount returns the number of sessions not in a terminal state.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, e := range r.entries() {
		e.mu.Lock()
		if !e.session.Status.Terminal() {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// State returns the snapshot pushed to subscribers of the automation topic.
// Params with a sessionId yield that session; otherwise the tenant's sessions.
func (r *Registry) State(ctx context.Context, params events.Params) (interface{}, bool) {
	if id := params["sessionId"]; id != "" {
		s, err := r.Get(ctx, id)
		if err != nil || s.OrganizationID != params.OrganizationID() {
			return nil, false
		}
		return s, true
	}
	org := params.OrganizationID()
	if org == "" {
		return nil, false
	}
	return r.List(org), true
}

// SweepExpired removes ended sessions past their retention window and returns
// how many were removed.
func (r *Registry) SweepExpired(ctx context.Context) int {
	now := r.clock.NowUTC()
	removed := 0
	for _, e := range r.entries() {
		e.mu.Lock()
		expired := !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
		id := e.session.ID
		e.mu.Unlock()
		if !expired {
			continue
		}

		r.mu.Lock()
		if r.sessions[id] == e {
			delete(r.sessions, id)
			removed++
		}
		r.mu.Unlock()

		if r.mirror != nil {
			if err := r.mirror.Delete(ctx, id); err != nil {
				log.Warn().Err(err).Str("session_id", id).Msg("session mirror delete failed")
			}
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.SweepExpired(ctx); n > 0 {
				log.Debug().Int("removed", n).Msg("expired automation sessions removed")
			}
		}
	}
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

func (r *Registry) entries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e)
	}
	return out
}

func (r *Registry) publish(s *models.AutomationSession, data map[string]interface{}) {
	r.publisher.PublishEvent(events.TopicAutomation,
		events.Params{"organizationId": s.OrganizationID, "sessionId": s.ID}, data)
	r.publisher.PublishEvent(events.TopicAutomation,
		events.Params{"organizationId": s.OrganizationID}, data)
}

func (r *Registry) mirrorSave(ctx context.Context, s *models.AutomationSession) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Save(ctx, s); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("session mirror write failed")
	}
}

// appendLog adds a line and trims the buffer to the most recent entries.
func appendLog(s *models.AutomationSession, line models.SessionLogEntry) models.SessionLogEntry {
	s.Logs = append(s.Logs, line)
	if len(s.Logs) > models.SessionLogCapacity {
		excess := len(s.Logs) - models.SessionLogCapacity
		s.Logs = append(s.Logs[:0:0], s.Logs[excess:]...)
	}
	return line
}

// copySession returns a deep copy keeping the last logCount lines; 0 keeps
// all lines and a negative count drops them.
func copySession(s *models.AutomationSession, logCount int) *models.AutomationSession {
	out := *s
	logs := s.Logs
	switch {
	case logCount < 0:
		logs = nil
	case logCount > 0 && len(logs) > logCount:
		logs = logs[len(logs)-logCount:]
	}
	out.Logs = append([]models.SessionLogEntry{}, logs...)
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	if s.Result != nil {
		result := *s.Result
		out.Result = &result
	}
	return &out
}
