package models

import "time"

// SessionStatus is the lifecycle state of an automation session.
type SessionStatus string

const (
	SessionStatusStarting  SessionStatus = "starting"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusStopped   SessionStatus = "stopped"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusStarting, SessionStatusRunning, SessionStatusCompleted, SessionStatusFailed, SessionStatusStopped:
		return true
	}
	return false
}

// Terminal reports whether s closes the session.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed || s == SessionStatusStopped
}

// Log levels accepted on session log entries.
const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
	LogLevelSuccess = "success"
)

// SessionLogCapacity bounds the per-session log ring buffer.
const SessionLogCapacity = 100

// SessionLogEntry is one line in a session log.
type SessionLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
}

// AutomationSession is a registry-owned snapshot of a running automation.
type AutomationSession struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	OrganizationID string            `json:"organizationId"`
	UserID         string            `json:"userId"`
	Status         SessionStatus     `json:"status"`
	CurrentStep    string            `json:"currentStep,omitempty"`
	Progress       int               `json:"progress"`
	StartTime      time.Time         `json:"startTime"`
	EndTime        *time.Time        `json:"endTime,omitempty"`
	LastActivity   time.Time         `json:"lastActivity"`
	Logs           []SessionLogEntry `json:"logs"`
	Result         *SessionResult    `json:"result,omitempty"`
}

// SessionUpdate carries the optional fields merged by an update.
type SessionUpdate struct {
	Status      *SessionStatus `json:"status,omitempty"`
	CurrentStep *string        `json:"currentStep,omitempty"`
	Progress    *int           `json:"progress,omitempty"`
	LogMessage  string         `json:"logMessage,omitempty"`
	LogLevel    string         `json:"logLevel,omitempty"`
}

// SessionResult is the terminal payload of an automation session.
type SessionResult struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
