package realtime

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opsbridge/control-service/internal/pkg/clock"
)

// Audit event types written to the daily log.
const (
	AuditConnection    = "connection"
	AuditDisconnection = "disconnection"
	AuditAuthFailed    = "auth_failed"
	AuditError         = "error"
	AuditTimeout       = "timeout"
	AuditSubscribe     = "subscribe"
	AuditUnsubscribe   = "unsubscribe"
)

// AuditLog appends connection lifecycle records to realtime_YYYY-MM-DD.log
// files, one JSON object per line. Write failures are logged and dropped.
type AuditLog struct {
	dir   string
	clock clock.Clock

	mu     sync.Mutex
	day    string
	file   *os.File
	logger zerolog.Logger
}

// NewAuditLog creates the directory if needed and returns an audit log.
func NewAuditLog(dir string, clk clock.Clock) (*AuditLog, error) {
	if dir == "" {
		return nil, fmt.Errorf("audit log directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	if clk == nil {
		clk = clock.SystemUTC{}
	}
	return &AuditLog{dir: dir, clock: clk}, nil
}

// FileName returns the audit file name for a day in YYYY-MM-DD form.
func FileName(day string) string {
	return "realtime_" + day + ".log"
}

// Record appends one lifecycle record.
func (a *AuditLog) Record(eventType string, p *Principal, fields map[string]interface{}) {
	if a == nil {
		return
	}
	now := a.clock.NowUTC()

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rotate(now.Format("2006-01-02")); err != nil {
		log.Error().Err(err).Msg("failed to open realtime audit log")
		return
	}

	ev := a.logger.Log().
		Str("type", eventType).
		Time("timestamp", now)
	if p != nil {
		ev = ev.Str("clientId", p.ClientID).
			Str("userId", p.UserID).
			Str("organizationId", p.OrganizationID).
			Str("role", p.Role)
	}
	ev.Fields(fields).Send()
}

// rotate opens the file for day if it is not the current one.
func (a *AuditLog) rotate(day string) error {
	if a.file != nil && a.day == day {
		return nil
	}
	if a.file != nil {
		_ = a.file.Close()
		a.file = nil
	}

	f, err := os.OpenFile(filepath.Join(a.dir, FileName(day)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	a.file = f
	a.day = day
	a.logger = zerolog.New(f)
	return nil
}

// Close closes the current file.
func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
