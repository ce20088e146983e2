// Package usage implements the per-tenant monthly token and cost ledger.
package usage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsbridge/control-service/internal/core/docdb"
	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/pkg/clock"
	"github.com/opsbridge/control-service/internal/pkg/keymutex"
)

// Config holds the configuration for the usage ledger.
type Config struct {
	Collection docdb.UsageCollection
	Clock      clock.Clock
}

// Ledger records usage against tenant records. Mutations for one tenant are
// serialized; different tenants proceed in parallel.
type Ledger struct {
	collection docdb.UsageCollection
	clock      clock.Clock
	locks      *keymutex.KeyMutex
}

// RecordResult is returned by RecordUsage.
type RecordResult struct {
	CurrentMonth    models.MonthUsage `json:"currentMonth"`
	HasReachedLimit bool              `json:"hasReachedLimit"`
}

// SettingsUpdate carries optional settings changes.
type SettingsUpdate struct {
	CustomProviderSettings *bool                `json:"customProviderSettings,omitempty"`
	PreferredProviderID    *string              `json:"preferredProviderId,omitempty"`
	CustomModels           []models.CustomModel `json:"customModels,omitempty"`
	UsageLimits            *models.UsageLimits  `json:"usageLimits,omitempty"`
}

// NewLedger creates a new usage ledger.
func NewLedger(cfg *Config) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Collection == nil {
		return nil, fmt.Errorf("usage collection is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.SystemUTC{}
	}

	return &Ledger{
		collection: cfg.Collection,
		clock:      clk,
		locks:      keymutex.New(),
	}, nil
}

// CostMicros converts token counts and per-1k rates into fixed-point micros.
func CostMicros(promptTokens, completionTokens int, rates models.TokenCost) int64 {
	cost := float64(promptTokens)*rates.Input/1000 + float64(completionTokens)*rates.Output/1000
	return int64(math.Round(cost * models.MicrosPerUnit))
}

// GetOrCreate loads a tenant's record, creating it with defaults if absent.
func (l *Ledger) GetOrCreate(ctx context.Context, organizationID string) (*models.UsageRecord, error) {
	if organizationID == "" {
		return nil, domainerrors.NewValidationError("organization id is required", "")
	}

	unlock := l.locks.Lock(organizationID)
	defer unlock()
	return l.load(ctx, organizationID)
}

// CheckQuota loads the tenant's record and fails with QUOTA_EXCEEDED when a
// cap is configured and the current month already meets it. A record last
// touched in an earlier month counts as empty.
func (l *Ledger) CheckQuota(ctx context.Context, organizationID string) (*models.UsageRecord, error) {
	record, err := l.GetOrCreate(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !sameMonth(record.Usage.CurrentMonth.LastUpdated, l.clock.NowUTC()) {
		return record, nil
	}
	if record.LimitReached() {
		return nil, domainerrors.NewQuotaExceededError(organizationID,
			record.Usage.CurrentMonth.Tokens, record.Settings.UsageLimits.MonthlyTokenLimit)
	}
	return record, nil
}

// load reads or creates the record. Caller holds the tenant lock.
func (l *Ledger) load(ctx context.Context, organizationID string) (*models.UsageRecord, error) {
	record, err := l.collection.Get(ctx, organizationID)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to load usage record", err)
	}
	if record != nil {
		return record, nil
	}

	record = models.NewUsageRecord(organizationID, l.clock.NowUTC())
	if err := l.collection.Save(ctx, record); err != nil {
		return nil, domainerrors.NewInternalError("failed to create usage record", err)
	}
	return record, nil
}

func (l *Ledger) save(ctx context.Context, record *models.UsageRecord, now time.Time) error {
	record.UpdatedAt = now
	if err := l.collection.Save(ctx, record); err != nil {
		return domainerrors.NewInternalError("failed to save usage record", err)
	}
	return nil
}

// RecordUsage adds tokens and cost to the tenant's current month, rolling the
// month over first when the calendar month has changed, then raises
// threshold and limit alerts as needed.
func (l *Ledger) RecordUsage(ctx context.Context, organizationID string, tokens int64, costMicros int64) (*RecordResult, error) {
	unlock := l.locks.Lock(organizationID)
	defer unlock()

	record, err := l.load(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	now := l.clock.NowUTC()
	rollover(record, now)

	current := &record.Usage.CurrentMonth
	current.Tokens += tokens
	current.Requests++
	current.CostMicros += costMicros
	current.LastUpdated = now

	limits := record.Settings.UsageLimits
	if limits.HasLimit && limits.MonthlyTokenLimit > 0 {
		used := float64(current.Tokens) / float64(limits.MonthlyTokenLimit)
		if used >= limits.AlertThreshold && used < 1.0 && !hasOpenAlert(record, models.AlertTypeThreshold, now) {
			appendAlert(record, models.AlertTypeThreshold,
				fmt.Sprintf("organization reached %d%% of its monthly token limit", int(math.Round(used*100))), now)
		}
		if used >= 1.0 && !hasOpenAlert(record, models.AlertTypeLimitReached, now) {
			appendAlert(record, models.AlertTypeLimitReached, "organization reached 100% of its monthly token limit", now)
		}
	}

	if err := l.save(ctx, record, now); err != nil {
		return nil, err
	}

	return &RecordResult{
		CurrentMonth:    *current,
		HasReachedLimit: record.LimitReached(),
	}, nil
}

// rollover archives the open month if now is in a different calendar month.
func rollover(record *models.UsageRecord, now time.Time) {
	current := &record.Usage.CurrentMonth
	last := current.LastUpdated
	if last.IsZero() || sameMonth(last, now) {
		return
	}

	record.Usage.History = append(record.Usage.History, models.MonthHistory{
		Year:       last.Year(),
		Month:      int(last.Month()),
		Tokens:     current.Tokens,
		Requests:   current.Requests,
		CostMicros: current.CostMicros,
	})
	current.Tokens = 0
	current.Requests = 0
	current.CostMicros = 0
	current.LastUpdated = now
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func hasOpenAlert(record *models.UsageRecord, kind models.AlertType, now time.Time) bool {
	for _, a := range record.Alerts {
		if a.Type == kind && !a.Acknowledged && sameMonth(a.Timestamp, now) {
			return true
		}
	}
	return false
}

func appendAlert(record *models.UsageRecord, kind models.AlertType, message string, now time.Time) models.UsageAlert {
	alert := models.UsageAlert{
		ID:        uuid.NewString(),
		Type:      kind,
		Message:   message,
		Timestamp: now,
	}
	record.Alerts = append(record.Alerts, alert)
	return alert
}

// RecordFallback appends a fallback alert to the tenant's log.
func (l *Ledger) RecordFallback(ctx context.Context, organizationID, fromProvider, toProvider, reason string) (*models.UsageAlert, error) {
	msg := fmt.Sprintf("LLM provider fallback from %s to %s: %s", fromProvider, toProvider, reason)
	return l.recordAlert(ctx, organizationID, models.AlertTypeFallback, msg)
}

// RecordError appends an error alert to the tenant's log.
func (l *Ledger) RecordError(ctx context.Context, organizationID, message string) (*models.UsageAlert, error) {
	return l.recordAlert(ctx, organizationID, models.AlertTypeError, message)
}

func (l *Ledger) recordAlert(ctx context.Context, organizationID string, kind models.AlertType, message string) (*models.UsageAlert, error) {
	unlock := l.locks.Lock(organizationID)
	defer unlock()

	record, err := l.load(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	now := l.clock.NowUTC()
	alert := appendAlert(record, kind, message, now)
	if err := l.save(ctx, record, now); err != nil {
		return nil, err
	}

	log.Info().
		Str("organization_id", organizationID).
		Str("alert_type", string(kind)).
		Msg(message)
	return &alert, nil
}

// AcknowledgeAlert marks an alert as acknowledged by a user.
func (l *Ledger) AcknowledgeAlert(ctx context.Context, organizationID, alertID, userID string) (*models.UsageAlert, error) {
	unlock := l.locks.Lock(organizationID)
	defer unlock()

	record, err := l.load(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	alert := record.FindAlert(alertID)
	if alert == nil {
		return nil, domainerrors.NewNotFoundError("alert", alertID)
	}

	now := l.clock.NowUTC()
	alert.Acknowledged = true
	alert.AcknowledgedBy = userID
	alert.AcknowledgedAt = &now
	acked := *alert

	if err := l.save(ctx, record, now); err != nil {
		return nil, err
	}
	return &acked, nil
}

// UpdateSettings merges settings changes into the tenant's record.
func (l *Ledger) UpdateSettings(ctx context.Context, organizationID string, update *SettingsUpdate) (*models.UsageRecord, error) {
	if update == nil {
		return nil, domainerrors.NewValidationError("settings update is required", "")
	}
	if update.UsageLimits != nil {
		if update.UsageLimits.MonthlyTokenLimit < 0 {
			return nil, domainerrors.NewValidationError("monthlyTokenLimit must not be negative", "")
		}
		if update.UsageLimits.AlertThreshold < 0 || update.UsageLimits.AlertThreshold > 1 {
			return nil, domainerrors.NewValidationError("alertThreshold must be between 0 and 1", "")
		}
	}

	unlock := l.locks.Lock(organizationID)
	defer unlock()

	record, err := l.load(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	settings := &record.Settings
	if update.CustomProviderSettings != nil {
		settings.CustomProviderSettings = *update.CustomProviderSettings
	}
	if update.PreferredProviderID != nil {
		settings.PreferredProviderID = *update.PreferredProviderID
	}
	if update.CustomModels != nil {
		settings.CustomModels = update.CustomModels
	}
	if update.UsageLimits != nil {
		settings.UsageLimits = *update.UsageLimits
	}

	if err := l.save(ctx, record, l.clock.NowUTC()); err != nil {
		return nil, err
	}
	return record, nil
}
