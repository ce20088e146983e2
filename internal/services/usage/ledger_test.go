package usage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/infrastructure/docdb/memory"
	"github.com/opsbridge/control-service/internal/pkg/clock"
	"github.com/opsbridge/control-service/internal/services/usage"
	"github.com/opsbridge/control-service/tests/mocks"
)

func newLedger(t *testing.T, start time.Time) (*usage.Ledger, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(start)
	ledger, err := usage.NewLedger(&usage.Config{
		Collection: memory.NewClient().Usage(),
		Clock:      clk,
	})
	require.NoError(t, err)
	return ledger, clk
}

func TestNewLedger_NilConfig(t *testing.T) {
	ledger, err := usage.NewLedger(nil)
	assert.Nil(t, ledger)
	assert.Contains(t, err.Error(), "config is required")
}

func TestCostMicros(t *testing.T) {
	rates := models.TokenCost{Input: 0.01, Output: 0.03}

	// 1000 prompt tokens at 0.01 + 500 completion tokens at 0.03 = 0.025
	assert.Equal(t, int64(25_000), usage.CostMicros(1000, 500, rates))
}

func TestRecordUsage_AdditiveWithinMonth(t *testing.T) {
	// Arrange
	ledger, _ := newLedger(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	rates := models.TokenCost{Input: 0.01, Output: 0.03}
	c1 := usage.CostMicros(120, 80, rates)
	c2 := usage.CostMicros(300, 45, rates)

	// Act
	_, err := ledger.RecordUsage(ctx, "org-a", 200, c1)
	require.NoError(t, err)
	res, err := ledger.RecordUsage(ctx, "org-a", 345, c2)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, int64(545), res.CurrentMonth.Tokens)
	assert.Equal(t, int64(2), res.CurrentMonth.Requests)
	assert.Equal(t, c1+c2, res.CurrentMonth.CostMicros)
	assert.False(t, res.HasReachedLimit)
}

func TestRecordUsage_MonthRolloverArchivesOnce(t *testing.T) {
	// Arrange
	ledger, clk := newLedger(t, time.Date(2026, 3, 30, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := ledger.RecordUsage(ctx, "org-a", 100, 10)
	require.NoError(t, err)
	_, err = ledger.RecordUsage(ctx, "org-a", 50, 5)
	require.NoError(t, err)

	// Act
	clk.Set(time.Date(2026, 4, 1, 0, 0, 1, 0, time.UTC))
	res, err := ledger.RecordUsage(ctx, "org-a", 7, 1)
	require.NoError(t, err)
	_, err = ledger.RecordUsage(ctx, "org-a", 3, 1)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, int64(7), res.CurrentMonth.Tokens)
	assert.Equal(t, int64(1), res.CurrentMonth.Requests)

	record, err := ledger.GetOrCreate(ctx, "org-a")
	require.NoError(t, err)
	require.Len(t, record.Usage.History, 1)
	assert.Equal(t, models.MonthHistory{Year: 2026, Month: 3, Tokens: 150, Requests: 2, CostMicros: 15}, record.Usage.History[0])
	assert.Equal(t, int64(10), record.Usage.CurrentMonth.Tokens)
}

func TestRecordUsage_ThresholdAlertOncePerMonth(t *testing.T) {
	// Arrange
	ledger, clk := newLedger(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	limits := models.UsageLimits{HasLimit: true, MonthlyTokenLimit: 1000, AlertThreshold: 0.8}
	_, err := ledger.UpdateSettings(ctx, "org-a", &usage.SettingsUpdate{UsageLimits: &limits})
	require.NoError(t, err)

	// Act
	for i := 0; i < 5; i++ {
		_, err := ledger.RecordUsage(ctx, "org-a", 170, 0) // 170, 340, 510, 680, 850
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := ledger.RecordUsage(ctx, "org-a", 10, 0) // stays in [0.8, 1.0)
		require.NoError(t, err)
	}

	// Assert
	record, err := ledger.GetOrCreate(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, 1, countAlerts(record, models.AlertTypeThreshold))

	// Acknowledging re-arms the alert for the same month.
	_, err = ledger.AcknowledgeAlert(ctx, "org-a", record.Alerts[0].ID, "u1")
	require.NoError(t, err)
	_, err = ledger.RecordUsage(ctx, "org-a", 1, 0)
	require.NoError(t, err)

	// Crossing the cap adds a single limit_reached alert.
	clk.Advance(time.Hour)
	res, err := ledger.RecordUsage(ctx, "org-a", 200, 0)
	require.NoError(t, err)
	assert.True(t, res.HasReachedLimit)
	_, err = ledger.RecordUsage(ctx, "org-a", 1, 0)
	require.NoError(t, err)

	record, err = ledger.GetOrCreate(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, 2, countAlerts(record, models.AlertTypeThreshold))
	assert.Equal(t, 1, countAlerts(record, models.AlertTypeLimitReached))
}

func TestRecordUsage_ConcurrentSameTenant(t *testing.T) {
	ledger, _ := newLedger(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.RecordUsage(ctx, "org-a", 2, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	record, err := ledger.GetOrCreate(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, int64(100), record.Usage.CurrentMonth.Tokens)
	assert.Equal(t, int64(50), record.Usage.CurrentMonth.Requests)
	assert.Equal(t, int64(150), record.Usage.CurrentMonth.CostMicros)
}

func TestRecordFallback_AppendsAlert(t *testing.T) {
	ledger, _ := newLedger(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	alert, err := ledger.RecordFallback(context.Background(), "org-a", "openai", "anthropic", "timeout")

	require.NoError(t, err)
	assert.Equal(t, models.AlertTypeFallback, alert.Type)
	assert.Contains(t, alert.Message, "openai")
	assert.NotEmpty(t, alert.ID)
}

func TestAcknowledgeAlert(t *testing.T) {
	ledger, clk := newLedger(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := ledger.AcknowledgeAlert(ctx, "org-a", "missing", "u1")
	assert.True(t, domainerrors.IsNotFound(err))

	alert, err := ledger.RecordError(ctx, "org-a", "provider down")
	require.NoError(t, err)

	clk.Advance(time.Minute)
	acked, err := ledger.AcknowledgeAlert(ctx, "org-a", alert.ID, "u1")
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)
	assert.Equal(t, "u1", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.True(t, acked.AcknowledgedAt.Equal(clk.NowUTC()))
}

func TestUpdateSettings_ValidatesThreshold(t *testing.T) {
	ledger, _ := newLedger(t, time.Now())

	_, err := ledger.UpdateSettings(context.Background(), "org-a", &usage.SettingsUpdate{
		UsageLimits: &models.UsageLimits{HasLimit: true, MonthlyTokenLimit: 10, AlertThreshold: 1.5},
	})

	assert.True(t, domainerrors.IsValidationError(err))
}

func countAlerts(record *models.UsageRecord, kind models.AlertType) int {
	n := 0
	for _, a := range record.Alerts {
		if a.Type == kind {
			n++
		}
	}
	return n
}

func TestCheckQuota_BlocksOnlyWithinSameMonth(t *testing.T) {
	// Arrange
	ledger, clk := newLedger(t, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	limit := &models.UsageLimits{HasLimit: true, MonthlyTokenLimit: 100, AlertThreshold: 0.8}
	_, err := ledger.UpdateSettings(ctx, "org-a", &usage.SettingsUpdate{UsageLimits: limit})
	require.NoError(t, err)
	_, err = ledger.RecordUsage(ctx, "org-a", 100, 0)
	require.NoError(t, err)

	// Act
	_, sameMonthErr := ledger.CheckQuota(ctx, "org-a")
	clk.Set(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	record, nextMonthErr := ledger.CheckQuota(ctx, "org-a")

	// Assert
	assert.True(t, domainerrors.HasCode(sameMonthErr, domainerrors.ErrCodeQuotaExceeded))
	require.NoError(t, nextMonthErr)
	assert.NotNil(t, record)
}

func TestRecordUsage_StoreFailureIsInternalError(t *testing.T) {
	// Arrange
	collection := &mocks.MockUsageCollection{}
	collection.On("Get", mock.Anything, "org-a").Return(nil, nil)
	collection.On("Save", mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	ledger, err := usage.NewLedger(&usage.Config{Collection: collection})
	require.NoError(t, err)

	// Act
	_, err = ledger.RecordUsage(context.Background(), "org-a", 10, 0)

	// Assert
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeInternal))
	collection.AssertExpectations(t)
}
