package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/pkg/clock"
	"github.com/opsbridge/control-service/internal/services/ratelimit"
)

func setupMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func limiters(t *testing.T) map[string]ratelimit.Limiter {
	return map[string]ratelimit.Limiter{
		"memory": ratelimit.NewMemoryLimiter(),
		"redis":  ratelimit.NewRedisLimiter(setupMiniredis(t), "test"),
	}
}

func TestLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 10, 0, time.UTC)

	for name, limiter := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				res, err := limiter.Allow(ctx, "k", 3, 1, now)
				require.NoError(t, err)
				assert.True(t, res.Allowed, "request %d", i)
			}

			res, err := limiter.Allow(ctx, "k", 3, 1, now.Add(30*time.Second))
			require.NoError(t, err)
			assert.False(t, res.Allowed)

			res, err = limiter.Allow(ctx, "k", 3, 1, now.Add(time.Minute))
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 2, res.Remaining)
		})
	}
}

func TestLimiter_ZeroCostChecksExhaustion(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, limiter := range limiters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			res, err := limiter.Allow(ctx, "tpm", 100, 0, now)
			require.NoError(t, err)
			assert.True(t, res.Allowed)

			require.NoError(t, limiter.Record(ctx, "tpm", 150, now))

			res, err = limiter.Allow(ctx, "tpm", 100, 0, now)
			require.NoError(t, err)
			assert.False(t, res.Allowed)
		})
	}
}

func TestLimiter_ZeroLimitIsUnlimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter()
	for i := 0; i < 10; i++ {
		res, err := limiter.Allow(context.Background(), "k", 0, 1, time.Now())
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestGuard_RejectsOverBudget(t *testing.T) {
	// Arrange
	clk := clock.NewManual(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	guard := ratelimit.NewGuard(ratelimit.NewMemoryLimiter(), clk)
	provider := &models.Provider{
		ID:         "p1",
		Name:       "openai",
		RateLimits: models.RateLimits{RequestsPerMinute: 1, TokensPerMinute: 50},
	}
	ctx := context.Background()

	// Act / Assert
	require.NoError(t, guard.Acquire(ctx, provider))

	err := guard.Acquire(ctx, provider)
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeRateLimited))

	clk.Advance(time.Minute)
	guard.RecordTokens(ctx, provider, 60)
	err = guard.Acquire(ctx, provider)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokens/min")
}
