package ratelimit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/pkg/clock"
)

// Guard applies a provider's RateLimits policy before and after dispatch.
type Guard struct {
	limiter Limiter
	clock   clock.Clock
}

// NewGuard creates a guard over the given limiter.
func NewGuard(limiter Limiter, clk clock.Clock) *Guard {
	if clk == nil {
		clk = clock.SystemUTC{}
	}
	return &Guard{limiter: limiter, clock: clk}
}

func requestsKey(providerID string) string { return "provider:" + providerID + ":rpm" }
func tokensKey(providerID string) string   { return "provider:" + providerID + ":tpm" }

// Acquire reserves one request and verifies the token budget is not spent.
// It returns a RATE_LIMITED domain error when either budget is exhausted.
func (g *Guard) Acquire(ctx context.Context, provider *models.Provider) error {
	now := g.clock.NowUTC()
	limits := provider.RateLimits

	res, err := g.limiter.Allow(ctx, requestsKey(provider.ID), limits.RequestsPerMinute, 1, now)
	if err != nil {
		// Limiter errors fail open.
		log.Warn().Err(err).Str("provider", provider.Name).Msg("rate limiter unavailable")
		return nil
	}
	if !res.Allowed {
		return domainerrors.NewRateLimitedError(provider.Name, fmt.Sprintf("%d requests/min", limits.RequestsPerMinute))
	}

	res, err = g.limiter.Allow(ctx, tokensKey(provider.ID), limits.TokensPerMinute, 0, now)
	if err != nil {
		log.Warn().Err(err).Str("provider", provider.Name).Msg("rate limiter unavailable")
		return nil
	}
	if !res.Allowed {
		return domainerrors.NewRateLimitedError(provider.Name, fmt.Sprintf("%d tokens/min", limits.TokensPerMinute))
	}
	return nil
}

// RecordTokens charges tokens spent by a completed call to the provider's window.
func (g *Guard) RecordTokens(ctx context.Context, provider *models.Provider, tokens int) {
	if provider.RateLimits.TokensPerMinute <= 0 {
		return
	}
	if err := g.limiter.Record(ctx, tokensKey(provider.ID), tokens, g.clock.NowUTC()); err != nil {
		log.Warn().Err(err).Str("provider", provider.Name).Msg("failed to record provider tokens")
	}
}
