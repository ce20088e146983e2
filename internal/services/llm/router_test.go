package llm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/infrastructure/docdb/memory"
	"github.com/opsbridge/control-service/internal/pkg/clock"
	"github.com/opsbridge/control-service/internal/pkg/encryption"
	"github.com/opsbridge/control-service/internal/services/llm"
	"github.com/opsbridge/control-service/internal/services/llm/adapters"
	"github.com/opsbridge/control-service/internal/services/prompts"
	"github.com/opsbridge/control-service/internal/services/providers"
	"github.com/opsbridge/control-service/internal/services/ratelimit"
	"github.com/opsbridge/control-service/internal/services/usage"
)

const okBody = `{"choices":[{"message":{"content":"pong"}}],"usage":{"prompt_tokens":600,"completion_tokens":400,"total_tokens":1000}}`

type fixture struct {
	router    *llm.Router
	registry  *providers.Registry
	ledger    *usage.Ledger
	prompts   *prompts.Service
	clock     *clock.Manual
	succeeded *httptest.Server
	failing   *httptest.Server
	calls     *int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewClient()
	clk := clock.NewManual(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))

	enc, err := encryption.NewAESEncryptor("test-key-for-aes-256-gcm-00000!!")
	require.NoError(t, err)
	registry, err := providers.NewRegistry(&providers.Config{Collection: store.Providers(), Encryptor: enc, Clock: clk})
	require.NoError(t, err)
	ledger, err := usage.NewLedger(&usage.Config{Collection: store.Usage(), Clock: clk})
	require.NoError(t, err)
	promptService, err := prompts.NewService(&prompts.Config{Collection: store.Prompts(), Clock: clk})
	require.NoError(t, err)

	var calls int64
	succeeded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		_, _ = w.Write([]byte(okBody))
	}))
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	t.Cleanup(succeeded.Close)
	t.Cleanup(failing.Close)

	router, err := llm.NewRouter(&llm.Config{
		Providers: registry,
		Prompts:   promptService,
		Ledger:    ledger,
		Adapters:  adapters.NewSet(http.DefaultClient),
		Guard:     ratelimit.NewGuard(ratelimit.NewMemoryLimiter(), clk),
	})
	require.NoError(t, err)

	return &fixture{
		router:    router,
		registry:  registry,
		ledger:    ledger,
		prompts:   promptService,
		clock:     clk,
		succeeded: succeeded,
		failing:   failing,
		calls:     &calls,
	}
}

func (f *fixture) addProvider(t *testing.T, name string, endpoint string, mutate func(p *models.Provider)) *models.Provider {
	t.Helper()
	p := &models.Provider{
		Name:         name,
		Type:         models.ProviderTypeOpenAI,
		Endpoint:     endpoint,
		APIKey:       "sk-" + name,
		IsActive:     true,
		DefaultModel: name + "-default",
		Models: []models.Model{
			{ModelID: name + "-default", CostPer1kTokens: models.TokenCost{Input: 0.01, Output: 0.03}},
			{ModelID: name + "-large", CostPer1kTokens: models.TokenCost{Input: 0.1, Output: 0.3}},
		},
	}
	if mutate != nil {
		mutate(p)
	}
	created, err := f.registry.Create(context.Background(), p)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return created
}

func TestNewRouter_RequiresCollaborators(t *testing.T) {
	router, err := llm.NewRouter(&llm.Config{})
	assert.Nil(t, router)
	assert.Contains(t, err.Error(), "provider source is required")

	router, err = llm.NewRouter(nil)
	assert.Nil(t, router)
	assert.Contains(t, err.Error(), "config is required")
}

func TestSendPrompt_SuccessRecordsUsageAndMetrics(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	f.addProvider(t, "openai", f.succeeded.URL, nil)
	prompt, err := f.prompts.Create(ctx, &models.Prompt{Name: "greet", Content: "Hello {{name}}", OrganizationID: "org-a", IsActive: true})
	require.NoError(t, err)

	// Act
	resp, err := f.router.SendPrompt(ctx, &llm.Request{
		OrganizationID: "org-a",
		PromptID:       prompt.ID,
		Variables:      map[string]string{"name": "Ana"},
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "openai-default", resp.Model)
	assert.Equal(t, 1000, resp.Usage.TotalTokens)
	// 600 * 0.01 / 1000 + 400 * 0.03 / 1000 = 0.018
	assert.Equal(t, int64(18_000), resp.CostMicros)

	record, err := f.ledger.GetOrCreate(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), record.Usage.CurrentMonth.Tokens)
	assert.Equal(t, int64(18_000), record.Usage.CurrentMonth.CostMicros)

	stored, err := f.prompts.Get(ctx, prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Metrics.UsageCount)
	assert.InDelta(t, 1.0, stored.Metrics.SuccessRate, 1e-9)
}

func TestSendPrompt_NoFallbackPropagatesOriginalError(t *testing.T) {
	// Arrange
	f := newFixture(t)
	f.addProvider(t, "openai", f.failing.URL, nil)

	// Act
	resp, err := f.router.SendPrompt(context.Background(), &llm.Request{OrganizationID: "org-a", PromptContent: "hi"})

	// Assert
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeUpstream))
	assert.Contains(t, err.Error(), "500")

	record, err := f.ledger.GetOrCreate(context.Background(), "org-a")
	require.NoError(t, err)
	assert.Empty(t, record.Alerts)
	assert.Equal(t, int64(0), record.Usage.CurrentMonth.Tokens)
}

func TestSendPrompt_FallbackUsesDefaultModelAndRecordsOneAlert(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	backup := f.addProvider(t, "backup", f.succeeded.URL, nil)
	primary := f.addProvider(t, "primary", f.failing.URL, func(p *models.Provider) {
		p.FallbackProvider = backup.ID
	})

	// Act
	resp, err := f.router.SendPrompt(ctx, &llm.Request{
		OrganizationID: "org-a",
		PromptContent:  "hi",
		ProviderID:     primary.ID,
		ModelID:        "primary-large",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Provider)
	assert.Equal(t, "backup-default", resp.Model)
	assert.Equal(t, []string{"primary"}, resp.FallbackFrom)

	record, err := f.ledger.GetOrCreate(ctx, "org-a")
	require.NoError(t, err)
	require.Len(t, record.Alerts, 1)
	assert.Equal(t, models.AlertTypeFallback, record.Alerts[0].Type)
	assert.Contains(t, record.Alerts[0].Message, "primary to backup")
}

func TestSendPrompt_FallbackCycleIsDetected(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	a := f.addProvider(t, "a", f.failing.URL, nil)
	b := f.addProvider(t, "b", f.failing.URL, func(p *models.Provider) { p.FallbackProvider = a.ID })
	_, err := f.registry.Update(ctx, a.ID, &providers.Update{FallbackProvider: &b.ID})
	require.NoError(t, err)

	// Act
	_, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptContent: "hi", ProviderID: a.ID})

	// Assert
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeFallbackCycle), "got %v", err)
	assert.Equal(t, int64(2), atomic.LoadInt64(f.calls))
}

func TestSendPrompt_InactiveFallbackReturnsOriginalError(t *testing.T) {
	f := newFixture(t)
	backup := f.addProvider(t, "backup", f.succeeded.URL, func(p *models.Provider) { p.IsActive = false })
	primary := f.addProvider(t, "primary", f.failing.URL, func(p *models.Provider) { p.FallbackProvider = backup.ID })

	_, err := f.router.SendPrompt(context.Background(), &llm.Request{OrganizationID: "org-a", PromptContent: "hi", ProviderID: primary.ID})

	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeUpstream))
}

func TestSendPrompt_RateLimitTriggersFallback(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	backup := f.addProvider(t, "backup", f.succeeded.URL, nil)
	primary := f.addProvider(t, "primary", f.succeeded.URL, func(p *models.Provider) {
		p.FallbackProvider = backup.ID
		p.RateLimits = models.RateLimits{RequestsPerMinute: 1}
	})
	req := &llm.Request{OrganizationID: "org-a", PromptContent: "hi", ProviderID: primary.ID}

	// Act
	first, err := f.router.SendPrompt(ctx, req)
	require.NoError(t, err)
	second, err := f.router.SendPrompt(ctx, req)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "primary", first.Provider)
	assert.Equal(t, "backup", second.Provider)
}

func TestSendPrompt_QuotaExceeded(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	f.addProvider(t, "openai", f.succeeded.URL, nil)
	_, err := f.ledger.UpdateSettings(ctx, "org-a", &usage.SettingsUpdate{
		UsageLimits: &models.UsageLimits{HasLimit: true, MonthlyTokenLimit: 1000, AlertThreshold: 0.8},
	})
	require.NoError(t, err)

	_, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptContent: "hi"})
	require.NoError(t, err)

	// Act
	_, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptContent: "hi"})

	// Assert
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeQuotaExceeded))
	assert.Equal(t, int64(1), atomic.LoadInt64(f.calls))
}

func TestSendPrompt_ProviderResolution(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	first := f.addProvider(t, "first", f.succeeded.URL, nil)
	preferred := f.addProvider(t, "preferred", f.succeeded.URL, nil)
	inactive := f.addProvider(t, "off", f.succeeded.URL, func(p *models.Provider) { p.IsActive = false })

	// Act / Assert: registry order without settings
	resp, err := f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptContent: "hi"})
	require.NoError(t, err)
	assert.Equal(t, first.Name, resp.Provider)

	// preferred provider and custom model once opted in
	enabled := true
	_, err = f.ledger.UpdateSettings(ctx, "org-a", &usage.SettingsUpdate{
		CustomProviderSettings: &enabled,
		PreferredProviderID:    &preferred.ID,
		CustomModels:           []models.CustomModel{{ProviderID: preferred.ID, ModelID: "preferred-large"}},
	})
	require.NoError(t, err)
	resp, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptContent: "hi"})
	require.NoError(t, err)
	assert.Equal(t, preferred.Name, resp.Provider)
	assert.Equal(t, "preferred-large", resp.Model)

	// explicit inactive provider is not silently rerouted
	_, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptContent: "hi", ProviderID: inactive.ID})
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeNoProviderAvailable))
}

// cancelOnComplete answers every completion but cancels the caller's context
// first, as a client disconnecting mid-request would.
type cancelOnComplete struct {
	cancel context.CancelFunc
}

func (a *cancelOnComplete) For(adapters.Kind) adapters.Adapter { return a }

func (a *cancelOnComplete) Kind() adapters.Kind { return adapters.KindOpenAI }

func (a *cancelOnComplete) Complete(ctx context.Context, req *adapters.Request) (*adapters.Completion, error) {
	a.cancel()
	return &adapters.Completion{
		Content: "pong",
		Usage:   adapters.Usage{PromptTokens: 600, CompletionTokens: 400, TotalTokens: 1000},
	}, nil
}

// strictLedger refuses writes on a done context like a network-backed store.
type strictLedger struct {
	llm.UsageLedger
}

func (l strictLedger) RecordUsage(ctx context.Context, organizationID string, tokens int64, costMicros int64) (*usage.RecordResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.UsageLedger.RecordUsage(ctx, organizationID, tokens, costMicros)
}

type strictPrompts struct {
	llm.PromptSource
}

func (p strictPrompts) UpdateMetrics(ctx context.Context, id string, success bool, tokens int, responseTimeMs int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.PromptSource.UpdateMetrics(ctx, id, success, tokens, responseTimeMs)
}

func TestSendPrompt_MeteringSurvivesCallerCancellation(t *testing.T) {
	// Arrange
	f := newFixture(t)
	f.addProvider(t, "openai", f.succeeded.URL, nil)
	prompt, err := f.prompts.Create(context.Background(), &models.Prompt{Name: "greet", Content: "hi", OrganizationID: "org-a", IsActive: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router, err := llm.NewRouter(&llm.Config{
		Providers: f.registry,
		Prompts:   strictPrompts{f.prompts},
		Ledger:    strictLedger{f.ledger},
		Adapters:  &cancelOnComplete{cancel: cancel},
	})
	require.NoError(t, err)

	// Act
	resp, err := router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptID: prompt.ID})

	// Assert
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.Error(t, ctx.Err())

	record, err := f.ledger.GetOrCreate(context.Background(), "org-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), record.Usage.CurrentMonth.Tokens)
	assert.Equal(t, int64(18_000), record.Usage.CurrentMonth.CostMicros)

	stored, err := f.prompts.Get(context.Background(), prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Metrics.UsageCount)
	assert.InDelta(t, 1000, stored.Metrics.AverageTokens, 1e-9)
}

func TestSendPrompt_FailedAttemptLeavesAveragesAlone(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	f.addProvider(t, "openai", f.succeeded.URL, nil)
	flaky := f.addProvider(t, "flaky", f.failing.URL, nil)
	prompt, err := f.prompts.Create(ctx, &models.Prompt{Name: "greet", Content: "hi", OrganizationID: "org-a", IsActive: true})
	require.NoError(t, err)

	// Act
	_, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptID: prompt.ID})
	require.NoError(t, err)
	_, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptID: prompt.ID, ProviderID: flaky.ID})
	require.Error(t, err)

	// Assert
	stored, err := f.prompts.Get(ctx, prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Metrics.UsageCount)
	assert.Equal(t, int64(1), stored.Metrics.SuccessCount)
	assert.InDelta(t, 0.5, stored.Metrics.SuccessRate, 1e-9)
	assert.InDelta(t, 1000, stored.Metrics.AverageTokens, 1e-9)
}

func TestSendPrompt_ConfigurationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptContent: "hi"})
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeNoProviderAvailable))

	f.addProvider(t, "openai", f.succeeded.URL, nil)

	_, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptContent: "hi", ModelID: "gpt-9"})
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodeModelNotFound))

	_, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a", PromptID: "missing"})
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrCodePromptNotFound))

	_, err = f.router.SendPrompt(ctx, &llm.Request{OrganizationID: "org-a"})
	assert.True(t, domainerrors.IsValidationError(err))

	assert.Equal(t, int64(0), atomic.LoadInt64(f.calls))
}

func TestTestProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok := f.addProvider(t, "ok", f.succeeded.URL, nil)
	broken := f.addProvider(t, "broken", f.failing.URL, nil)

	result, err := f.router.TestProvider(ctx, ok.ID, "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ok-default", result.Model)

	result, err = f.router.TestProvider(ctx, broken.ID, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	_, err = f.router.TestProvider(ctx, "ghost", "")
	assert.True(t, domainerrors.IsNotFound(err))

	record, err := f.ledger.GetOrCreate(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.Usage.CurrentMonth.Tokens)
}
