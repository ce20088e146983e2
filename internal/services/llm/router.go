package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsbridge/control-service/internal/core/events"
	domainerrors "github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/services/llm/adapters"
	"github.com/opsbridge/control-service/internal/services/prompts"
	"github.com/opsbridge/control-service/internal/services/usage"
)

// DefaultTimeout bounds one SendPrompt call including every fallback hop.
const DefaultTimeout = 120 * time.Second

// MeteringTimeout bounds the usage and metrics writes after an upstream call.
// Those writes are detached from request cancellation.
const MeteringTimeout = 5 * time.Second

// testPrompt is sent by TestProvider.
const testPrompt = "Reply with the single word: ok"

// Config holds the configuration for the router.
type Config struct {
	Providers ProviderSource
	Prompts   PromptSource
	Ledger    UsageLedger
	Adapters  AdapterSource
	Guard     RateGuard        // optional
	Events    events.Publisher // optional

	Timeout            time.Duration
	DefaultTemperature float64
	DefaultMaxTokens   int
}

// Router resolves provider, model and prompt for a request and dispatches it.
type Router struct {
	providers ProviderSource
	prompts   PromptSource
	ledger    UsageLedger
	adapters  AdapterSource
	guard     RateGuard
	events    events.Publisher

	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// NewRouter creates a new router.
func NewRouter(cfg *Config) (*Router, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Providers == nil {
		return nil, fmt.Errorf("provider source is required")
	}
	if cfg.Prompts == nil {
		return nil, fmt.Errorf("prompt source is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("usage ledger is required")
	}
	if cfg.Adapters == nil {
		return nil, fmt.Errorf("adapter source is required")
	}

	r := &Router{
		providers:   cfg.Providers,
		prompts:     cfg.Prompts,
		ledger:      cfg.Ledger,
		adapters:    cfg.Adapters,
		guard:       cfg.Guard,
		events:      cfg.Events,
		timeout:     cfg.Timeout,
		temperature: cfg.DefaultTemperature,
		maxTokens:   cfg.DefaultMaxTokens,
	}
	if r.events == nil {
		r.events = events.Noop{}
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.temperature == 0 {
		r.temperature = DefaultTemperature
	}
	if r.maxTokens <= 0 {
		r.maxTokens = DefaultMaxTokens
	}
	return r, nil
}

// SendPrompt completes a request, falling back along configured provider
// links when an upstream call fails.
func (r *Router) SendPrompt(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.OrganizationID == "" {
		return nil, domainerrors.NewValidationError("organization id is required", "")
	}
	if req.PromptID == "" && req.PromptContent == "" {
		return nil, domainerrors.NewValidationError("promptId or promptContent is required", "")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.send(ctx, req, map[string]bool{}, nil)
}

// send runs one hop. visited holds every provider already attempted by this
// request; trail lists their names for the response.
func (r *Router) send(ctx context.Context, req *Request, visited map[string]bool, trail []string) (*Response, error) {
	record, err := r.ledger.CheckQuota(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	provider, err := r.resolveProvider(ctx, req, record)
	if err != nil {
		return nil, err
	}
	visited[provider.ID] = true

	model, err := resolveModel(req, record, provider)
	if err != nil {
		return nil, err
	}

	text, prompt, err := r.resolvePrompt(ctx, req)
	if err != nil {
		return nil, err
	}

	logger := log.With().
		Str("organization_id", req.OrganizationID).
		Str("provider", provider.Name).
		Str("model", model.ModelID).
		Logger()

	start := time.Now()
	completion, err := r.dispatch(ctx, req, provider, model, text)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn().Err(err).Msg("LLM request failed")
		return r.fallback(ctx, req, provider, prompt, err, visited, trail)
	}

	cost := usage.CostMicros(completion.Usage.PromptTokens, completion.Usage.CompletionTokens, model.CostPer1kTokens)
	tokens := completion.Usage.PromptTokens + completion.Usage.CompletionTokens

	meterCtx, cancelMeter := context.WithTimeout(context.WithoutCancel(ctx), MeteringTimeout)
	defer cancelMeter()
	if _, err := r.ledger.RecordUsage(meterCtx, req.OrganizationID, int64(tokens), cost); err != nil {
		logger.Error().Err(err).Msg("failed to record usage")
	}
	if r.guard != nil {
		r.guard.RecordTokens(meterCtx, provider, tokens)
	}
	if prompt != nil {
		r.recordMetrics(meterCtx, prompt.ID, true, tokens, elapsed)
	}

	logger.Info().
		Int("tokens", tokens).
		Int64("cost_micros", cost).
		Int64("response_time_ms", elapsed).
		Msg("LLM request completed")

	r.events.PublishEvent(events.TopicLLM, events.Params{"organizationId": req.OrganizationID}, map[string]interface{}{
		"event":        events.LLMRequestCompleted,
		"provider":     provider.Name,
		"model":        model.ModelID,
		"tokens":       tokens,
		"responseTime": elapsed,
	})

	return &Response{
		Success:        true,
		Content:        completion.Content,
		Usage:          completion.Usage,
		Provider:       provider.Name,
		ProviderID:     provider.ID,
		Model:          model.ModelID,
		ResponseTimeMs: elapsed,
		CostMicros:     cost,
		FallbackFrom:   trail,
	}, nil
}

func (r *Router) dispatch(ctx context.Context, req *Request, provider *models.Provider, model *models.Model, text string) (*adapters.Completion, error) {
	if r.guard != nil {
		if err := r.guard.Acquire(ctx, provider); err != nil {
			return nil, err
		}
	}

	temperature := r.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := r.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	completion, err := r.adapters.For(adapters.KindFor(provider)).Complete(ctx, &adapters.Request{
		Endpoint:      provider.Endpoint,
		APIKey:        provider.APIKey,
		Model:         model.ModelID,
		Prompt:        text,
		SystemMessage: req.SystemMessage,
		Temperature:   temperature,
		MaxTokens:     maxTokens,
	})
	if err != nil {
		if !domainerrors.IsDomainError(err) {
			err = domainerrors.NewUpstreamError(provider.Name, err)
		}
		return nil, err
	}
	return completion, nil
}

// fallback retries on the provider's fallback target or returns cause.
func (r *Router) fallback(ctx context.Context, req *Request, provider *models.Provider, prompt *models.Prompt, cause error, visited map[string]bool, trail []string) (*Response, error) {
	fail := func(err error) (*Response, error) {
		if prompt != nil {
			meterCtx, cancelMeter := context.WithTimeout(context.WithoutCancel(ctx), MeteringTimeout)
			defer cancelMeter()
			r.recordMetrics(meterCtx, prompt.ID, false, 0, 0)
		}
		return nil, err
	}

	if !domainerrors.IsFallbackEligible(cause) || !provider.HasFallback() {
		return fail(cause)
	}

	target, err := r.providers.Get(ctx, provider.FallbackProvider)
	if err != nil {
		log.Error().Err(err).Str("provider", provider.Name).Msg("failed to load fallback provider")
		return fail(cause)
	}
	if target == nil || !target.IsActive {
		log.Warn().Str("provider", provider.Name).Str("fallback_id", provider.FallbackProvider).
			Msg("fallback provider missing or inactive")
		return fail(cause)
	}
	if visited[target.ID] {
		return fail(domainerrors.NewFallbackCycleError(target.ID, cause))
	}
	if ctx.Err() != nil {
		return fail(cause)
	}

	if _, err := r.ledger.RecordFallback(ctx, req.OrganizationID, provider.Name, target.Name, cause.Error()); err != nil {
		log.Error().Err(err).Msg("failed to record fallback alert")
	}
	r.events.PublishEvent(events.TopicLLM, events.Params{"organizationId": req.OrganizationID}, map[string]interface{}{
		"event":  events.LLMProviderFallback,
		"from":   provider.Name,
		"to":     target.Name,
		"reason": cause.Error(),
	})
	log.Info().Str("from", provider.Name).Str("to", target.Name).Msg("falling back to provider")

	next := *req
	next.ProviderID = target.ID
	next.ModelID = ""
	return r.send(ctx, &next, visited, append(trail, provider.Name))
}

func (r *Router) resolveProvider(ctx context.Context, req *Request, record *models.UsageRecord) (*models.Provider, error) {
	if req.ProviderID != "" {
		p, err := r.providers.Get(ctx, req.ProviderID)
		if err != nil {
			return nil, err
		}
		if p == nil || !p.IsActive {
			return nil, domainerrors.NewNoProviderAvailableError(fmt.Sprintf("provider %s is not available", req.ProviderID))
		}
		return p, nil
	}

	settings := record.Settings
	if settings.CustomProviderSettings && settings.PreferredProviderID != "" {
		p, err := r.providers.Get(ctx, settings.PreferredProviderID)
		if err != nil {
			return nil, err
		}
		if p != nil && p.IsActive {
			return p, nil
		}
	}

	p, err := r.providers.FirstActive(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domainerrors.NewNoProviderAvailableError("no active LLM provider is configured")
	}
	return p, nil
}

func resolveModel(req *Request, record *models.UsageRecord, provider *models.Provider) (*models.Model, error) {
	modelID := req.ModelID
	if modelID == "" && record.Settings.CustomProviderSettings {
		if custom := record.CustomModelFor(provider.ID); custom != "" {
			modelID = custom
		}
	}
	if modelID == "" {
		modelID = provider.DefaultModel
	}

	model := provider.FindModel(modelID)
	if model == nil {
		return nil, domainerrors.NewModelNotFoundError(modelID, provider.Name)
	}
	return model, nil
}

func (r *Router) resolvePrompt(ctx context.Context, req *Request) (string, *models.Prompt, error) {
	if req.PromptID != "" {
		p, err := r.prompts.Resolve(ctx, req.OrganizationID, req.PromptID)
		if err != nil {
			return "", nil, err
		}
		return prompts.ProcessTemplate(p.Content, req.Variables), p, nil
	}
	if req.PromptContent != "" {
		return prompts.ProcessTemplate(req.PromptContent, req.Variables), nil, nil
	}
	return "", nil, domainerrors.NewValidationError("promptId or promptContent is required", "")
}

func (r *Router) recordMetrics(ctx context.Context, promptID string, success bool, tokens int, elapsed int64) {
	if err := r.prompts.UpdateMetrics(ctx, promptID, success, tokens, elapsed); err != nil {
		log.Warn().Err(err).Str("prompt_id", promptID).Msg("failed to update prompt metrics")
	}
}

// TestProvider runs a minimal completion against a provider without touching
// usage or rate limits.
func (r *Router) TestProvider(ctx context.Context, providerID, modelID string) (*TestResult, error) {
	provider, err := r.providers.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, domainerrors.NewNotFoundError("provider", providerID)
	}
	if modelID == "" {
		modelID = provider.DefaultModel
	}
	if provider.FindModel(modelID) == nil {
		return nil, domainerrors.NewModelNotFoundError(modelID, provider.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	completion, err := r.adapters.For(adapters.KindFor(provider)).Complete(ctx, &adapters.Request{
		Endpoint:    provider.Endpoint,
		APIKey:      provider.APIKey,
		Model:       modelID,
		Prompt:      testPrompt,
		Temperature: 0,
		MaxTokens:   1,
	})
	result := &TestResult{
		Provider:       provider.Name,
		Model:          modelID,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	result.Success = true
	result.Content = completion.Content
	result.Usage = completion.Usage
	return result, nil
}
