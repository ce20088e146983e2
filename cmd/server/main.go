// Package main is the entry point for the OpsBridge control service.
// @title OpsBridge Control Service API
// @version 1.0
// @description Multi-tenant LLM routing, usage accounting and realtime operations monitoring.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/opsbridge/control-service

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token (HS256 JWT carrying sub, organizationId and role)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/opsbridge/control-service/docs"
	"github.com/opsbridge/control-service/internal/api/handlers"
	"github.com/opsbridge/control-service/internal/api/middleware"
	"github.com/opsbridge/control-service/internal/api/routes"
	"github.com/opsbridge/control-service/internal/config"
	"github.com/opsbridge/control-service/internal/core/cache"
	"github.com/opsbridge/control-service/internal/core/docdb"
	"github.com/opsbridge/control-service/internal/core/events"
	"github.com/opsbridge/control-service/internal/core/vault"
	rediscache "github.com/opsbridge/control-service/internal/infrastructure/cache/redis"
	"github.com/opsbridge/control-service/internal/infrastructure/docdb/memory"
	"github.com/opsbridge/control-service/internal/infrastructure/docdb/mongodb"
	dotenvvault "github.com/opsbridge/control-service/internal/infrastructure/vault/dotenv"
	"github.com/opsbridge/control-service/internal/pkg/auth"
	"github.com/opsbridge/control-service/internal/pkg/clock"
	"github.com/opsbridge/control-service/internal/pkg/encryption"
	"github.com/opsbridge/control-service/internal/services/automation"
	"github.com/opsbridge/control-service/internal/services/llm"
	"github.com/opsbridge/control-service/internal/services/llm/adapters"
	"github.com/opsbridge/control-service/internal/services/prompts"
	"github.com/opsbridge/control-service/internal/services/providers"
	"github.com/opsbridge/control-service/internal/services/ratelimit"
	"github.com/opsbridge/control-service/internal/services/realtime"
	"github.com/opsbridge/control-service/internal/services/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	vaultClient, err := createVaultClient(cfg.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vault client")
	}
	defer vaultClient.Close()

	cacheClient, err := createCacheClient(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache client")
	}
	// Kept as an untyped nil when caching is off so optional consumers see nil.
	var sharedCache cache.Client
	if cacheClient != nil {
		sharedCache = cacheClient
		defer cacheClient.Close()
	}

	docDBClient, err := createDocDBClient(ctx, cfg.DocDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize document db client")
	}
	defer docDBClient.Close(context.Background())

	if err := docDBClient.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	encryptor, err := createEncryptor(ctx, cfg.Vault, vaultClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	verifier, err := createVerifier(ctx, cfg.Auth, vaultClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential verifier")
	}

	clk := clock.SystemUTC{}

	providerRegistry, err := providers.NewRegistry(&providers.Config{
		Collection: docDBClient.Providers(),
		Encryptor:  encryptor,
		Vault:      vaultClient,
		Clock:      clk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider registry")
	}
	if cfg.LLM.ProvidersSeedPath != "" {
		created, err := providerRegistry.SeedFromFile(ctx, cfg.LLM.ProvidersSeedPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.LLM.ProvidersSeedPath).Msg("failed to seed providers")
		}
		log.Info().Int("created", created).Msg("provider catalog seeded")
	}

	ledger, err := usage.NewLedger(&usage.Config{Collection: docDBClient.Usage(), Clock: clk})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize usage ledger")
	}

	promptService, err := prompts.NewService(&prompts.Config{
		Collection:  docDBClient.Prompts(),
		CacheClient: sharedCache,
		CacheTTL:    cfg.Cache.TTL,
		Clock:       clk,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize prompt service")
	}

	limiter, err := createLimiter(cfg.RateLimit, cacheClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize rate limiter")
	}

	auditLog, err := realtime.NewAuditLog(cfg.Realtime.AuditLogDir, clk)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open realtime audit log")
	}
	defer auditLog.Close()

	broker, err := realtime.NewBroker(&realtime.Config{
		Verifier:       verifier,
		Policy:         realtime.TopicPolicy{},
		Audit:          auditLog,
		Clock:          clk,
		IdleTimeout:    cfg.Realtime.IdleTimeout,
		AllowedOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize realtime broker")
	}

	var mirror *automation.Mirror
	if sharedCache != nil {
		mirror, err = automation.NewMirror(&automation.MirrorConfig{
			CacheClient: sharedCache,
			Encryptor:   encryptor,
			TTL:         cfg.Realtime.SessionRetention,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize session mirror")
		}
	}

	sessions, err := automation.NewRegistry(&automation.Config{
		Publisher: broker,
		Mirror:    mirror,
		Clock:     clk,
		Retention: cfg.Realtime.SessionRetention,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session registry")
	}

	router, err := llm.NewRouter(&llm.Config{
		Providers:          providerRegistry,
		Prompts:            promptService,
		Ledger:             ledger,
		Adapters:           adapters.NewSet(&http.Client{Timeout: adapters.DefaultHTTPTimeout}),
		Guard:              ratelimit.NewGuard(limiter, clk),
		Events:             broker,
		Timeout:            cfg.LLM.RequestTimeout,
		DefaultTemperature: cfg.LLM.DefaultTemperature,
		DefaultMaxTokens:   cfg.LLM.DefaultMaxTokens,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize llm router")
	}

	system := realtime.NewSystemMonitor(broker, sessions, clk)
	broker.RegisterStateSource(events.TopicAutomation, sessions)
	broker.RegisterStateSource(events.TopicLLM, providerRegistry)
	broker.RegisterStateSource(events.TopicSystem, system)

	go broker.Run(ctx, cfg.Realtime.SweepInterval)
	go sessions.Run(ctx, cfg.Realtime.SweepInterval)

	gin.SetMode(cfg.Server.GinMode)
	engine := setupRouter(cfg, &routes.Config{
		HealthHandler:     handlers.NewHealthHandler(sharedCache, docDBClient),
		LLMHandler:        handlers.NewLLMHandler(router),
		ProvidersHandler:  handlers.NewProvidersHandler(providerRegistry, router),
		PromptsHandler:    handlers.NewPromptsHandler(promptService),
		UsageHandler:      handlers.NewUsageHandler(ledger),
		MonitoringHandler: handlers.NewMonitoringHandler(sessions, broker, system),
		AuthMiddleware:    middleware.NewAuthMiddleware(verifier),
		TenantMiddleware:  middleware.NewTenantMiddleware(),
		Realtime:          broker,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by http.Server.
	broker.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// setupLogger configures the global zerolog logger.
func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "opsbridge-control").Logger()
}

// createVaultClient creates a vault client based on the configuration.
func createVaultClient(cfg config.VaultConfig) (vault.Client, error) {
	switch vault.Type(cfg.Type) {
	case vault.TypeDotEnv:
		return dotenvvault.NewClient(cfg.EnvFiles...)
	default:
		return nil, fmt.Errorf("unsupported vault type: %s", cfg.Type)
	}
}

// createCacheClient returns nil when caching is disabled.
func createCacheClient(cfg config.CacheConfig) (*rediscache.Client, error) {
	switch cache.Type(cfg.Type) {
	case cache.TypeRedis:
		return rediscache.NewClient(rediscache.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Password:   cfg.Password,
			DB:         cfg.DB,
			DefaultTTL: cfg.TTL,
			KeyPrefix:  cfg.KeyPrefix,
		})
	case cache.TypeNone:
		log.Warn().Msg("cache disabled: prompt cache and session mirror are off")
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// createDocDBClient creates a document database client based on the configuration.
func createDocDBClient(ctx context.Context, cfg config.DocDBConfig) (docdb.Client, error) {
	switch docdb.Type(cfg.Type) {
	case docdb.TypeMongoDB, docdb.TypeCosmosDB:
		// CosmosDB is reached through its MongoDB API.
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
		})
	case docdb.TypeMemory:
		log.Warn().Msg("using in-memory document store; data is lost on restart")
		return memory.NewClient(), nil
	default:
		return nil, fmt.Errorf("unsupported docdb type: %s", cfg.Type)
	}
}

// createEncryptor builds the credential sealer. The key comes from the
// configuration or, failing that, the vault.
func createEncryptor(ctx context.Context, cfg config.VaultConfig, vaultClient vault.Client) (encryption.Encryptor, error) {
	key := cfg.EncryptionKey
	if key == "" {
		secret, err := vaultClient.GetSecret(ctx, vault.URI(vault.TypeDotEnv, "SECRETS_ENCRYPTION_KEY"), true)
		if err != nil && !errors.Is(err, vault.ErrSecretNotFound) {
			return nil, err
		}
		key = secret
	}

	enc, sealed, err := encryption.FromKey(key)
	if err != nil {
		return nil, err
	}
	if !sealed {
		log.Warn().Msg("SECRETS_ENCRYPTION_KEY not set, provider credentials are stored unencrypted")
	}
	return enc, nil
}

// createVerifier builds the token verifier shared by the HTTP API and the
// realtime broker.
func createVerifier(ctx context.Context, cfg config.AuthConfig, vaultClient vault.Client) (*auth.HMACVerifier, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		s, err := vaultClient.GetSecret(ctx, vault.URI(vault.TypeDotEnv, "JWT_SECRET"), true)
		if err != nil {
			return nil, fmt.Errorf("JWT_SECRET is required: %w", err)
		}
		secret = s
	}
	return auth.NewHMACVerifier(secret)
}

// createLimiter picks the rate limit backend. The redis backend shares the
// cache's connection pool.
func createLimiter(cfg config.RateLimitConfig, cacheClient *rediscache.Client) (ratelimit.Limiter, error) {
	switch cfg.Backend {
	case "redis":
		if cacheClient == nil {
			return nil, fmt.Errorf("redis rate limiting requires CACHE_TYPE=redis")
		}
		return ratelimit.NewRedisLimiter(cacheClient.Redis(), cfg.Prefix), nil
	case "", "memory":
		return ratelimit.NewMemoryLimiter(), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend: %s", cfg.Backend)
	}
}

// setupRouter creates and configures the Gin engine.
func setupRouter(cfg *config.Config, routesCfg *routes.Config) *gin.Engine {
	engine := gin.New()

	routes.SetupWithMiddleware(engine, routesCfg,
		middleware.NewLoggingMiddleware(),
		middleware.NewErrorMiddleware(),
		middleware.DefaultCORSConfig(cfg.Server.CORSOrigins),
	)

	engine.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return engine
}
