// Package main is the entry point for the session orchestrator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicvoice-ai/session-orchestrator/internal/booking"
	"github.com/clinicvoice-ai/session-orchestrator/internal/catalog"
	"github.com/clinicvoice-ai/session-orchestrator/internal/channelcfg"
	"github.com/clinicvoice-ai/session-orchestrator/internal/config"
	"github.com/clinicvoice-ai/session-orchestrator/internal/gateway"
	"github.com/clinicvoice-ai/session-orchestrator/internal/handler"
	"github.com/clinicvoice-ai/session-orchestrator/internal/llm"
	"github.com/clinicvoice-ai/session-orchestrator/internal/middleware"
	"github.com/clinicvoice-ai/session-orchestrator/internal/natsclient"
	"github.com/clinicvoice-ai/session-orchestrator/internal/notify"
	"github.com/clinicvoice-ai/session-orchestrator/internal/org"
	"github.com/clinicvoice-ai/session-orchestrator/internal/session"
	"github.com/clinicvoice-ai/session-orchestrator/internal/store"
	"github.com/clinicvoice-ai/session-orchestrator/internal/webhook"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/logger"
	"github.com/clinicvoice-ai/session-orchestrator/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting session orchestrator")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "session-orchestrator", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	// Message log on JetStream
	messageLog := store.NewJetStreamMessageLog(natsClient)
	if err := messageLog.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis not reachable at boot", zap.Error(err))
	}

	// LLM clients: anthropic-prefixed models route to Anthropic, the rest
	// to OpenAI.
	var anthropicClient, openaiClient llm.Client
	if cfg.AnthropicAPIKey != "" {
		if c, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey); err != nil {
			log.Warn("failed to create Anthropic client", zap.Error(err))
		} else {
			anthropicClient = c
		}
	}
	if cfg.OpenAIAPIKey != "" {
		if c, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey); err != nil {
			log.Warn("failed to create OpenAI client", zap.Error(err))
		} else {
			openaiClient = c
		}
	}
	pickClient := func(model string) llm.Client {
		return llm.ForModel(model, anthropicClient, openaiClient)
	}

	// Organization directory and resolver
	var directory org.Directory
	if cfg.OrgDirectoryFile != "" {
		dir, err := org.LoadDirectory(cfg.OrgDirectoryFile)
		if err != nil {
			log.Error("failed to load org directory", zap.Error(err))
			os.Exit(1)
		}
		directory = dir
	} else {
		log.Warn("no org directory configured, every session falls back to the default org")
		directory = org.NewMemoryDirectory()
	}
	resolver := org.NewResolver(directory, cfg.DefaultOrgID, log)

	// Channel config cache over Redis. Tenants without a row fall all the
	// way to the built-in config, so it carries the deployment's models.
	channelcfg.ConfigureBuiltin(cfg.FrontModel, cfg.SupervisorModel)
	configCache := channelcfg.NewCache(channelcfg.NewRedisStore(redisClient), cfg.ConfigCacheTTL)

	// Stores
	sessions := store.NewMemorySessionStore()
	functionCalls := store.NewMemoryFunctionCallStore()

	// Booking adapter and catalog
	schedCatalog := catalog.Scheduling()
	adapter := booking.NewAdapter(cfg.BookingBaseURL, cfg.BookingServiceToken, cfg.BookingTimeout, functionCalls, log)

	// Session runtime
	manager := session.NewManager(session.Deps{
		Resolver:    resolver,
		Configs:     configCache,
		Sessions:    sessions,
		Messages:    messageLog,
		Invoker:     adapter,
		Catalog:     schedCatalog,
		LLM:         pickClient,
		MaxTurns:    cfg.SupervisorMaxTurns,
		Granularity: cfg.SlotGranularity,
		Logger:      log,
	})

	// Post-call notification pipeline
	sender := notify.NewWebhookSender(func(orgID string) (string, bool) {
		if cfg.NotifyWebhookURL == "" {
			return "", false
		}
		return cfg.NotifyWebhookURL, true
	})
	dispatcher := notify.NewDispatcher(sessions, notify.NewRedisMarker(redisClient), sender,
		cfg.NotifyRereadAttempts, cfg.NotifyRereadDelay, log)

	// Webhook reconciler
	reconciler := webhook.NewReconciler(sessions, resolver,
		webhook.NewFileRecordingStore(cfg.RecordingDir), dispatcher, log)

	// Handlers
	healthHandler := handler.NewHealthHandler(natsClient, redisClient)
	sessionHandler := handler.NewSessionHandler(sessions, messageLog, functionCalls, log)
	webhookHandler := handler.NewWebhookHandler(reconciler, log)
	functionHandler := handler.NewFunctionHandler(schedCatalog, adapter, log)

	// Gateways
	telephonyGW := gateway.NewTelephony(manager, log)
	browserGW := gateway.NewBrowser(manager, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Realtime gateways: providers authenticate at the network layer.
	gateway.Routes(r, telephonyGW, browserGW)

	// Provider lifecycle webhooks
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/lifecycle", webhookHandler.Lifecycle)
	})

	// Browser-facing API: tenant identity from signed JWT claims.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Get("/messages", sessionHandler.Messages)
				r.Get("/function-calls", sessionHandler.FunctionCalls)
			})
		})

		r.Get("/functions", functionHandler.Catalog)
		r.Post("/functions/invoke", functionHandler.Invoke)
	})

	// Internal API: tenant identity from the org header behind the service
	// token. The two conventions never share a route tree.
	r.Route("/internal/v1", func(r chi.Router) {
		r.Use(middleware.ServiceAuth(cfg.BookingServiceToken))

		r.Post("/functions/invoke", functionHandler.Invoke)
		r.Get("/sessions", sessionHandler.List)
		r.Get("/sessions/{id}", sessionHandler.Get)
		r.Get("/sessions/{id}/messages", sessionHandler.Messages)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager.Shutdown(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
