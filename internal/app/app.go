// Package app wires the campaign engine together: storage, queues, the
// verification client, the orchestrator, the consumers, and the HTTP API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/api"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/config"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/consumer"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/engine"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/feedback"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/metrics"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/queue"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/reliability"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/store"
	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/verifier"
)

// Queue names
const (
	QueueVerification = "verification"
	QueueDelivery     = "delivery"
	QueueFeedback     = "feedback"
)

const consumerBatchSize = 10

// App is the main application
type App struct {
	config        *config.Config
	db            *store.DB
	redis         *redis.Client
	verifierState *verifier.StateStore
	verifier      *verifier.Client
	engine        *engine.Engine
	verifyC       *consumer.VerificationConsumer
	ingestor      *feedback.Ingestor
	apiServer     *api.Server
	queues        map[string]*queue.Queue
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	m := metrics.New()
	metrics.SetGlobal(m)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	campaigns := store.NewCampaignRepository(db.DB)
	leads := store.NewLeadRepository(db.DB)
	stats := store.NewStatsRepository(db.DB)
	templates := store.NewTemplateRepository(db.DB)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	verifyQ := queue.New(redisClient, QueueVerification, cfg.Engine.MaxDelaySeconds)
	deliveryQ := queue.New(redisClient, QueueDelivery, cfg.Engine.MaxDelaySeconds)
	feedbackQ := queue.New(redisClient, QueueFeedback, cfg.Engine.MaxDelaySeconds)

	verifierState, err := verifier.OpenStateStore(cfg.Verifier.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open verifier state: %w", err)
	}
	verifierClient := verifier.New(verifier.Config{
		BaseURL:          cfg.Verifier.BaseURL,
		APIKey:           cfg.Verifier.APIKey,
		Timeout:          cfg.Verifier.Timeout,
		RateLimit:        cfg.Verifier.RateLimit,
		RateWindow:       cfg.Verifier.RateWindow,
		BreakerThreshold: cfg.Verifier.BreakerThreshold,
		BreakerCooldown:  cfg.Verifier.BreakerCooldown,
		MaxRetries:       cfg.Verifier.MaxRetries,
		BackoffMs:        cfg.Verifier.BackoffMs,
	}, verifierState, logger)

	gate := reliability.NewGate(deliveryQ, int64(cfg.Engine.MaxQueueDepth), logger)
	eng := engine.New(campaigns, leads, stats, verifyQ, deliveryQ, gate, engine.Config{
		SlotMinutes:     cfg.Engine.SlotMinutes,
		MaxBatchPerTick: cfg.Engine.MaxBatchPerTick,
	}, logger)

	guard := feedback.NewGuard(campaigns, stats,
		cfg.Reputation.MaxBounceRate, cfg.Reputation.MaxComplaintRate, logger)

	return &App{
		config:        cfg,
		db:            db,
		redis:         redisClient,
		verifierState: verifierState,
		verifier:      verifierClient,
		engine:        eng,
		verifyC:       consumer.NewVerification(verifyQ, leads, verifierClient, logger),
		ingestor:      feedback.NewIngestor(feedbackQ, leads, campaigns, stats, guard, logger),
		apiServer:     api.NewServer(eng, campaigns, leads, templates, verifierClient, &cfg.Server, m, logger),
		queues: map[string]*queue.Queue{
			QueueVerification: verifyQ,
			QueueDelivery:     deliveryQ,
			QueueFeedback:     feedbackQ,
		},
		logger: logger,
	}, nil
}

// Engine returns the orchestrator for one-shot invocations
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Logger returns the application logger
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Run starts all components and blocks until a shutdown signal
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting pivotr-mailer",
		"api_addr", a.config.Server.ListenAddr,
		"redis_addr", a.config.Redis.Addr,
		"tick_interval", a.config.Engine.TickInterval,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)

	// Start API server
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Start queue consumers
	go a.verifyC.Run(ctx, consumerBatchSize, 5*time.Second)
	go a.ingestor.Run(ctx, consumerBatchSize, 5*time.Second)

	// Periodic orchestrator tick
	go a.runTicker(ctx)

	// Requeue messages whose consumers died mid-flight
	go a.runReaper(ctx)

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

func (a *App) runTicker(ctx context.Context) {
	ticker := time.NewTicker(a.config.Engine.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := a.engine.Tick(ctx)
			if err != nil {
				a.logger.Error("tick failed", "error", err)
				continue
			}
			if report.SkippedBackpressure {
				continue
			}
			for _, res := range report.Results {
				if res.Outcome == engine.OutcomeDispatched {
					a.logger.Info("tick result",
						"campaign_id", res.CampaignID,
						"verifying", res.Verifying,
						"sent", res.Sent,
						"skipped", res.Skipped,
					)
				}
			}
		}
	}
}

func (a *App) runReaper(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, q := range a.queues {
				n, err := q.RequeueExpired(ctx, time.Now(), 100)
				if err != nil {
					a.logger.Warn("requeue expired failed", "queue", name, "error", err)
					continue
				}
				if n > 0 {
					a.logger.Info("requeued expired messages", "queue", name, "count", n)
				}
				if depth, err := q.ApproxDepth(ctx); err == nil {
					metrics.SetQueueDepth(name, depth)
				}
			}
		}
	}
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if err := a.verifierState.Close(); err != nil {
		a.logger.Error("verifier state close error", "error", err)
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", "error", err)
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
