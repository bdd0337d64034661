package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/classifier"
	classifierrepo "github.com/ebenpjw/realestate-bot-backend-sub008/internal/classifier/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/consent"
	consentrepo "github.com/ebenpjw/realestate-bot-backend-sub008/internal/consent/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/email"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/events"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup"
	apphttp "github.com/ebenpjw/realestate-bot-backend-sub008/internal/http"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/http/router"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/scheduler"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates"
	templateshandler "github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/handler"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/whatsapp"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/db"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/storage"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Storage service for template header media samples (MinIO)
	storageSvc, err := storage.New(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}
	if storageSvc != nil {
		if err := withRetry(ctx, log, "ensure template media bucket", 5, 2*time.Second, func() error {
			return storageSvc.EnsureBucketExists(ctx)
		}); err != nil {
			log.Error("failed to ensure storage bucket exists", "error", err)
			panic("failed to ensure storage bucket exists: " + err.Error())
		}
		log.Info("storage service initialized", "bucket", cfg.GetMinioBucketTemplateMedia())
	}

	var rdb goredis.UniversalClient
	if client := initRedis(cfg, log); client != nil {
		rdb = client
		defer func() { _ = client.Close() }()
	}

	enqueuer, closeEnqueuer := initApprovalEnqueuer(cfg, log)
	if closeEnqueuer != nil {
		defer closeEnqueuer()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	semantic, err := classifier.NewGeminiAnalyzer(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize semantic analyzer", "error", err)
		panic("failed to initialize semantic analyzer: " + err.Error())
	}
	if semantic == nil {
		log.Warn("GEMINI_API_KEY not configured; classification runs pattern-only")
	}

	classifierSvc := classifier.New(semantic, classifierrepo.New(pool), eventBus, log, cfg.GetClassifierTimeout())
	consentSvc := consent.NewService(consentrepo.New(pool), eventBus, log)

	gateway := whatsapp.NewClient(cfg, log)
	if gateway == nil {
		log.Warn("WHATSAPP_API_URL not configured; follow-up delivery disabled")
	}
	authority := whatsapp.NewApprovalClient(cfg, cfg.GetApprovalSubmitRate(), log)

	templatesModule := templates.NewModule(pool, cfg, val, eventBus, log, authority, storageSvc, rdb, enqueuer)

	followupModule := followup.NewModule(
		pool, cfg, val, eventBus, log,
		gateway,
		classifierSvc,
		consentSvc,
		templatesModule.Selector,
		cfg.GetTemplateLanguage(),
	)

	// Operator alerts subscribe to delivery failure events (not HTTP-facing)
	alerts := email.NewAlertSender(cfg, log)
	alerts.SubscribeToDeliveryFailures(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			followupModule,
			templatesModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRedis(cfg config.SchedulerConfig, log *logger.Logger) *goredis.Client {
	if cfg.GetRedisURL() == "" {
		return nil
	}

	opt, err := goredis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		return nil
	}
	return goredis.NewClient(opt)
}

func initApprovalEnqueuer(cfg config.SchedulerConfig, log *logger.Logger) (templateshandler.ApprovalCheckEnqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; on-demand approval checks disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
