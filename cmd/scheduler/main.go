package main

import (
	"context"
	"errors"
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
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/scheduler"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates"
	templatesrepo "github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/repository"
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
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	storageSvc, err := storage.New(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}

	var rdb goredis.UniversalClient
	if cfg.GetRedisURL() != "" {
		opt, err := goredis.ParseURL(cfg.GetRedisURL())
		if err != nil {
			log.Error("failed to parse redis url", "error", err)
			panic("failed to parse redis url: " + err.Error())
		}
		client := goredis.NewClient(opt)
		rdb = client
		defer func() { _ = client.Close() }()
	}

	// Worker-side module wiring (no HTTP handlers required).
	semantic, err := classifier.NewGeminiAnalyzer(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize semantic analyzer", "error", err)
		panic("failed to initialize semantic analyzer: " + err.Error())
	}

	classifierSvc := classifier.New(semantic, classifierrepo.New(pool), eventBus, log, cfg.GetClassifierTimeout())
	consentSvc := consent.NewService(consentrepo.New(pool), eventBus, log)

	gateway := whatsapp.NewClient(cfg, log)
	authority := whatsapp.NewApprovalClient(cfg, cfg.GetApprovalSubmitRate(), log)

	templatesModule := templates.NewModule(pool, cfg, val, eventBus, log, authority, storageSvc, rdb, nil)
	followupModule := followup.NewModule(
		pool, cfg, val, eventBus, log,
		gateway,
		classifierSvc,
		consentSvc,
		templatesModule.Selector,
		cfg.GetTemplateLanguage(),
	)

	// Delivery failures are raised in this process, so operator alerts
	// subscribe here.
	alerts := email.NewAlertSender(cfg, log)
	alerts.SubscribeToDeliveryFailures(eventBus)

	dispatcher, err := scheduler.NewFollowUpDispatcher(cfg, cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize follow-up dispatcher", "error", err)
		panic("failed to initialize follow-up dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	approvalRunner := scheduler.NewApprovalRunner(cfg, templatesModule.Manager, templatesModule.Guard, templatesrepo.New(pool), log)
	go approvalRunner.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, pool, followupModule.Service, templatesModule.Manager, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
