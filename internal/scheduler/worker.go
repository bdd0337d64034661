package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/repository"
	followupsvc "github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/service"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/approval"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	repo    *repository.Repository
	svc     *followupsvc.Service
	manager *approval.Manager
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, svc *followupsvc.Service, manager *approval.Manager, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		repo:    repository.New(pool),
		svc:     svc,
		manager: manager,
		log:     log,
	}

	mux.HandleFunc(TaskFollowUpEntryProcess, w.handleFollowUpEntryProcess)
	mux.HandleFunc(TaskTemplateApprovalCheck, w.handleTemplateApprovalCheck)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleFollowUpEntryProcess(ctx context.Context, task *asynq.Task) error {
	if w.svc == nil {
		return nil
	}

	payload, err := ParseFollowUpEntryProcessPayload(task)
	if err != nil {
		return err
	}

	sequenceID, err := uuid.Parse(payload.SequenceID)
	if err != nil {
		return err
	}

	entry, err := w.repo.Get(ctx, sequenceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	// Anything other than a live claim means the entry already reached a
	// terminal state or was reclaimed and will be claimed again later.
	if entry.Status != repository.StatusProcessing {
		return nil
	}

	return w.svc.ProcessClaimed(ctx, entry)
}

func (w *Worker) handleTemplateApprovalCheck(ctx context.Context, task *asynq.Task) error {
	if w.manager == nil {
		return nil
	}

	payload, err := ParseTemplateApprovalCheckPayload(task)
	if err != nil {
		return err
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	report, err := w.manager.CheckAndEnsureApproval(ctx, tenantID)
	if err != nil {
		return err
	}

	w.log.Info("approval check completed",
		"tenantId", tenantID,
		"submitted", report.Submitted,
		"updated", report.Updated,
	)
	return nil
}
