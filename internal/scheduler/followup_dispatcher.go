package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FollowUpDispatcher polls for due sequence entries, claims them and hands
// each one to the worker as an individual task. Claimed entries that never
// reach a terminal state are reclaimed as pending after the stale age.
type FollowUpDispatcher struct {
	client       *asynq.Client
	queue        string
	repo         *repository.Repository
	log          *logger.Logger
	pollInterval time.Duration
	batchSize    int
	staleAge     time.Duration
}

func NewFollowUpDispatcher(cfg config.SchedulerConfig, fcfg config.FollowUpConfig, pool *pgxpool.Pool, log *logger.Logger) (*FollowUpDispatcher, error) {
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

	pollInterval := fcfg.GetPollInterval()
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}

	batchSize := fcfg.GetBatchSize()
	if batchSize < 1 {
		batchSize = 50
	}

	staleAge := fcfg.GetStaleClaimAge()
	if staleAge <= 0 {
		staleAge = 10 * time.Minute
	}

	return &FollowUpDispatcher{
		client:       asynq.NewClient(opt),
		queue:        queue,
		repo:         repository.New(pool),
		log:          log,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		staleAge:     staleAge,
	}, nil
}

func (d *FollowUpDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *FollowUpDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	reclaim := time.NewTicker(d.staleAge)
	defer reclaim.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaim.C:
			count, err := d.repo.ReclaimStale(ctx, d.staleAge)
			if err != nil {
				d.log.Warn("stale claim sweep failed", "error", err)
				continue
			}
			if count > 0 {
				d.log.Info("reclaimed stale follow-up claims", "count", count)
			}
			continue
		case <-ticker.C:
		}

		entries, err := d.repo.ClaimDue(ctx, d.batchSize)
		if err != nil {
			d.log.Warn("follow-up claim failed", "error", err)
			continue
		}
		if len(entries) == 0 {
			continue
		}

		for _, entry := range entries {
			task, err := NewFollowUpEntryProcessTask(FollowUpEntryProcessPayload{
				SequenceID: entry.ID.String(),
				TenantID:   entry.TenantID.String(),
			})
			if err != nil {
				d.log.Warn("follow-up task build failed", "sequenceId", entry.ID, "error", err)
				continue
			}

			// A claimed entry whose enqueue fails stays in processing and is
			// picked up again by the stale sweep.
			_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue))
			if err != nil {
				d.log.Warn("follow-up enqueue failed", "sequenceId", entry.ID, "error", err)
				continue
			}
		}
	}
}
