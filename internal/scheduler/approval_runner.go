package scheduler

import (
	"context"
	"time"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/approval"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"

	"github.com/google/uuid"
)

// TenantLister enumerates tenants that need template coverage.
type TenantLister interface {
	ActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ApprovalRunner reconciles template approval state for every tenant on a
// fixed interval. The redis lease keeps concurrent instances from racing
// duplicate submissions to the approval authority.
type ApprovalRunner struct {
	manager  *approval.Manager
	guard    *approval.RunGuard
	tenants  TenantLister
	log      *logger.Logger
	interval time.Duration
}

func NewApprovalRunner(cfg config.ApprovalConfig, manager *approval.Manager, guard *approval.RunGuard, tenants TenantLister, log *logger.Logger) *ApprovalRunner {
	interval := cfg.GetApprovalCheckInterval()
	if interval <= 0 {
		interval = 2 * time.Hour
	}

	return &ApprovalRunner{
		manager:  manager,
		guard:    guard,
		tenants:  tenants,
		log:      log,
		interval: interval,
	}
}

func (r *ApprovalRunner) Run(ctx context.Context) {
	if r == nil || r.manager == nil || r.tenants == nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.runOnce(ctx)
	}
}

func (r *ApprovalRunner) runOnce(ctx context.Context) {
	acquired, err := r.guard.TryAcquire(ctx)
	if err != nil {
		r.log.Warn("approval run lease check failed", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer r.guard.Release(ctx)

	tenantIDs, err := r.tenants.ActiveTenantIDs(ctx)
	if err != nil {
		r.log.Warn("tenant enumeration failed", "error", err)
		return
	}

	for _, tenantID := range tenantIDs {
		report, err := r.manager.CheckAndEnsureApproval(ctx, tenantID)
		if err != nil {
			r.log.Warn("approval reconciliation failed", "tenantId", tenantID, "error", err)
			continue
		}
		if report.Submitted > 0 || report.Updated > 0 {
			r.log.Info("approval reconciliation",
				"tenantId", tenantID,
				"submitted", report.Submitted,
				"updated", report.Updated,
			)
		}
	}
}
