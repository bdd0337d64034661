// Package handler exposes template approval and reporting endpoints.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/approval"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/transport"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/httpkit"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// ApprovalCheckEnqueuer schedules an on-demand approval check on the task
// queue instead of running it in the request path.
type ApprovalCheckEnqueuer interface {
	EnqueueApprovalCheck(ctx context.Context, tenantID uuid.UUID) error
}

type Handler struct {
	manager  *approval.Manager
	repo     *repository.Repository
	enqueuer ApprovalCheckEnqueuer
	val      *validator.Validator
}

func New(manager *approval.Manager, repo *repository.Repository, enqueuer ApprovalCheckEnqueuer, val *validator.Validator) *Handler {
	return &Handler{manager: manager, repo: repo, enqueuer: enqueuer, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/approval/statistics", h.ApprovalStatistics)
	rg.GET("/coverage", h.Coverage)
	rg.GET("/missing-scenarios", h.MissingScenarios)
	rg.POST("/approval/check", h.ApprovalCheck)
	rg.POST("/sync", h.Sync)
}

func tenantFromIdentity(c *gin.Context) (uuid.UUID, bool) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.UUID{}, false
	}
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return uuid.UUID{}, false
	}
	return *tenantID, true
}

// ApprovalStatistics handles GET /api/v1/templates/approval/statistics
func (h *Handler) ApprovalStatistics(c *gin.Context) {
	tenantID, ok := tenantFromIdentity(c)
	if !ok {
		return
	}

	counts, err := h.manager.Statistics(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.StatusCountResponse, 0, len(counts))
	for _, sc := range counts {
		out = append(out, transport.StatusCountResponse{
			Category: sc.Category,
			Status:   sc.Status,
			Count:    sc.Count,
		})
	}
	httpkit.OK(c, out)
}

// Coverage handles GET /api/v1/templates/coverage
func (h *Handler) Coverage(c *gin.Context) {
	tenantID, ok := tenantFromIdentity(c)
	if !ok {
		return
	}

	cov, err := h.manager.RequiredCoverage(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.CoverageResponse{Approved: cov.Approved, Required: cov.Required}
	for _, line := range cov.Templates {
		resp.Templates = append(resp.Templates, transport.TemplateCoverageResponse{
			Name:   line.Name,
			Status: line.Status,
			Reason: line.Reason,
		})
	}
	httpkit.OK(c, resp)
}

// MissingScenarios handles GET /api/v1/templates/missing-scenarios
func (h *Handler) MissingScenarios(c *gin.Context) {
	tenantID, ok := tenantFromIdentity(c)
	if !ok {
		return
	}

	scenarios, err := h.repo.MissingScenarios(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.MissingScenarioResponse, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, transport.MissingScenarioResponse{
			LeadState:       sc.LeadState,
			Category:        sc.Category,
			OccurrenceCount: sc.OccurrenceCount,
			LastOccurrence:  sc.LastOccurrence,
		})
	}
	httpkit.OK(c, out)
}

// ApprovalCheck handles POST /api/v1/templates/approval/check
func (h *Handler) ApprovalCheck(c *gin.Context) {
	tenantID, ok := tenantFromIdentity(c)
	if !ok {
		return
	}

	if h.enqueuer == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "task queue not configured", nil)
		return
	}
	if err := h.enqueuer.EnqueueApprovalCheck(c.Request.Context(), tenantID); err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to enqueue approval check", nil)
		return
	}
	httpkit.JSON(c, http.StatusAccepted, transport.ApprovalCheckResponse{Enqueued: true})
}

// Sync handles POST /api/v1/templates/sync
func (h *Handler) Sync(c *gin.Context) {
	var req transport.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	submitted, err := h.manager.SyncTemplatesAcrossTenants(c.Request.Context(), req.SourceTenantID, req.TargetTenantIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SyncResponse{Submitted: submitted})
}
