// Package handler exposes the follow-up module over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/classifier"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/service"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/transport"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/httpkit"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts the follow-up endpoints. The ingest middleware
// throttles the two write paths; reads stay unthrottled.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, ingest gin.HandlerFunc) {
	rg.POST("/conversations/complete", ingest, h.ConversationComplete)
	rg.POST("/lead-response", ingest, h.LeadResponse)
	rg.GET("/stats", h.Stats)
}

// ConversationComplete handles POST /api/v1/followups/conversations/complete
func (h *Handler) ConversationComplete(c *gin.Context) {
	var req transport.ConversationCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	window := make([]classifier.Turn, 0, len(req.Transcript))
	for _, turn := range req.Transcript {
		window = append(window, classifier.Turn{Role: turn.Role, Content: turn.Content})
	}

	outcome, err := h.svc.InitializeFollowUp(c.Request.Context(), service.InitializeInput{
		LeadID:         req.LeadID,
		ConversationID: req.ConversationID,
		TenantID:       req.TenantID,
		Transcript:     window,
		Context:        req.Context,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ConversationCompleteResponse{
		Scheduled:  outcome.Scheduled,
		Reason:     outcome.Reason,
		State:      string(outcome.State),
		Confidence: outcome.Confidence,
	}
	if outcome.Scheduled {
		resp.SequenceID = outcome.SequenceID.String()
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

// LeadResponse handles POST /api/v1/followups/lead-response
func (h *Handler) LeadResponse(c *gin.Context) {
	var req transport.LeadResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	outcome, err := h.svc.HandleLeadResponse(c.Request.Context(), req.LeadID, req.TenantID, req.Message)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadResponseResponse{
		OptOut:    outcome.OptOut,
		Cancelled: outcome.Cancelled,
	})
}

// Stats handles GET /api/v1/followups/stats
func (h *Handler) Stats(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return
	}

	windowDays := 30
	if raw := c.Query("windowDays"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "windowDays must be a positive integer")
			return
		}
		windowDays = parsed
	}

	stats, err := h.svc.Stats(c.Request.Context(), *tenantID, windowDays)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.StatsResponse{
		WindowDays:   windowDays,
		Scheduled:    stats.Scheduled,
		Sent:         stats.Sent,
		Failed:       stats.Failed,
		Cancelled:    stats.Cancelled,
		Responded:    stats.Responded,
		ResponseRate: stats.ResponseRate,
	})
}
