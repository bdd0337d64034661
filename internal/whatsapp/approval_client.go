package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/approval"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

// ApprovalClient talks to the template approval authority. Submissions are
// rate limited because the authority throttles aggressively.
type ApprovalClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

var _ approval.Authority = (*ApprovalClient)(nil)

type submitRequest struct {
	TenantID       string `json:"tenantId"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Language       string `json:"language"`
	Body           string `json:"body"`
	HeaderMediaURL string `json:"headerMediaUrl,omitempty"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type statusResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// NewApprovalClient returns nil when no authority URL is configured.
func NewApprovalClient(cfg config.WhatsAppConfig, submitRate float64, log *logger.Logger) *ApprovalClient {
	if cfg.GetTemplateAPIURL() == "" {
		return nil
	}
	if submitRate <= 0 {
		submitRate = 0.5
	}
	return &ApprovalClient{
		baseURL: strings.TrimRight(cfg.GetTemplateAPIURL(), "/"),
		apiKey:  cfg.GetTemplateAPIKey(),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(submitRate), 1),
		log:     log,
	}
}

// SubmitTemplate submits one template for review, waiting on the rate
// limiter first.
func (c *ApprovalClient) SubmitTemplate(ctx context.Context, tenantID uuid.UUID, sub approval.Submission) (approval.SubmissionResult, error) {
	if c == nil {
		return approval.SubmissionResult{}, fmt.Errorf("approval authority not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return approval.SubmissionResult{}, err
	}

	var resp submitResponse
	err := c.do(ctx, http.MethodPost, "/templates", submitRequest{
		TenantID:       tenantID.String(),
		Name:           sub.Name,
		Category:       sub.Category,
		Language:       sub.Language,
		Body:           sub.Body,
		HeaderMediaURL: sub.HeaderMediaURL,
	}, &resp)
	if err != nil {
		return approval.SubmissionResult{}, err
	}

	c.log.Info("template submitted for approval",
		"tenant_id", tenantID.String(),
		"template", sub.Name,
		"external_ref", resp.ID,
	)
	return approval.SubmissionResult{ExternalRef: resp.ID, Status: resp.Status}, nil
}

// PollStatus fetches the authority's current verdict for a submission.
func (c *ApprovalClient) PollStatus(ctx context.Context, tenantID uuid.UUID, externalRef string) (approval.Verdict, error) {
	if c == nil {
		return approval.Verdict{}, fmt.Errorf("approval authority not configured")
	}

	var resp statusResponse
	path := fmt.Sprintf("/templates/%s/status?tenantId=%s", externalRef, tenantID.String())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return approval.Verdict{}, err
	}
	return approval.Verdict{Status: resp.Status, Reason: resp.Reason}, nil
}

func (c *ApprovalClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal authority payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authority request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("authority returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode authority response: %w", err)
		}
	}
	return nil
}
