// Package whatsapp talks to the messaging gateway and the template approval
// authority.
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

	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/phone"
)

// SendResult is the gateway's answer to a send attempt. Error is populated
// instead of returning a Go error so callers can persist the outcome
// verbatim on the tracking row.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Client sends outbound messages through the gateway.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type templateSendRequest struct {
	Phone        string   `json:"phone"`
	TemplateName string   `json:"templateName"`
	Language     string   `json:"language"`
	Params       []string `json:"params"`
}

type freeformSendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

// NewClient returns nil when no gateway URL is configured; callers treat a
// nil client as permanent delivery failure.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:  cfg.GetWhatsAppKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// SendTemplateMessage sends an approved template with positional parameters.
// Required outside the 24h freeform window.
func (c *Client) SendTemplateMessage(ctx context.Context, phoneNumber, templateName, language string, params []string) SendResult {
	if c == nil {
		return SendResult{Error: "whatsapp gateway not configured"}
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")
	result := c.post(ctx, "/send/template", templateSendRequest{
		Phone:        normalized,
		TemplateName: templateName,
		Language:     language,
		Params:       params,
	})
	if result.Success {
		c.log.Info("whatsapp template sent",
			"phone", normalized,
			"template", templateName,
		)
	}
	return result
}

// SendFreeform sends plain text, allowed only inside the 24h window after
// the lead's last inbound message.
func (c *Client) SendFreeform(ctx context.Context, phoneNumber, message string) SendResult {
	if c == nil {
		return SendResult{Error: "whatsapp gateway not configured"}
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")
	result := c.post(ctx, "/send/message", freeformSendRequest{
		Phone:   normalized,
		Message: message,
	})
	if result.Success {
		c.log.Info("whatsapp freeform sent", "phone", normalized)
	}
	return result
}

func (c *Client) post(ctx context.Context, path string, payload any) SendResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return SendResult{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("gateway request failed: %v", err)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return SendResult{Error: fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))}
	}

	var parsed sendResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return SendResult{Error: fmt.Sprintf("decode gateway response: %v", err)}
	}
	if parsed.Error != "" {
		return SendResult{Error: parsed.Error}
	}
	return SendResult{Success: true, MessageID: parsed.MessageID}
}
