// Package transport defines the template module's HTTP request and response
// shapes.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// StatusCountResponse is one approval statistics line.
type StatusCountResponse struct {
	Category string `json:"category"`
	Status   string `json:"status"`
	Count    int    `json:"count"`
}

// CoverageResponse reports required-set approval progress.
type CoverageResponse struct {
	Approved  int                        `json:"approved"`
	Required  int                        `json:"required"`
	Templates []TemplateCoverageResponse `json:"templates"`
}

// TemplateCoverageResponse is one required template's status.
type TemplateCoverageResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// SyncRequest submits a tenant's approved templates for approval in others.
type SyncRequest struct {
	SourceTenantID  uuid.UUID   `json:"sourceTenantId" validate:"required"`
	TargetTenantIDs []uuid.UUID `json:"targetTenantIds" validate:"required,min=1"`
}

// SyncResponse reports how many approval submissions the sync produced.
type SyncResponse struct {
	Submitted int `json:"submitted"`
}

// ApprovalCheckResponse acknowledges an on-demand approval check.
type ApprovalCheckResponse struct {
	Enqueued bool `json:"enqueued"`
}

// MissingScenarioResponse is one recorded template gap.
type MissingScenarioResponse struct {
	LeadState       string    `json:"leadState"`
	Category        string    `json:"category"`
	OccurrenceCount int       `json:"occurrenceCount"`
	LastOccurrence  time.Time `json:"lastOccurrence"`
}
