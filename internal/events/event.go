// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Classification Events
// =============================================================================

// LeadStateDetected is published after a completed conversation has been
// classified into a lead state.
type LeadStateDetected struct {
	BaseEvent
	LeadID         uuid.UUID `json:"leadId"`
	TenantID       uuid.UUID `json:"tenantId"`
	ConversationID uuid.UUID `json:"conversationId"`
	State          string    `json:"state"`
	PreviousState  string    `json:"previousState,omitempty"`
	Confidence     float64   `json:"confidence"`
	Method         string    `json:"method"`
}

func (e LeadStateDetected) EventName() string { return "classifier.lead_state.detected" }

// =============================================================================
// Follow-Up Events
// =============================================================================

// FollowUpScheduled is published when a new follow-up sequence entry is created
// or advanced to the next stage.
type FollowUpScheduled struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	TenantID   uuid.UUID `json:"tenantId"`
	Stage      int       `json:"stage"`
}

func (e FollowUpScheduled) EventName() string { return "followup.sequence.scheduled" }

// FollowUpCancelled is published when an active sequence entry is cancelled.
type FollowUpCancelled struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	TenantID   uuid.UUID `json:"tenantId"`
	Reason     string    `json:"reason"`
}

func (e FollowUpCancelled) EventName() string { return "followup.sequence.cancelled" }

// FollowUpDeliveryFailed is published when a scheduled send fails terminally.
// There is no automatic resend; operators reconcile these by hand.
type FollowUpDeliveryFailed struct {
	BaseEvent
	SequenceID uuid.UUID `json:"sequenceId"`
	LeadID     uuid.UUID `json:"leadId"`
	TenantID   uuid.UUID `json:"tenantId"`
	Stage      int       `json:"stage"`
	Error      string    `json:"error"`
}

func (e FollowUpDeliveryFailed) EventName() string { return "followup.delivery.failed" }

// LeadOptedOut is published when an inbound message is detected as an opt-out.
type LeadOptedOut struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Reason   string    `json:"reason"`
}

func (e LeadOptedOut) EventName() string { return "consent.lead.opted_out" }

// =============================================================================
// Template Events
// =============================================================================

// TemplateStatusChanged is published when polling the approval authority
// moves a template out of pending.
type TemplateStatusChanged struct {
	BaseEvent
	TemplateID uuid.UUID `json:"templateId"`
	TenantID   uuid.UUID `json:"tenantId"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
}

func (e TemplateStatusChanged) EventName() string { return "templates.approval.status_changed" }
