// Package transport defines the follow-up module's HTTP request and
// response shapes.
package transport

import "github.com/google/uuid"

// TranscriptTurn is one message of the completed conversation window.
type TranscriptTurn struct {
	Role    string `json:"role" validate:"required,oneof=lead agent"`
	Content string `json:"content" validate:"required"`
}

// ConversationCompleteRequest signals that a conversation ended without a
// booking and a follow-up chain should be considered.
type ConversationCompleteRequest struct {
	LeadID         uuid.UUID         `json:"leadId" validate:"required"`
	ConversationID uuid.UUID         `json:"conversationId" validate:"required"`
	TenantID       uuid.UUID         `json:"tenantId" validate:"required"`
	Transcript     []TranscriptTurn  `json:"transcript" validate:"required,min=1,dive"`
	Context        map[string]string `json:"context"`
}

// ConversationCompleteResponse reports the classification and scheduling
// outcome.
type ConversationCompleteResponse struct {
	Scheduled  bool    `json:"scheduled"`
	Reason     string  `json:"reason,omitempty"`
	State      string  `json:"state"`
	Confidence float64 `json:"confidence"`
	SequenceID string  `json:"sequenceId,omitempty"`
}

// LeadResponseRequest reports an inbound message from the lead.
type LeadResponseRequest struct {
	LeadID   uuid.UUID `json:"leadId" validate:"required"`
	TenantID uuid.UUID `json:"tenantId" validate:"required"`
	Message  string    `json:"message" validate:"required"`
}

// LeadResponseResponse reports how the inbound message was handled.
type LeadResponseResponse struct {
	OptOut    bool `json:"optOut"`
	Cancelled bool `json:"cancelled"`
}

// StatsResponse is the follow-up aggregate for the reporting surface.
type StatsResponse struct {
	WindowDays   int     `json:"windowDays"`
	Scheduled    int     `json:"scheduled"`
	Sent         int     `json:"sent"`
	Failed       int     `json:"failed"`
	Cancelled    int     `json:"cancelled"`
	Responded    int     `json:"responded"`
	ResponseRate float64 `json:"responseRate"`
}
