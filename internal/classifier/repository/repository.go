// Package repository provides persistence for detected lead states.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no lead state row exists.
var ErrNotFound = errors.New("lead state not found")

// LeadState is one classification outcome for a (lead, conversation) pair.
// Rows are append-only; previous_state preserves the trend for auditing.
type LeadState struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	LeadID          uuid.UUID
	ConversationID  uuid.UUID
	CurrentState    string
	Confidence      float64
	DetectionMethod string
	Reasoning       string
	Objections      []string
	Interests       []string
	PreviousState   *string
	CreatedAt       time.Time
}

// CreateParams are the inputs for persisting a classification outcome.
type CreateParams struct {
	TenantID        uuid.UUID
	LeadID          uuid.UUID
	ConversationID  uuid.UUID
	CurrentState    string
	Confidence      float64
	DetectionMethod string
	Reasoning       string
	Objections      []string
	Interests       []string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new lead state row, capturing the lead's prior state (if
// any) as previous_state.
func (r *Repository) Create(ctx context.Context, p CreateParams) (LeadState, error) {
	if r == nil || r.pool == nil {
		return LeadState{}, errors.New("lead state repository not configured")
	}

	var previous *string
	err := r.pool.QueryRow(ctx,
		`SELECT current_state FROM lead_states
		 WHERE lead_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		p.LeadID,
	).Scan(&previous)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return LeadState{}, err
	}

	var row LeadState
	err = r.pool.QueryRow(ctx,
		`INSERT INTO lead_states
		   (tenant_id, lead_id, conversation_id, current_state, confidence,
		    detection_method, reasoning, objections, interests, previous_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, tenant_id, lead_id, conversation_id, current_state, confidence,
		           detection_method, reasoning, objections, interests, previous_state, created_at`,
		p.TenantID, p.LeadID, p.ConversationID, p.CurrentState, p.Confidence,
		p.DetectionMethod, p.Reasoning, p.Objections, p.Interests, previous,
	).Scan(
		&row.ID, &row.TenantID, &row.LeadID, &row.ConversationID, &row.CurrentState,
		&row.Confidence, &row.DetectionMethod, &row.Reasoning, &row.Objections,
		&row.Interests, &row.PreviousState, &row.CreatedAt,
	)
	if err != nil {
		return LeadState{}, err
	}
	return row, nil
}

// LatestByLead returns the most recent lead state row for a lead.
func (r *Repository) LatestByLead(ctx context.Context, leadID uuid.UUID) (LeadState, error) {
	if r == nil || r.pool == nil {
		return LeadState{}, errors.New("lead state repository not configured")
	}

	var row LeadState
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, lead_id, conversation_id, current_state, confidence,
		        detection_method, reasoning, objections, interests, previous_state, created_at
		 FROM lead_states
		 WHERE lead_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		leadID,
	).Scan(
		&row.ID, &row.TenantID, &row.LeadID, &row.ConversationID, &row.CurrentState,
		&row.Confidence, &row.DetectionMethod, &row.Reasoning, &row.Objections,
		&row.Interests, &row.PreviousState, &row.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeadState{}, ErrNotFound
	}
	if err != nil {
		return LeadState{}, err
	}
	return row, nil
}
