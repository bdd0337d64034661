// Package repository persists consent records and lead eligibility.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lead has no consent record.
var ErrNotFound = errors.New("consent record not found")

// ConsentRecord is one consent grant for a lead.
type ConsentRecord struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	ConsentType string
	Channel     string
	CreatedAt   time.Time
}

// Eligibility is the lead's current messaging eligibility.
type Eligibility struct {
	Eligible bool
	Reason   *string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LeadEligibility reads the eligibility flag from the lead row.
func (r *Repository) LeadEligibility(ctx context.Context, leadID uuid.UUID) (Eligibility, error) {
	var e Eligibility
	err := r.pool.QueryRow(ctx,
		`SELECT eligible, ineligibility_reason FROM leads WHERE id = $1`,
		leadID,
	).Scan(&e.Eligible, &e.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return Eligibility{}, ErrNotFound
	}
	if err != nil {
		return Eligibility{}, err
	}
	return e, nil
}

// LatestConsent returns the most recent consent record for a lead.
func (r *Repository) LatestConsent(ctx context.Context, leadID uuid.UUID) (ConsentRecord, error) {
	var rec ConsentRecord
	err := r.pool.QueryRow(ctx,
		`SELECT id, lead_id, consent_type, channel, created_at
		 FROM consent_records
		 WHERE lead_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		leadID,
	).Scan(&rec.ID, &rec.LeadID, &rec.ConsentType, &rec.Channel, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConsentRecord{}, ErrNotFound
	}
	if err != nil {
		return ConsentRecord{}, err
	}
	return rec, nil
}

// RecordConsent inserts a consent record and restores lead eligibility.
// Both writes happen in one transaction so a lead is never eligible without
// a record backing it.
func (r *Repository) RecordConsent(ctx context.Context, leadID uuid.UUID, consentType, channel string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO consent_records (lead_id, consent_type, channel)
		 VALUES ($1, $2, $3)`,
		leadID, consentType, channel,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE leads SET eligible = TRUE, ineligibility_reason = NULL WHERE id = $1`,
		leadID,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RevokeConsent marks the lead ineligible with the given reason.
func (r *Repository) RevokeConsent(ctx context.Context, leadID uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET eligible = FALSE, ineligibility_reason = $2 WHERE id = $1`,
		leadID, reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
