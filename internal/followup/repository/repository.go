// Package repository persists follow-up sequence entries and their tracking
// audit rows.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "followup repository not configured"

// ErrNotFound is returned when no sequence entry matches.
var ErrNotFound = errors.New("sequence entry not found")

// Entry statuses. "processing" is a durable claim, not a public state: a
// claimed entry either reaches a terminal update or is reclaimed as pending
// after a crash.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Entry is one follow-up sequence chain for a lead. The same row advances
// through stages; per-stage history lives in followup_tracking.
type Entry struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	LeadID               uuid.UUID
	StateID              uuid.UUID
	SequenceStage        int
	Status               string
	ScheduledTime        time.Time
	SelectedTemplateID   *uuid.UUID
	SelectedTemplateName *string
	DeliveryError        *string
	CancelledReason      *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Lead is the profile slice the sequencer needs for personalization and
// dispatch.
type Lead struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	Phone              string
	FullName           string
	Budget             *string
	LocationPreference *string
	PropertyType       *string
	Timeline           *string
	LastInboundAt      *time.Time
}

// TrackingParams is one audit row appended per dispatch attempt.
type TrackingParams struct {
	SequenceID      uuid.UUID
	LeadID          uuid.UUID
	TenantID        uuid.UUID
	LeadState       string
	Stage           int
	TemplateID      *uuid.UUID
	TemplateName    string
	VariationNumber int
	Outcome         string // delivered or failed
	MessageID       *string
	Error           *string
}

// TrackingRecord is the delivered-row slice read back when a claimed entry
// may already have gone out.
type TrackingRecord struct {
	TemplateID   *uuid.UUID
	TemplateName string
}

// Stats is the reporting aggregate over a time window.
type Stats struct {
	Scheduled    int
	Sent         int
	Failed       int
	Cancelled    int
	Responded    int
	ResponseRate float64
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, tenant_id, lead_id, state_id, sequence_stage, status,
	scheduled_time, selected_template_id, selected_template_name,
	delivery_error, cancelled_reason, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.TenantID, &e.LeadID, &e.StateID, &e.SequenceStage, &e.Status,
		&e.ScheduledTime, &e.SelectedTemplateID, &e.SelectedTemplateName,
		&e.DeliveryError, &e.CancelledReason, &e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

// Create inserts a new pending entry at stage 1. The partial unique index on
// lead_id guarantees at most one active entry per lead; callers cancel any
// active entry first.
func (r *Repository) Create(ctx context.Context, tenantID, leadID, stateID uuid.UUID, scheduledTime time.Time) (Entry, error) {
	if r == nil || r.pool == nil {
		return Entry{}, errors.New(errRepoNotConfigured)
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO followup_sequences
		   (tenant_id, lead_id, state_id, sequence_stage, status, scheduled_time)
		 VALUES ($1, $2, $3, 1, 'pending', $4)
		 RETURNING `+entryColumns,
		tenantID, leadID, stateID, scheduledTime,
	)
	return scanEntry(row)
}

// ActiveEntry returns the lead's pending or processing entry, if any.
func (r *Repository) ActiveEntry(ctx context.Context, leadID uuid.UUID) (Entry, error) {
	if r == nil || r.pool == nil {
		return Entry{}, errors.New(errRepoNotConfigured)
	}
	e, err := scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+`
		 FROM followup_sequences
		 WHERE lead_id = $1 AND status IN ('pending', 'processing')`,
		leadID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// CancelActive cancels the lead's active entry. Returns ErrNotFound when the
// lead has none, which callers treat as success.
func (r *Repository) CancelActive(ctx context.Context, leadID uuid.UUID, reason string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE followup_sequences
		 SET status = 'cancelled', cancelled_reason = $2, updated_at = NOW()
		 WHERE lead_id = $1 AND status IN ('pending', 'processing')`,
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

// ClaimDue atomically moves due pending entries to processing and returns
// them. SKIP LOCKED keeps concurrent pollers from claiming the same rows.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]Entry, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM followup_sequences
		WHERE status = 'pending' AND scheduled_time <= NOW()
		ORDER BY scheduled_time ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE followup_sequences s
	SET status = 'processing', updated_at = NOW()
	FROM cte
	WHERE s.id = cte.id
	RETURNING `+prefixedEntryColumns("s"), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return claimed, nil
}

// Get returns one entry by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	if r == nil || r.pool == nil {
		return Entry{}, errors.New(errRepoNotConfigured)
	}
	e, err := scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM followup_sequences WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// MarkSent completes the chain's final stage. Conditional on the processing
// claim: false means a concurrent cancellation won.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, templateID *uuid.UUID, templateName string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE followup_sequences
		 SET status = 'sent', selected_template_id = $2, selected_template_name = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id, templateID, templateName,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed records a terminal delivery failure. There is no retry.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, deliveryError string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE followup_sequences
		 SET status = 'failed', delivery_error = $2, updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id, deliveryError,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ScheduleNext advances the chain to the next stage after a successful
// non-final send, recording what went out at the stage just completed.
func (r *Repository) ScheduleNext(ctx context.Context, id uuid.UUID, nextStage int, scheduledTime time.Time, templateID *uuid.UUID, templateName string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE followup_sequences
		 SET status = 'pending', sequence_stage = $2, scheduled_time = $3,
		     selected_template_id = $4, selected_template_name = $5, updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id, nextStage, scheduledTime, templateID, templateName,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReclaimStale returns crashed claims to pending. Entries stuck in
// processing longer than age were claimed by a worker that never finished.
func (r *Repository) ReclaimStale(ctx context.Context, age time.Duration) (int, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE followup_sequences
		 SET status = 'pending', updated_at = NOW()
		 WHERE status = 'processing' AND updated_at < NOW() - make_interval(secs => $1)`,
		age.Seconds(),
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// GetLead loads the profile slice needed for dispatch.
func (r *Repository) GetLead(ctx context.Context, leadID uuid.UUID) (Lead, error) {
	if r == nil || r.pool == nil {
		return Lead{}, errors.New(errRepoNotConfigured)
	}
	var l Lead
	err := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, phone, full_name, budget, location_preference,
		        property_type, timeline, last_inbound_at
		 FROM leads WHERE id = $1`,
		leadID,
	).Scan(&l.ID, &l.TenantID, &l.Phone, &l.FullName, &l.Budget,
		&l.LocationPreference, &l.PropertyType, &l.Timeline, &l.LastInboundAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

// LeadStateValue resolves the state string a sequence entry was created for.
func (r *Repository) LeadStateValue(ctx context.Context, stateID uuid.UUID) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New(errRepoNotConfigured)
	}
	var state string
	err := r.pool.QueryRow(ctx,
		`SELECT current_state FROM lead_states WHERE id = $1`, stateID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return state, err
}

// TouchLeadInbound stamps the lead's last inbound message time, which drives
// the freeform window check.
func (r *Repository) TouchLeadInbound(ctx context.Context, leadID uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE leads SET last_inbound_at = NOW() WHERE id = $1`, leadID)
	return err
}

// AppendTracking adds one audit row. A delivered row is written before the
// sequence status transition so reprocessing can detect an already-sent stage.
func (r *Repository) AppendTracking(ctx context.Context, p TrackingParams) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO followup_tracking
		   (sequence_id, lead_id, tenant_id, lead_state, stage, template_id,
		    template_name, variation_number, outcome, message_id, error, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`,
		p.SequenceID, p.LeadID, p.TenantID, p.LeadState, p.Stage, p.TemplateID,
		p.TemplateName, p.VariationNumber, p.Outcome, p.MessageID, p.Error,
	)
	return err
}

// DeliveredTracking returns the delivered row for a sequence stage, or
// ErrNotFound when the stage has not gone out.
func (r *Repository) DeliveredTracking(ctx context.Context, sequenceID uuid.UUID, stage int) (TrackingRecord, error) {
	if r == nil || r.pool == nil {
		return TrackingRecord{}, errors.New(errRepoNotConfigured)
	}
	var rec TrackingRecord
	err := r.pool.QueryRow(ctx,
		`SELECT template_id, template_name
		 FROM followup_tracking
		 WHERE sequence_id = $1 AND stage = $2 AND outcome = 'delivered'
		 ORDER BY sent_at DESC
		 LIMIT 1`,
		sequenceID, stage,
	).Scan(&rec.TemplateID, &rec.TemplateName)
	if errors.Is(err, pgx.ErrNoRows) {
		return TrackingRecord{}, ErrNotFound
	}
	return rec, err
}

// StatsWindow aggregates sequence outcomes over the trailing window.
func (r *Repository) StatsWindow(ctx context.Context, tenantID uuid.UUID, windowDays int) (Stats, error) {
	if r == nil || r.pool == nil {
		return Stats{}, errors.New(errRepoNotConfigured)
	}
	if windowDays < 1 {
		windowDays = 30
	}

	var s Stats
	err := r.pool.QueryRow(ctx,
		`SELECT
		   COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
		   COUNT(*) FILTER (WHERE status = 'sent'),
		   COUNT(*) FILTER (WHERE status = 'failed'),
		   COUNT(*) FILTER (WHERE status = 'cancelled'),
		   COUNT(*) FILTER (WHERE status = 'cancelled' AND cancelled_reason = 'lead_re_engaged')
		 FROM followup_sequences
		 WHERE tenant_id = $1 AND updated_at >= NOW() - make_interval(days => $2)`,
		tenantID, windowDays,
	).Scan(&s.Scheduled, &s.Sent, &s.Failed, &s.Cancelled, &s.Responded)
	if err != nil {
		return Stats{}, err
	}

	delivered := s.Sent + s.Responded
	if delivered > 0 {
		s.ResponseRate = float64(s.Responded) / float64(delivered)
	}
	return s, nil
}

func prefixedEntryColumns(alias string) string {
	return alias + `.id, ` + alias + `.tenant_id, ` + alias + `.lead_id, ` +
		alias + `.state_id, ` + alias + `.sequence_stage, ` + alias + `.status, ` +
		alias + `.scheduled_time, ` + alias + `.selected_template_id, ` +
		alias + `.selected_template_name, ` + alias + `.delivery_error, ` +
		alias + `.cancelled_reason, ` + alias + `.created_at, ` + alias + `.updated_at`
}
