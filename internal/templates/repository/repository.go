// Package repository provides persistence for message templates, their
// approval lifecycle, and missing-template scenario tracking.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no matching template exists.
var ErrNotFound = errors.New("template not found")

// Template is one message template owned by a tenant.
type Template struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	Name              string
	Category          string
	LeadState         string
	Content           string
	VariationGroup    string
	VariationNumber   int
	UsageWeight       float64
	UsageCount        int
	ResponseRate      float64
	ConversionRate    float64
	ApprovalStatus    string
	ExternalRef       *string
	HeaderMediaObject *string
	RejectionReason   *string
	LastUsedAt        *time.Time
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateParams holds the inputs for inserting a template.
type CreateParams struct {
	TenantID          uuid.UUID
	Name              string
	Category          string
	LeadState         string
	Content           string
	VariationGroup    string
	VariationNumber   int
	UsageWeight       float64
	ApprovalStatus    string
	HeaderMediaObject *string
}

// StatusCount is one row of the approval statistics aggregate.
type StatusCount struct {
	Category string
	Status   string
	Count    int
}

// MissingScenario records how often a selection found no template.
type MissingScenario struct {
	TenantID        uuid.UUID
	LeadState       string
	Category        string
	OccurrenceCount int
	LastOccurrence  time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const templateColumns = `id, tenant_id, name, category, lead_state, content,
	variation_group, variation_number, usage_weight, usage_count,
	response_rate, conversion_rate, approval_status, external_ref,
	header_media_object, rejection_reason, last_used_at, active,
	created_at, updated_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Name, &t.Category, &t.LeadState, &t.Content,
		&t.VariationGroup, &t.VariationNumber, &t.UsageWeight, &t.UsageCount,
		&t.ResponseRate, &t.ConversionRate, &t.ApprovalStatus, &t.ExternalRef,
		&t.HeaderMediaObject, &t.RejectionReason, &t.LastUsedAt, &t.Active,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// Create inserts a template.
func (r *Repository) Create(ctx context.Context, p CreateParams) (Template, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO templates
		   (tenant_id, name, category, lead_state, content, variation_group,
		    variation_number, usage_weight, approval_status, header_media_object)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+templateColumns,
		p.TenantID, p.Name, p.Category, p.LeadState, p.Content, p.VariationGroup,
		p.VariationNumber, p.UsageWeight, p.ApprovalStatus, p.HeaderMediaObject,
	)
	return scanTemplate(row)
}

// Candidates returns active, approved templates matching (tenant, state,
// category), the pool the selection strategies draw from.
func (r *Repository) Candidates(ctx context.Context, tenantID uuid.UUID, leadState, category string) ([]Template, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+templateColumns+`
		 FROM templates
		 WHERE tenant_id = $1 AND lead_state = $2 AND category = $3
		   AND active AND approval_status = 'approved'
		 ORDER BY variation_number`,
		tenantID, leadState, category,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ByName returns the tenant's template with the given name.
func (r *Repository) ByName(ctx context.Context, tenantID uuid.UUID, name string) (Template, error) {
	t, err := scanTemplate(r.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE tenant_id = $1 AND name = $2`,
		tenantID, name,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	return t, err
}

// NamesByTenant returns all template names a tenant already has, used to
// compute the missing set idempotently.
func (r *Repository) NamesByTenant(ctx context.Context, tenantID uuid.UUID) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name FROM templates WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = struct{}{}
	}
	return names, rows.Err()
}

// PendingApproval returns templates awaiting a verdict from the authority.
func (r *Repository) PendingApproval(ctx context.Context, tenantID uuid.UUID) ([]Template, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+templateColumns+`
		 FROM templates
		 WHERE tenant_id = $1 AND approval_status = 'pending' AND external_ref IS NOT NULL`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ApprovedByTenant returns the tenant's approved templates, the source set
// for cross-tenant sync.
func (r *Repository) ApprovedByTenant(ctx context.Context, tenantID uuid.UUID) ([]Template, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+templateColumns+`
		 FROM templates
		 WHERE tenant_id = $1 AND approval_status = 'approved'
		 ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkSubmitted records a successful submission to the approval authority.
func (r *Repository) MarkSubmitted(ctx context.Context, id uuid.UUID, externalRef string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE templates
		 SET approval_status = 'pending', external_ref = $2, updated_at = NOW()
		 WHERE id = $1`,
		id, externalRef,
	)
	return err
}

// UpdateApprovalStatus applies a verdict from the authority.
func (r *Repository) UpdateApprovalStatus(ctx context.Context, id uuid.UUID, status string, rejectionReason *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE templates
		 SET approval_status = $2, rejection_reason = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, status, rejectionReason,
	)
	return err
}

// RecordUsage atomically bumps the usage counter after a selection.
func (r *Repository) RecordUsage(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE templates
		 SET usage_count = usage_count + 1, last_used_at = NOW(), updated_at = NOW()
		 WHERE id = $1`,
		id,
	)
	return err
}

// RecordMissingScenario increments (or creates) the missing-template counter
// for (tenant, state, category). The read and write run in one transaction
// so concurrent selections do not lose increments.
func (r *Repository) RecordMissingScenario(ctx context.Context, tenantID uuid.UUID, leadState, category string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var count int
	err = tx.QueryRow(ctx,
		`SELECT occurrence_count FROM missing_template_scenarios
		 WHERE tenant_id = $1 AND lead_state = $2 AND category = $3
		 FOR UPDATE`,
		tenantID, leadState, category,
	).Scan(&count)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO missing_template_scenarios
			   (tenant_id, lead_state, category, occurrence_count, last_occurrence)
			 VALUES ($1, $2, $3, 1, NOW())`,
			tenantID, leadState, category,
		)
	case err == nil:
		_, err = tx.Exec(ctx,
			`UPDATE missing_template_scenarios
			 SET occurrence_count = $4, last_occurrence = NOW()
			 WHERE tenant_id = $1 AND lead_state = $2 AND category = $3`,
			tenantID, leadState, category, count+1,
		)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MissingScenarios lists the recorded gaps for a tenant.
func (r *Repository) MissingScenarios(ctx context.Context, tenantID uuid.UUID) ([]MissingScenario, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tenant_id, lead_state, category, occurrence_count, last_occurrence
		 FROM missing_template_scenarios
		 WHERE tenant_id = $1
		 ORDER BY occurrence_count DESC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MissingScenario
	for rows.Next() {
		var m MissingScenario
		if err := rows.Scan(&m.TenantID, &m.LeadState, &m.Category, &m.OccurrenceCount, &m.LastOccurrence); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ApprovalStatistics aggregates template counts per category and status.
func (r *Repository) ApprovalStatistics(ctx context.Context, tenantID uuid.UUID) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT category, approval_status, COUNT(*)
		 FROM templates
		 WHERE tenant_id = $1
		 GROUP BY category, approval_status
		 ORDER BY category, approval_status`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Category, &sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ActiveTenantIDs lists tenants that have leads and therefore need template
// coverage. Used by the periodic approval reconciliation.
func (r *Repository) ActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM leads`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
