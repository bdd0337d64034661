package approval

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"

	"github.com/google/uuid"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/events"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/apperr"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

// Submission is a template submission to the external approval authority.
type Submission struct {
	Name           string
	Category       string
	Language       string
	Body           string
	HeaderMediaURL string
}

// SubmissionResult is the authority's acknowledgement of a submission.
type SubmissionResult struct {
	ExternalRef string
	Status      string
}

// Verdict is the authority's current answer for a submitted template.
type Verdict struct {
	Status string // approved, rejected, pending
	Reason string
}

// Authority is the external template approval service.
type Authority interface {
	SubmitTemplate(ctx context.Context, tenantID uuid.UUID, sub Submission) (SubmissionResult, error)
	PollStatus(ctx context.Context, tenantID uuid.UUID, externalRef string) (Verdict, error)
}

// Store is the subset of the template repository the manager needs.
type Store interface {
	NamesByTenant(ctx context.Context, tenantID uuid.UUID) (map[string]struct{}, error)
	Create(ctx context.Context, p repository.CreateParams) (repository.Template, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, externalRef string) error
	PendingApproval(ctx context.Context, tenantID uuid.UUID) ([]repository.Template, error)
	UpdateApprovalStatus(ctx context.Context, id uuid.UUID, status string, rejectionReason *string) error
	ApprovedByTenant(ctx context.Context, tenantID uuid.UUID) ([]repository.Template, error)
	ApprovalStatistics(ctx context.Context, tenantID uuid.UUID) ([]repository.StatusCount, error)
	ByName(ctx context.Context, tenantID uuid.UUID, name string) (repository.Template, error)
}

// MediaStore uploads header media samples and produces URLs the authority
// can fetch during review.
type MediaStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
	PresignedGetURL(ctx context.Context, key string) (string, error)
}

// Report summarizes one CheckAndEnsureApproval run.
type Report struct {
	Submitted int
	Updated   int
}

// Coverage reports how much of the required set a tenant has approved.
type Coverage struct {
	Approved  int
	Required  int
	Templates []TemplateCoverage
}

// TemplateCoverage is the per-required-template status line.
type TemplateCoverage struct {
	Name   string
	Status string // missing, draft, pending, approved, rejected
	Reason string
}

// placeholderJPEG is a minimal sample asset uploaded for media-header
// submissions when no real sample has been seeded.
var placeholderJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}

// Manager drives the required template set through the approval lifecycle.
// Rejected templates are terminal: they keep their reason and are never
// auto-resubmitted, a human has to revise them.
type Manager struct {
	store     Store
	authority Authority
	media     MediaStore
	bus       events.Bus
	log       *logger.Logger
	language  string
}

func NewManager(store Store, authority Authority, media MediaStore, bus events.Bus, log *logger.Logger, language string) *Manager {
	if language == "" {
		language = "en"
	}
	return &Manager{
		store:     store,
		authority: authority,
		media:     media,
		bus:       bus,
		log:       log,
		language:  language,
	}
}

// CheckAndEnsureApproval submits whatever the tenant is missing from the
// required set (highest priority first) and polls every pending submission.
// A single template's failure is logged and skipped so the rest of the batch
// still runs.
func (m *Manager) CheckAndEnsureApproval(ctx context.Context, tenantID uuid.UUID) (Report, error) {
	var report Report

	existing, err := m.store.NamesByTenant(ctx, tenantID)
	if err != nil {
		return report, err
	}

	required := RequiredSet()
	sort.SliceStable(required, func(i, j int) bool {
		return required[i].Priority < required[j].Priority
	})

	for _, rt := range required {
		if _, ok := existing[rt.Name]; ok {
			continue
		}
		if err := m.submitRequired(ctx, tenantID, rt); err != nil {
			m.log.Warn("template submission failed",
				"tenant_id", tenantID.String(),
				"template", rt.Name,
				"error", err.Error(),
			)
			continue
		}
		report.Submitted++
	}

	pending, err := m.store.PendingApproval(ctx, tenantID)
	if err != nil {
		return report, err
	}
	for _, tpl := range pending {
		if tpl.ExternalRef == nil {
			continue
		}
		verdict, err := m.authority.PollStatus(ctx, tenantID, *tpl.ExternalRef)
		if err != nil {
			m.log.Warn("template status poll failed",
				"tenant_id", tenantID.String(),
				"template", tpl.Name,
				"error", err.Error(),
			)
			continue
		}
		if verdict.Status == repository.StatusPending || verdict.Status == "" {
			continue
		}

		var reason *string
		if verdict.Status == repository.StatusRejected && verdict.Reason != "" {
			reason = &verdict.Reason
		}
		if err := m.store.UpdateApprovalStatus(ctx, tpl.ID, verdict.Status, reason); err != nil {
			m.log.Warn("template status update failed",
				"template", tpl.Name,
				"error", err.Error(),
			)
			continue
		}
		report.Updated++

		if m.bus != nil {
			m.bus.Publish(ctx, events.TemplateStatusChanged{
				BaseEvent:  events.NewBaseEvent(),
				TemplateID: tpl.ID,
				TenantID:   tenantID,
				Name:       tpl.Name,
				Status:     verdict.Status,
			})
		}
	}

	m.log.Info("approval check completed",
		"tenant_id", tenantID.String(),
		"submitted", report.Submitted,
		"updated", report.Updated,
	)
	return report, nil
}

func (m *Manager) submitRequired(ctx context.Context, tenantID uuid.UUID, rt RequiredTemplate) error {
	var mediaObject *string
	var mediaURL string
	if rt.HeaderMediaSample != "" && m.media != nil {
		key := tenantID.String() + "/" + rt.HeaderMediaSample
		if _, err := m.media.Upload(ctx, key, bytes.NewReader(placeholderJPEG), int64(len(placeholderJPEG)), "image/jpeg"); err != nil {
			return err
		}
		url, err := m.media.PresignedGetURL(ctx, key)
		if err != nil {
			return err
		}
		mediaObject = &key
		mediaURL = url
	}

	tpl, err := m.store.Create(ctx, repository.CreateParams{
		TenantID:          tenantID,
		Name:              rt.Name,
		Category:          rt.Category,
		LeadState:         string(rt.LeadState),
		Content:           rt.Content,
		VariationGroup:    rt.VariationGroup,
		VariationNumber:   rt.VariationNumber,
		UsageWeight:       1,
		ApprovalStatus:    repository.StatusDraft,
		HeaderMediaObject: mediaObject,
	})
	if err != nil {
		return err
	}

	result, err := m.authority.SubmitTemplate(ctx, tenantID, Submission{
		Name:           rt.Name,
		Category:       rt.Category,
		Language:       m.language,
		Body:           rt.Content,
		HeaderMediaURL: mediaURL,
	})
	if err != nil {
		return err
	}
	return m.store.MarkSubmitted(ctx, tpl.ID, result.ExternalRef)
}

// SyncTemplatesAcrossTenants submits the source tenant's approved templates
// to every target that lacks them by name. Approval is granted per tenant,
// so each copy goes through the authority as a fresh submission and waits
// for its own verdict; nothing is usable in the target until that verdict
// arrives. Running it twice submits nothing the second time.
func (m *Manager) SyncTemplatesAcrossTenants(ctx context.Context, sourceID uuid.UUID, targetIDs []uuid.UUID) (int, error) {
	source, err := m.store.ApprovedByTenant(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	if len(source) == 0 {
		return 0, apperr.BadRequest("source tenant has no approved templates")
	}

	submitted := 0
	for _, targetID := range targetIDs {
		if targetID == sourceID {
			continue
		}
		existing, err := m.store.NamesByTenant(ctx, targetID)
		if err != nil {
			return submitted, err
		}
		for _, tpl := range source {
			if _, ok := existing[tpl.Name]; ok {
				continue
			}
			if err := m.submitCopy(ctx, targetID, tpl); err != nil {
				m.log.Warn("template sync failed",
					"target_tenant", targetID.String(),
					"template", tpl.Name,
					"error", err.Error(),
				)
				continue
			}
			submitted++
		}
	}

	m.log.Info("template sync completed",
		"source_tenant", sourceID.String(),
		"targets", len(targetIDs),
		"submitted", submitted,
	)
	return submitted, nil
}

func (m *Manager) submitCopy(ctx context.Context, targetID uuid.UUID, tpl repository.Template) error {
	var mediaURL string
	if tpl.HeaderMediaObject != nil && m.media != nil {
		url, err := m.media.PresignedGetURL(ctx, *tpl.HeaderMediaObject)
		if err != nil {
			return err
		}
		mediaURL = url
	}

	created, err := m.store.Create(ctx, repository.CreateParams{
		TenantID:          targetID,
		Name:              tpl.Name,
		Category:          tpl.Category,
		LeadState:         tpl.LeadState,
		Content:           tpl.Content,
		VariationGroup:    tpl.VariationGroup,
		VariationNumber:   tpl.VariationNumber,
		UsageWeight:       tpl.UsageWeight,
		ApprovalStatus:    repository.StatusDraft,
		HeaderMediaObject: tpl.HeaderMediaObject,
	})
	if err != nil {
		return err
	}

	result, err := m.authority.SubmitTemplate(ctx, targetID, Submission{
		Name:           tpl.Name,
		Category:       tpl.Category,
		Language:       m.language,
		Body:           tpl.Content,
		HeaderMediaURL: mediaURL,
	})
	if err != nil {
		return err
	}
	return m.store.MarkSubmitted(ctx, created.ID, result.ExternalRef)
}

// Statistics returns per category and status template counts.
func (m *Manager) Statistics(ctx context.Context, tenantID uuid.UUID) ([]repository.StatusCount, error) {
	return m.store.ApprovalStatistics(ctx, tenantID)
}

// RequiredCoverage reports the tenant's progress against the required set.
func (m *Manager) RequiredCoverage(ctx context.Context, tenantID uuid.UUID) (Coverage, error) {
	required := RequiredSet()
	cov := Coverage{Required: len(required)}

	for _, rt := range required {
		line := TemplateCoverage{Name: rt.Name, Status: "missing"}
		tpl, err := m.store.ByName(ctx, tenantID, rt.Name)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// stays missing
		case err != nil:
			return Coverage{}, err
		default:
			line.Status = tpl.ApprovalStatus
			if tpl.RejectionReason != nil {
				line.Reason = *tpl.RejectionReason
			}
			if tpl.ApprovalStatus == repository.StatusApproved {
				cov.Approved++
			}
		}
		cov.Templates = append(cov.Templates, line)
	}
	return cov, nil
}
