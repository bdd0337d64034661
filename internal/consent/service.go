// Package consent gates outbound follow-up messaging. Every send path must
// pass CheckConsent first; opt-out detection revokes eligibility until the
// lead explicitly re-grants consent.
package consent

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/consent/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/events"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

// Decision is the outcome of a consent check.
type Decision struct {
	Allowed bool
	Reason  string
}

type Service struct {
	repo *repository.Repository
	bus  events.Bus
	log  *logger.Logger
}

func NewService(repo *repository.Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// CheckConsent reports whether the lead may receive follow-up messages.
// A lead is allowed when it is eligible and has at least one consent record.
// Unknown leads are not allowed.
func (s *Service) CheckConsent(ctx context.Context, leadID uuid.UUID) (Decision, error) {
	elig, err := s.repo.LeadEligibility(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return Decision{Allowed: false, Reason: "lead not found"}, nil
	}
	if err != nil {
		return Decision{}, err
	}
	if !elig.Eligible {
		reason := "lead ineligible"
		if elig.Reason != nil && *elig.Reason != "" {
			reason = *elig.Reason
		}
		return Decision{Allowed: false, Reason: reason}, nil
	}

	if _, err := s.repo.LatestConsent(ctx, leadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Decision{Allowed: false, Reason: "no consent record"}, nil
		}
		return Decision{}, err
	}
	return Decision{Allowed: true}, nil
}

// RecordConsent stores a consent grant and restores eligibility.
func (s *Service) RecordConsent(ctx context.Context, leadID uuid.UUID, consentType, channel string) error {
	if err := s.repo.RecordConsent(ctx, leadID, consentType, channel); err != nil {
		return err
	}
	s.log.Info("consent recorded",
		"lead_id", leadID.String(),
		"consent_type", consentType,
		"channel", channel,
	)
	return nil
}

// RevokeConsent marks the lead ineligible and publishes the opt-out event.
func (s *Service) RevokeConsent(ctx context.Context, leadID, tenantID uuid.UUID, reason string) error {
	if err := s.repo.RevokeConsent(ctx, leadID, reason); err != nil {
		return err
	}
	s.log.Info("consent revoked",
		"lead_id", leadID.String(),
		"reason", reason,
	)
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadOptedOut{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			TenantID:  tenantID,
			Reason:    reason,
		})
	}
	return nil
}
