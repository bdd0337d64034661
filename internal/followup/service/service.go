// Package service schedules and delivers staged re-contact sequences for
// leads whose conversations ended without a booking.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/classifier"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/consent"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/events"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/followup/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/selector"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/apperr"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

// Cancellation reasons stored on the sequence row.
const (
	ReasonOptOut       = "opt_out"
	ReasonReEngaged    = "lead_re_engaged"
	ReasonSuperseded   = "superseded_by_new_conversation"
	ReasonConsentBlock = "consent_revoked"
)

// Store is the persistence surface the sequencer needs.
type Store interface {
	Create(ctx context.Context, tenantID, leadID, stateID uuid.UUID, scheduledTime time.Time) (repository.Entry, error)
	ActiveEntry(ctx context.Context, leadID uuid.UUID) (repository.Entry, error)
	CancelActive(ctx context.Context, leadID uuid.UUID, reason string) error
	ClaimDue(ctx context.Context, limit int) ([]repository.Entry, error)
	Get(ctx context.Context, id uuid.UUID) (repository.Entry, error)
	MarkSent(ctx context.Context, id uuid.UUID, templateID *uuid.UUID, templateName string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, deliveryError string) (bool, error)
	ScheduleNext(ctx context.Context, id uuid.UUID, nextStage int, scheduledTime time.Time, templateID *uuid.UUID, templateName string) (bool, error)
	ReclaimStale(ctx context.Context, age time.Duration) (int, error)
	GetLead(ctx context.Context, leadID uuid.UUID) (repository.Lead, error)
	LeadStateValue(ctx context.Context, stateID uuid.UUID) (string, error)
	TouchLeadInbound(ctx context.Context, leadID uuid.UUID) error
	AppendTracking(ctx context.Context, p repository.TrackingParams) error
	DeliveredTracking(ctx context.Context, sequenceID uuid.UUID, stage int) (repository.TrackingRecord, error)
	StatsWindow(ctx context.Context, tenantID uuid.UUID, windowDays int) (repository.Stats, error)
}

// StateClassifier classifies a completed conversation.
type StateClassifier interface {
	Classify(ctx context.Context, in classifier.ClassifyInput) (classifier.Classification, error)
}

// ConsentGate answers whether a lead may be messaged and revokes that right
// on opt-out.
type ConsentGate interface {
	CheckConsent(ctx context.Context, leadID uuid.UUID) (consent.Decision, error)
	RevokeConsent(ctx context.Context, leadID, tenantID uuid.UUID, reason string) error
}

// TemplateSource picks the template for a (state, stage) pair.
type TemplateSource interface {
	GetTemplateForState(ctx context.Context, tenantID uuid.UUID, state classifier.LeadState, stage int) (selector.Selection, error)
}

// InitializeInput describes a completed conversation handed to the sequencer.
type InitializeInput struct {
	LeadID         uuid.UUID
	ConversationID uuid.UUID
	TenantID       uuid.UUID
	Transcript     []classifier.Turn
	Context        map[string]string
}

// InitializeOutcome reports what happened to a conversation-complete signal.
type InitializeOutcome struct {
	Scheduled  bool
	Reason     string
	State      classifier.LeadState
	Confidence float64
	SequenceID uuid.UUID
}

// ResponseOutcome reports how an inbound lead message was handled.
type ResponseOutcome struct {
	OptOut    bool
	Cancelled bool
}

// Service is the follow-up sequencer. It owns the chain lifecycle: creation
// after classification, cancellation on lead activity, and stage-by-stage
// delivery of due entries.
type Service struct {
	store       Store
	classifier  StateClassifier
	consent     ConsentGate
	templates   TemplateSource
	dispatcher  *Dispatcher
	bus         events.Bus
	log         *logger.Logger
	stageDelays []time.Duration
	maxStages   int
	workers     int
}

func NewService(
	store Store,
	stateClassifier StateClassifier,
	consentGate ConsentGate,
	templates TemplateSource,
	dispatcher *Dispatcher,
	bus events.Bus,
	log *logger.Logger,
	stageDelays []time.Duration,
	maxStages, workers int,
) *Service {
	if maxStages < 1 {
		maxStages = 4
	}
	if workers < 1 {
		workers = 8
	}
	return &Service{
		store:       store,
		classifier:  stateClassifier,
		consent:     consentGate,
		templates:   templates,
		dispatcher:  dispatcher,
		bus:         bus,
		log:         log,
		stageDelays: stageDelays,
		maxStages:   maxStages,
		workers:     workers,
	}
}

// InitializeFollowUp classifies the finished conversation and schedules the
// chain's first stage. A consent block is a normal outcome, not an error.
// Any still-active chain from an earlier conversation is superseded first so
// a lead never has two live chains.
func (s *Service) InitializeFollowUp(ctx context.Context, in InitializeInput) (InitializeOutcome, error) {
	if _, err := s.store.GetLead(ctx, in.LeadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return InitializeOutcome{}, apperr.NotFound("lead not found")
		}
		return InitializeOutcome{}, err
	}

	classification, err := s.classifier.Classify(ctx, classifier.ClassifyInput{
		TenantID:       in.TenantID,
		LeadID:         in.LeadID,
		ConversationID: in.ConversationID,
		Window:         in.Transcript,
		LeadProfile:    in.Context,
	})
	if err != nil {
		return InitializeOutcome{}, err
	}

	decision, err := s.consent.CheckConsent(ctx, in.LeadID)
	if err != nil {
		return InitializeOutcome{}, err
	}
	if !decision.Allowed {
		s.log.Info("follow-up blocked by consent",
			"lead_id", in.LeadID.String(),
			"reason", decision.Reason,
		)
		return InitializeOutcome{
			Scheduled:  false,
			Reason:     decision.Reason,
			State:      classification.State,
			Confidence: classification.Confidence,
		}, nil
	}

	if _, err := s.cancelIfActive(ctx, in.LeadID, ReasonSuperseded); err != nil {
		return InitializeOutcome{}, err
	}

	entry, err := s.store.Create(ctx, in.TenantID, in.LeadID, classification.StateID, time.Now().Add(s.delayFor(1)))
	if err != nil {
		return InitializeOutcome{}, err
	}

	s.log.Info("follow-up sequence initialized",
		"lead_id", in.LeadID.String(),
		"sequence_id", entry.ID.String(),
		"state", string(classification.State),
		"scheduled_time", entry.ScheduledTime,
	)
	if s.bus != nil {
		s.bus.Publish(ctx, events.FollowUpScheduled{
			BaseEvent:  events.NewBaseEvent(),
			SequenceID: entry.ID,
			LeadID:     in.LeadID,
			TenantID:   in.TenantID,
			Stage:      1,
		})
	}
	return InitializeOutcome{
		Scheduled:  true,
		State:      classification.State,
		Confidence: classification.Confidence,
		SequenceID: entry.ID,
	}, nil
}

// HandleLeadResponse reacts to an inbound lead message: an opt-out revokes
// consent and cancels the chain permanently, anything else cancels it
// because the lead is talking again.
func (s *Service) HandleLeadResponse(ctx context.Context, leadID, tenantID uuid.UUID, message string) (ResponseOutcome, error) {
	if err := s.store.TouchLeadInbound(ctx, leadID); err != nil {
		s.log.Warn("failed to stamp inbound message",
			"lead_id", leadID.String(),
			"error", err.Error(),
		)
	}

	if result := consent.DetectOptOut(message); result.IsOptOut {
		cancelled, err := s.cancelIfActive(ctx, leadID, ReasonOptOut)
		if err != nil {
			return ResponseOutcome{}, err
		}
		if err := s.consent.RevokeConsent(ctx, leadID, tenantID, ReasonOptOut); err != nil {
			return ResponseOutcome{}, err
		}
		s.log.Info("lead opted out",
			"lead_id", leadID.String(),
			"matched", result.Matched,
			"confidence", result.Confidence,
		)
		return ResponseOutcome{OptOut: true, Cancelled: cancelled}, nil
	}

	cancelled, err := s.cancelIfActive(ctx, leadID, ReasonReEngaged)
	if err != nil {
		return ResponseOutcome{}, err
	}
	return ResponseOutcome{Cancelled: cancelled}, nil
}

func (s *Service) cancelIfActive(ctx context.Context, leadID uuid.UUID, reason string) (bool, error) {
	entry, err := s.store.ActiveEntry(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.store.CancelActive(ctx, leadID, reason); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the race against a worker finishing the entry.
			return false, nil
		}
		return false, err
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.FollowUpCancelled{
			BaseEvent:  events.NewBaseEvent(),
			SequenceID: entry.ID,
			LeadID:     leadID,
			TenantID:   entry.TenantID,
			Reason:     reason,
		})
	}
	return true, nil
}

// ProcessDue claims entries whose scheduled time has passed and processes
// them with bounded parallelism. One entry's failure never aborts the batch.
func (s *Service) ProcessDue(ctx context.Context, batchSize int) (int, error) {
	claimed, err := s.store.ClaimDue(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, entry := range claimed {
		g.Go(func() error {
			if err := s.ProcessClaimed(gctx, entry); err != nil {
				s.log.Warn("follow-up entry processing failed",
					"sequence_id", entry.ID.String(),
					"lead_id", entry.LeadID.String(),
					"error", err.Error(),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(claimed), nil
}

// ProcessClaimed runs the delivery pipeline for one claimed entry: consent
// re-check, template selection, cancellation re-check, dispatch, then the
// terminal or advancing update. Every update is conditional on the
// processing claim so a concurrent cancellation always wins.
func (s *Service) ProcessClaimed(ctx context.Context, entry repository.Entry) error {
	decision, err := s.consent.CheckConsent(ctx, entry.LeadID)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		if err := s.store.CancelActive(ctx, entry.LeadID, ReasonConsentBlock); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		s.log.Info("claimed entry cancelled, consent withdrawn",
			"sequence_id", entry.ID.String(),
			"lead_id", entry.LeadID.String(),
		)
		return nil
	}

	// A delivered tracking row for this stage means an earlier attempt got
	// the message out but died before recording the transition. Finish the
	// transition; never send the stage twice.
	record, err := s.store.DeliveredTracking(ctx, entry.ID, entry.SequenceStage)
	if err == nil {
		s.finishStage(ctx, entry, record.TemplateID, record.TemplateName)
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	lead, err := s.store.GetLead(ctx, entry.LeadID)
	if err != nil {
		return err
	}

	stateValue, err := s.store.LeadStateValue(ctx, entry.StateID)
	if err != nil {
		return err
	}
	state := classifier.ParseLeadState(stateValue)

	selection, err := s.templates.GetTemplateForState(ctx, entry.TenantID, state, entry.SequenceStage)
	if err != nil {
		return err
	}

	// Selection can take a while; make sure nobody cancelled in between
	// before money leaves the building.
	current, err := s.store.Get(ctx, entry.ID)
	if err != nil {
		return err
	}
	if current.Status != repository.StatusProcessing {
		return nil
	}

	result, channel := s.dispatcher.Dispatch(ctx, lead, selection)

	var templateID *uuid.UUID
	if selection.Template != nil {
		templateID = &selection.Template.ID
	}

	if !result.Success {
		if _, err := s.store.MarkFailed(ctx, entry.ID, result.Error); err != nil {
			return err
		}
		s.appendTracking(ctx, entry, stateValue, selection, templateID, "failed", nil, &result.Error)
		s.log.DeliveryFailure(entry.LeadID.String(), entry.ID.String(), entry.SequenceStage, errors.New(result.Error))
		if s.bus != nil {
			s.bus.Publish(ctx, events.FollowUpDeliveryFailed{
				BaseEvent:  events.NewBaseEvent(),
				SequenceID: entry.ID,
				LeadID:     entry.LeadID,
				TenantID:   entry.TenantID,
				Stage:      entry.SequenceStage,
				Error:      result.Error,
			})
		}
		return nil
	}

	var messageID *string
	if result.MessageID != "" {
		messageID = &result.MessageID
	}
	s.appendTracking(ctx, entry, stateValue, selection, templateID, "delivered", messageID, nil)

	s.log.Info("follow-up stage delivered",
		"sequence_id", entry.ID.String(),
		"lead_id", entry.LeadID.String(),
		"stage", entry.SequenceStage,
		"channel", channel,
		"template", selection.TemplateName,
	)
	s.finishStage(ctx, entry, templateID, selection.TemplateName)
	return nil
}

// finishStage records the status transition for a stage whose message is
// already out. Errors past this point must not bubble into a task retry: the
// entry stays claimed, the stale sweep returns it to pending, and the
// delivered tracking row stops the next attempt from sending again.
func (s *Service) finishStage(ctx context.Context, entry repository.Entry, templateID *uuid.UUID, templateName string) {
	if entry.SequenceStage >= s.maxStages {
		if _, err := s.store.MarkSent(ctx, entry.ID, templateID, templateName); err != nil {
			s.log.Warn("failed to complete delivered final stage",
				"sequence_id", entry.ID.String(),
				"error", err.Error(),
			)
			return
		}
		s.log.Info("follow-up sequence completed",
			"sequence_id", entry.ID.String(),
			"lead_id", entry.LeadID.String(),
			"stages", entry.SequenceStage,
		)
		return
	}

	nextStage := entry.SequenceStage + 1
	advanced, err := s.store.ScheduleNext(ctx, entry.ID, nextStage, time.Now().Add(s.delayFor(nextStage)), templateID, templateName)
	if err != nil {
		s.log.Warn("failed to advance delivered stage",
			"sequence_id", entry.ID.String(),
			"error", err.Error(),
		)
		return
	}
	if advanced && s.bus != nil {
		s.bus.Publish(ctx, events.FollowUpScheduled{
			BaseEvent:  events.NewBaseEvent(),
			SequenceID: entry.ID,
			LeadID:     entry.LeadID,
			TenantID:   entry.TenantID,
			Stage:      nextStage,
		})
	}
}

// ReclaimStale returns crashed processing claims to pending.
func (s *Service) ReclaimStale(ctx context.Context, age time.Duration) (int, error) {
	reclaimed, err := s.store.ReclaimStale(ctx, age)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		s.log.Warn("reclaimed stale follow-up claims", "count", reclaimed)
	}
	return reclaimed, nil
}

// Stats returns the tenant's follow-up aggregate over the trailing window.
func (s *Service) Stats(ctx context.Context, tenantID uuid.UUID, windowDays int) (repository.Stats, error) {
	return s.store.StatsWindow(ctx, tenantID, windowDays)
}

func (s *Service) appendTracking(ctx context.Context, entry repository.Entry, state string, sel selector.Selection, templateID *uuid.UUID, outcome string, messageID, sendErr *string) {
	err := s.store.AppendTracking(ctx, repository.TrackingParams{
		SequenceID:      entry.ID,
		LeadID:          entry.LeadID,
		TenantID:        entry.TenantID,
		LeadState:       state,
		Stage:           entry.SequenceStage,
		TemplateID:      templateID,
		TemplateName:    sel.TemplateName,
		VariationNumber: sel.VariationNumber,
		Outcome:         outcome,
		MessageID:       messageID,
		Error:           sendErr,
	})
	if err != nil {
		s.log.Warn("failed to append tracking row",
			"sequence_id", entry.ID.String(),
			"error", err.Error(),
		)
	}
}

// delayFor returns how long after the previous event a stage waits.
func (s *Service) delayFor(stage int) time.Duration {
	if stage >= 1 && stage <= len(s.stageDelays) {
		return s.stageDelays[stage-1]
	}
	return 48 * time.Hour
}
