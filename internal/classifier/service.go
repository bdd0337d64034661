package classifier

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/classifier/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/events"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

// ClassifyInput carries the conversation window to classify.
type ClassifyInput struct {
	TenantID       uuid.UUID
	LeadID         uuid.UUID
	ConversationID uuid.UUID
	Window         []Turn
	LeadProfile    map[string]string
}

// Service runs semantic and pattern analysis concurrently, combines the
// outcomes, and persists the resulting state transition.
type Service struct {
	semantic SemanticAnalyzer
	pattern  *PatternAnalyzer
	repo     *repository.Repository
	bus      events.Bus
	log      *logger.Logger
	timeout  time.Duration
}

// New creates a classifier service. semantic may be nil, in which case every
// classification falls back to pattern analysis.
func New(semantic SemanticAnalyzer, repo *repository.Repository, bus events.Bus, log *logger.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		semantic: semantic,
		pattern:  NewPatternAnalyzer(),
		repo:     repo,
		bus:      bus,
		log:      log,
		timeout:  timeout,
	}
}

// Classification is a combined result plus the id of its persisted row,
// which sequence entries reference as state_id.
type Classification struct {
	Result
	StateID uuid.UUID
}

// semanticWindowTurns caps the context sent to the semantic analyzer. The
// closing turns decide the state; a long transcript only adds tokens.
const semanticWindowTurns = 10

func tailWindow(window []Turn, n int) []Turn {
	if len(window) <= n {
		return window
	}
	return window[len(window)-n:]
}

// Classify determines the lead's state from the conversation window and
// persists it. Classification never fails outright: when the semantic analyzer
// errors or is absent, the pattern result is used at reduced confidence.
func (s *Service) Classify(ctx context.Context, in ClassifyInput) (Classification, error) {
	var (
		semResult *Result
		semErr    error
		patResult Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.semantic == nil {
			semErr = ErrSemanticUnavailable
			return nil
		}
		sctx, cancel := context.WithTimeout(gctx, s.timeout)
		defer cancel()
		semResult, semErr = s.semantic.Analyze(sctx, tailWindow(in.Window, semanticWindowTurns), in.LeadProfile)
		return nil
	})
	g.Go(func() error {
		patResult = s.pattern.Analyze(in.Window)
		return nil
	})
	_ = g.Wait() // analyzer errors are folded into the combined result

	if semErr != nil {
		s.log.Warn("semantic classification unavailable, using pattern fallback",
			"lead_id", in.LeadID.String(),
			"error", semErr.Error(),
		)
	}

	combined := Combine(semResult, semErr, patResult)

	row, err := s.repo.Create(ctx, repository.CreateParams{
		TenantID:        in.TenantID,
		LeadID:          in.LeadID,
		ConversationID:  in.ConversationID,
		CurrentState:    string(combined.State),
		Confidence:      combined.Confidence,
		DetectionMethod: string(combined.Method),
		Reasoning:       combined.Reasoning,
		Objections:      combined.Objections,
		Interests:       combined.Interests,
	})
	if err != nil {
		return Classification{}, err
	}

	previous := ""
	if row.PreviousState != nil {
		previous = *row.PreviousState
	}
	s.log.Info("lead state classified",
		"lead_id", in.LeadID.String(),
		"state", string(combined.State),
		"previous_state", previous,
		"confidence", combined.Confidence,
		"method", string(combined.Method),
	)

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadStateDetected{
			BaseEvent:      events.NewBaseEvent(),
			LeadID:         in.LeadID,
			TenantID:       in.TenantID,
			ConversationID: in.ConversationID,
			State:          string(combined.State),
			PreviousState:  previous,
			Confidence:     combined.Confidence,
			Method:         string(combined.Method),
		})
	}
	return Classification{Result: combined, StateID: row.ID}, nil
}

// LatestState returns the most recent persisted state for a lead, or the
// default state when the lead has never been classified.
func (s *Service) LatestState(ctx context.Context, leadID uuid.UUID) (LeadState, error) {
	row, err := s.repo.LatestByLead(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return StateDefault, nil
	}
	if err != nil {
		return StateDefault, err
	}
	return ParseLeadState(row.CurrentState), nil
}
