package selector

import (
	"context"

	"github.com/google/uuid"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/classifier"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/repository"
	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/logger"
)

// systemDefaults are the last-resort message bodies per category, used when
// neither a state-specific nor a default-state template exists.
var systemDefaults = map[string]string{
	repository.CategoryStateBased: "Hi {{first_name}}, just checking in on your property search. Has anything changed since we last spoke?",
	repository.CategoryGeneric:    "Hi {{first_name}}, a quick follow-up from our side. Happy to answer any questions about the project whenever you're ready.",
	repository.CategoryFinal:      "Hi {{first_name}}, this will be our last check-in for now. If your plans change, just drop us a message anytime.",
}

// Selection is the outcome of a template lookup. Template is nil when the
// hardcoded system default was used.
type Selection struct {
	Template        *repository.Template
	TemplateName    string
	Content         string
	VariationNumber int
	Fallback        bool
}

// Selector resolves the template for a (state, stage) pair. Selection never
// fails: missing pools degrade through default-state templates down to a
// hardcoded message.
type Selector struct {
	repo     *repository.Repository
	strategy Strategy
	log      *logger.Logger
}

func New(repo *repository.Repository, strategy Strategy, log *logger.Logger) *Selector {
	if strategy == nil {
		strategy = NewWeightedRandom(nil)
	}
	return &Selector{repo: repo, strategy: strategy, log: log}
}

// GetTemplateForState picks a template for the lead's state and sequence
// stage. A miss on the state-specific pool records a missing-template
// scenario before falling back.
func (s *Selector) GetTemplateForState(ctx context.Context, tenantID uuid.UUID, state classifier.LeadState, stage int) (Selection, error) {
	category := repository.CategoryForStage(stage)

	candidates, err := s.repo.Candidates(ctx, tenantID, string(state), category)
	if err != nil {
		return Selection{}, err
	}
	if len(candidates) > 0 {
		return s.adopt(ctx, candidates, false)
	}

	if err := s.repo.RecordMissingScenario(ctx, tenantID, string(state), category); err != nil {
		s.log.Warn("failed to record missing template scenario",
			"tenant_id", tenantID.String(),
			"state", string(state),
			"category", category,
			"error", err.Error(),
		)
	}

	if state != classifier.StateDefault {
		candidates, err = s.repo.Candidates(ctx, tenantID, string(classifier.StateDefault), category)
		if err != nil {
			return Selection{}, err
		}
		if len(candidates) > 0 {
			return s.adopt(ctx, candidates, true)
		}
	}

	s.log.Warn("no template available, using system default",
		"tenant_id", tenantID.String(),
		"state", string(state),
		"category", category,
	)
	return Selection{
		TemplateName: "system_default_" + category,
		Content:      systemDefaults[category],
		Fallback:     true,
	}, nil
}

func (s *Selector) adopt(ctx context.Context, candidates []repository.Template, fallback bool) (Selection, error) {
	picked := s.strategy.Pick(candidates)
	if err := s.repo.RecordUsage(ctx, picked.ID); err != nil {
		s.log.Warn("failed to record template usage",
			"template_id", picked.ID.String(),
			"error", err.Error(),
		)
	}
	return Selection{
		Template:        &picked,
		TemplateName:    picked.Name,
		Content:         picked.Content,
		VariationNumber: picked.VariationNumber,
		Fallback:        fallback,
	}, nil
}
