// Package approval keeps every tenant's required template set submitted to
// and approved by the external template authority.
package approval

import (
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/classifier"
	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/repository"
)

// Priority orders submissions when multiple templates are missing.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

// RequiredTemplate is one entry of the fixed core set every tenant needs
// before the sequencer can run without fallbacks.
type RequiredTemplate struct {
	Name            string
	Category        string
	LeadState       classifier.LeadState
	Content         string
	VariationGroup  string
	VariationNumber int
	Priority        Priority
	// HeaderMediaSample names a bundled sample asset uploaded to object
	// storage and attached to the submission. Empty means text-only.
	HeaderMediaSample string
}

// RequiredSet returns the core template registry. Names are stable: the
// idempotency of CheckAndEnsureApproval and of cross-tenant sync keys on
// them.
func RequiredSet() []RequiredTemplate {
	return []RequiredTemplate{
		{
			Name:            "followup_family_checkin",
			Category:        repository.CategoryStateBased,
			LeadState:       classifier.StateNeedFamilyDiscussion,
			Content:         "Hi {{1}}, have you had a chance to discuss the project with your family? Happy to arrange a call for everyone if that helps.",
			VariationGroup:  "family_checkin",
			VariationNumber: 1,
			Priority:        PriorityHigh,
		},
		{
			Name:            "followup_budget_options",
			Category:        repository.CategoryStateBased,
			LeadState:       classifier.StateBudgetConcerns,
			Content:         "Hi {{1}}, we've put together some financing options that might fit your budget better. Want me to share them?",
			VariationGroup:  "budget_options",
			VariationNumber: 1,
			Priority:        PriorityHigh,
		},
		{
			Name:            "followup_generic_checkin",
			Category:        repository.CategoryGeneric,
			LeadState:       classifier.StateDefault,
			Content:         "Hi {{1}}, just checking in. Any questions about {{2}} we can help with?",
			VariationGroup:  "generic_checkin",
			VariationNumber: 1,
			Priority:        PriorityHigh,
		},
		{
			Name:            "followup_final_farewell",
			Category:        repository.CategoryFinal,
			LeadState:       classifier.StateDefault,
			Content:         "Hi {{1}}, this is our last check-in for now. If your plans change, we're just a message away.",
			VariationGroup:  "final_farewell",
			VariationNumber: 1,
			Priority:        PriorityHigh,
		},
		{
			Name:            "followup_still_looking",
			Category:        repository.CategoryStateBased,
			LeadState:       classifier.StateStillLooking,
			Content:         "Hi {{1}}, how's the search going? A few new units at {{2}} just opened up that match what you were looking for.",
			VariationGroup:  "still_looking",
			VariationNumber: 1,
			Priority:        PriorityMedium,
		},
		{
			Name:            "followup_timing_checkin",
			Category:        repository.CategoryStateBased,
			LeadState:       classifier.StateTimingNotRight,
			Content:         "Hi {{1}}, no rush at all. When the timing feels right, we'd love to pick up where we left off.",
			VariationGroup:  "timing_checkin",
			VariationNumber: 1,
			Priority:        PriorityMedium,
		},
		{
			Name:            "followup_hesitant_nudge",
			Category:        repository.CategoryStateBased,
			LeadState:       classifier.StateInterestedHesitant,
			Content:         "Hi {{1}}, totally understand wanting to think it over. Would a second viewing help you decide?",
			VariationGroup:  "hesitant_nudge",
			VariationNumber: 1,
			Priority:        PriorityMedium,
		},
		{
			Name:              "followup_generic_brochure",
			Category:          repository.CategoryGeneric,
			LeadState:         classifier.StateDefault,
			Content:           "Hi {{1}}, here's the latest brochure for {{2}} with updated pricing and floor plans.",
			VariationGroup:    "generic_checkin",
			VariationNumber:   2,
			Priority:          PriorityLow,
			HeaderMediaSample: "samples/brochure_header.jpg",
		},
	}
}

// RequiredNames returns the registry names in priority order.
func RequiredNames() []string {
	set := RequiredSet()
	names := make([]string, 0, len(set))
	for _, rt := range set {
		names = append(names, rt.Name)
	}
	return names
}
