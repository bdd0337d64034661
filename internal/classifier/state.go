// Package classifier determines a lead's state after a completed
// conversation by combining a semantic analysis call with deterministic
// keyword scoring.
package classifier

// LeadState is the closed set of states a lead can be classified into.
// Every consumer (stage-to-category mapping, template registry, keyword
// lists) switches exhaustively over this set; adding a state is a
// compile-time-visible change.
type LeadState string

const (
	StateNeedFamilyDiscussion LeadState = "need_family_discussion"
	StateStillLooking         LeadState = "still_looking"
	StateBudgetConcerns       LeadState = "budget_concerns"
	StateTimingNotRight       LeadState = "timing_not_right"
	StateInterestedHesitant   LeadState = "interested_hesitant"
	StateReadyToBook          LeadState = "ready_to_book"
	StateDefault              LeadState = "default"
)

// AllStates returns every valid state in stable order. Pattern scoring
// relies on this order for deterministic tie-breaking.
func AllStates() []LeadState {
	return []LeadState{
		StateNeedFamilyDiscussion,
		StateStillLooking,
		StateBudgetConcerns,
		StateTimingNotRight,
		StateInterestedHesitant,
		StateReadyToBook,
		StateDefault,
	}
}

// ParseLeadState coerces arbitrary input onto the closed set. Anything the
// classification service returns outside the set becomes StateDefault.
func ParseLeadState(value string) LeadState {
	switch LeadState(value) {
	case StateNeedFamilyDiscussion, StateStillLooking, StateBudgetConcerns,
		StateTimingNotRight, StateInterestedHesitant, StateReadyToBook, StateDefault:
		return LeadState(value)
	default:
		return StateDefault
	}
}

// Valid reports whether s is a member of the closed set.
func (s LeadState) Valid() bool {
	return ParseLeadState(string(s)) == s
}

func (s LeadState) String() string { return string(s) }

// DetectionMethod records which analysis produced the adopted result.
type DetectionMethod string

const (
	MethodSemantic DetectionMethod = "semantic"
	MethodPattern  DetectionMethod = "pattern"
	MethodCombined DetectionMethod = "combined"
	MethodFallback DetectionMethod = "fallback"
)

// Result is the common output type shared by both analysis strategies and
// the combination policy.
type Result struct {
	State      LeadState
	Confidence float64
	Reasoning  string
	Objections []string
	Interests  []string
	Method     DetectionMethod
}

// Turn is one message in the recent-conversation window handed to the
// classifier.
type Turn struct {
	Role    string `json:"role"` // "lead" or "agent"
	Content string `json:"content"`
}

// clampConfidence forces a confidence value into [0, 1].
func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
