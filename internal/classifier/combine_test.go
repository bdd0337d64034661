package classifier

import (
	"errors"
	"testing"
)

func TestCombineSemanticDominates(t *testing.T) {
	semantic := &Result{
		State:      StateBudgetConcerns,
		Confidence: 0.9,
		Reasoning:  "lead raised affordability twice",
	}
	pattern := Result{State: StateReadyToBook, Confidence: 0.6, Method: MethodPattern}

	got := Combine(semantic, nil, pattern)

	if got.State != StateBudgetConcerns {
		t.Fatalf("expected semantic state to win, got %s", got.State)
	}
	if got.Method != MethodSemantic {
		t.Fatalf("expected method semantic, got %s", got.Method)
	}
	if got.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %f", got.Confidence)
	}
}

func TestCombinePatternBeatsLowConfidenceSemantic(t *testing.T) {
	semantic := &Result{
		State:      StateStillLooking,
		Confidence: 0.3,
		Reasoning:  "ambiguous conversation",
		Objections: []string{"location"},
	}
	pattern := Result{State: StateTimingNotRight, Confidence: 0.5, Method: MethodPattern}

	got := Combine(semantic, nil, pattern)

	if got.State != StateTimingNotRight {
		t.Fatalf("expected pattern state to win, got %s", got.State)
	}
	if got.Method != MethodPattern {
		t.Fatalf("expected method pattern, got %s", got.Method)
	}
	// The semantic extraction is kept even when the pattern state wins.
	if got.Reasoning != "ambiguous conversation" {
		t.Fatalf("expected semantic reasoning to be kept, got %q", got.Reasoning)
	}
	if len(got.Objections) != 1 || got.Objections[0] != "location" {
		t.Fatalf("expected semantic objections to be kept, got %v", got.Objections)
	}
}

func TestCombineSemanticWinsTies(t *testing.T) {
	semantic := &Result{State: StateInterestedHesitant, Confidence: 0.5}
	pattern := Result{State: StateReadyToBook, Confidence: 0.5, Method: MethodPattern}

	got := Combine(semantic, nil, pattern)

	if got.State != StateInterestedHesitant {
		t.Fatalf("expected semantic state on tie, got %s", got.State)
	}
	if got.Method != MethodCombined {
		t.Fatalf("expected method combined, got %s", got.Method)
	}
}

func TestCombineSemanticFailureCapsPattern(t *testing.T) {
	pattern := Result{State: StateBudgetConcerns, Confidence: 0.8, Method: MethodPattern}

	got := Combine(nil, errors.New("model timeout"), pattern)

	if got.State != StateBudgetConcerns {
		t.Fatalf("expected pattern state, got %s", got.State)
	}
	if got.Confidence != 0.3 {
		t.Fatalf("expected confidence capped at 0.3, got %f", got.Confidence)
	}
	if got.Method != MethodFallback {
		t.Fatalf("expected method fallback, got %s", got.Method)
	}
}

func TestCombineSemanticFailureNoMatches(t *testing.T) {
	pattern := Result{State: StateDefault, Confidence: 0, Method: MethodPattern}

	got := Combine(nil, errors.New("model timeout"), pattern)

	if got.State != StateDefault {
		t.Fatalf("expected default state, got %s", got.State)
	}
	if got.Confidence != 0.3 {
		t.Fatalf("expected confidence 0.3, got %f", got.Confidence)
	}
	if got.Method != MethodFallback {
		t.Fatalf("expected method fallback, got %s", got.Method)
	}
}

func TestParseLeadStateCoercesUnknown(t *testing.T) {
	if got := ParseLeadState("window_shopping"); got != StateDefault {
		t.Fatalf("expected default for unknown state, got %s", got)
	}
	if got := ParseLeadState("ready_to_book"); got != StateReadyToBook {
		t.Fatalf("expected ready_to_book, got %s", got)
	}
}
