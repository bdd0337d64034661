package classifier

import "testing"

func TestPatternAnalyzerFamilyDiscussion(t *testing.T) {
	analyzer := NewPatternAnalyzer()

	window := []Turn{
		{Role: "agent", Content: "Would you like to secure this unit?"},
		{Role: "lead", Content: "It looks great, but I need to discuss with my wife first."},
	}

	result := analyzer.Analyze(window)

	if result.State != StateNeedFamilyDiscussion {
		t.Fatalf("expected %s, got %s", StateNeedFamilyDiscussion, result.State)
	}
	if result.Method != MethodPattern {
		t.Fatalf("expected method pattern, got %s", result.Method)
	}
	// One hit in the latest lead message scores 2, so confidence is 0.2.
	if result.Confidence != 0.2 {
		t.Fatalf("expected confidence 0.2, got %f", result.Confidence)
	}
}

func TestPatternAnalyzerLatestMessageOutweighsHistory(t *testing.T) {
	analyzer := NewPatternAnalyzer()

	window := []Turn{
		{Role: "lead", Content: "It feels too expensive for us honestly."},
		{Role: "agent", Content: "We have flexible payment schemes."},
		{Role: "lead", Content: "Ok. When can we meet? I want to book a viewing."},
	}

	result := analyzer.Analyze(window)

	// Two hits in the latest lead message (2+2) beat one historical budget hit.
	if result.State != StateReadyToBook {
		t.Fatalf("expected %s, got %s", StateReadyToBook, result.State)
	}
	if result.Confidence != 0.4 {
		t.Fatalf("expected confidence 0.4, got %f", result.Confidence)
	}
}

func TestPatternAnalyzerNoMatches(t *testing.T) {
	analyzer := NewPatternAnalyzer()

	window := []Turn{
		{Role: "lead", Content: "Hello"},
		{Role: "agent", Content: "Hi, how can I help?"},
	}

	result := analyzer.Analyze(window)

	if result.State != StateDefault {
		t.Fatalf("expected default state, got %s", result.State)
	}
	if result.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %f", result.Confidence)
	}
}

func TestPatternAnalyzerIgnoresAgentTurns(t *testing.T) {
	analyzer := NewPatternAnalyzer()

	// Keywords in agent messages must not influence the score.
	window := []Turn{
		{Role: "agent", Content: "If it feels too expensive we can look at smaller units."},
		{Role: "lead", Content: "No, the size is fine."},
	}

	result := analyzer.Analyze(window)

	if result.State != StateDefault {
		t.Fatalf("expected default state, got %s", result.State)
	}
}

func TestPatternConfidenceCap(t *testing.T) {
	if got := patternConfidence(15); got != 0.9 {
		t.Fatalf("expected cap at 0.9, got %f", got)
	}
	if got := patternConfidence(4); got != 0.4 {
		t.Fatalf("expected 0.4, got %f", got)
	}
}
