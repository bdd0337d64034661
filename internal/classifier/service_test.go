package classifier

import (
	"fmt"
	"testing"
)

func TestTailWindowKeepsClosingTurns(t *testing.T) {
	var window []Turn
	for i := 0; i < 25; i++ {
		window = append(window, Turn{Role: "lead", Content: fmt.Sprintf("message %d", i)})
	}

	got := tailWindow(window, semanticWindowTurns)

	if len(got) != semanticWindowTurns {
		t.Fatalf("expected %d turns, got %d", semanticWindowTurns, len(got))
	}
	if got[0].Content != "message 15" {
		t.Fatalf("expected tail to start at message 15, got %q", got[0].Content)
	}
	if got[len(got)-1].Content != "message 24" {
		t.Fatalf("expected last turn preserved, got %q", got[len(got)-1].Content)
	}
}

func TestTailWindowShortWindowUnchanged(t *testing.T) {
	window := []Turn{
		{Role: "agent", Content: "any updates?"},
		{Role: "lead", Content: "still thinking"},
	}

	got := tailWindow(window, semanticWindowTurns)

	if len(got) != 2 {
		t.Fatalf("expected window untouched, got %d turns", len(got))
	}
}
