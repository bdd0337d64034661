package consent

import "testing"

func TestDetectOptOutExactMatch(t *testing.T) {
	cases := []string{"STOP", "stop", " Stop. ", "unsubscribe", "Opt out"}
	for _, msg := range cases {
		result := DetectOptOut(msg)
		if !result.IsOptOut {
			t.Fatalf("expected opt-out for %q", msg)
		}
		if result.Confidence != 1.0 {
			t.Fatalf("expected confidence 1.0 for %q, got %f", msg, result.Confidence)
		}
	}
}

func TestDetectOptOutContainment(t *testing.T) {
	result := DetectOptOut("Please remove me from this list, thanks")
	if !result.IsOptOut {
		t.Fatal("expected opt-out")
	}
	if result.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %f", result.Confidence)
	}
	if result.Matched != "remove me" {
		t.Fatalf("expected matched keyword %q, got %q", "remove me", result.Matched)
	}
}

func TestDetectOptOutNegative(t *testing.T) {
	for _, msg := range []string{
		"I'm interested in the 3-bedroom unit",
		"Can you send me the floor plan?",
		"",
	} {
		if result := DetectOptOut(msg); result.IsOptOut {
			t.Fatalf("unexpected opt-out for %q (matched %q)", msg, result.Matched)
		}
	}
}
