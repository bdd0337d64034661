package classifier

import "strings"

// stateKeywords maps each non-default state to the phrases that signal it.
// Matching is case-insensitive substring containment.
var stateKeywords = map[LeadState][]string{
	StateNeedFamilyDiscussion: {
		"discuss with my wife",
		"discuss with my husband",
		"talk to my wife",
		"talk to my husband",
		"check with my partner",
		"ask my family",
		"discuss with family",
		"family decision",
	},
	StateStillLooking: {
		"still looking",
		"exploring options",
		"comparing",
		"shopping around",
		"other projects",
		"viewing other",
		"keep my options",
	},
	StateBudgetConcerns: {
		"too expensive",
		"over budget",
		"can't afford",
		"cannot afford",
		"cheaper",
		"price is high",
		"out of my range",
		"stretch financially",
	},
	StateTimingNotRight: {
		"not right now",
		"maybe later",
		"next year",
		"not ready",
		"in a few months",
		"bad timing",
		"after my lease",
	},
	StateInterestedHesitant: {
		"interested but",
		"not sure",
		"thinking about it",
		"need more time",
		"let me think",
		"on the fence",
	},
	StateReadyToBook: {
		"book a viewing",
		"schedule a viewing",
		"when can we meet",
		"make an appointment",
		"visit the showflat",
		"see the unit",
		"let's proceed",
	},
}

// PatternAnalyzer scores the conversation window against per-state keyword
// lists. It is deterministic and never fails, which makes it the degradation
// path when the semantic call is unavailable.
type PatternAnalyzer struct{}

// NewPatternAnalyzer creates a PatternAnalyzer.
func NewPatternAnalyzer() *PatternAnalyzer {
	return &PatternAnalyzer{}
}

// Analyze scores each state: a keyword hit in the latest lead message counts
// 2, a hit anywhere else in the window counts 1. Confidence is
// min(maxScore/10, 0.9). The first state (in AllStates order) reaching the
// maximum wins; zero matches yield StateDefault at confidence 0.
func (a *PatternAnalyzer) Analyze(window []Turn) Result {
	latest := strings.ToLower(latestLeadMessage(window))

	var transcript strings.Builder
	for _, turn := range window {
		if strings.EqualFold(turn.Role, "lead") {
			transcript.WriteString(strings.ToLower(turn.Content))
			transcript.WriteString("\n")
		}
	}
	fullText := transcript.String()

	best := Result{State: StateDefault, Confidence: 0, Method: MethodPattern}
	bestScore := 0

	for _, state := range AllStates() {
		keywords := stateKeywords[state]
		if len(keywords) == 0 {
			continue
		}

		score := 0
		var matched []string
		for _, keyword := range keywords {
			switch {
			case latest != "" && strings.Contains(latest, keyword):
				score += 2
				matched = append(matched, keyword)
			case strings.Contains(fullText, keyword):
				score++
				matched = append(matched, keyword)
			}
		}

		if score > bestScore {
			bestScore = score
			best = Result{
				State:      state,
				Confidence: patternConfidence(score),
				Reasoning:  "keyword match: " + strings.Join(matched, ", "),
				Method:     MethodPattern,
			}
		}
	}

	return best
}

func patternConfidence(score int) float64 {
	conf := float64(score) / 10
	if conf > 0.9 {
		return 0.9
	}
	return conf
}

// latestLeadMessage returns the content of the most recent lead turn.
func latestLeadMessage(window []Turn) string {
	for i := len(window) - 1; i >= 0; i-- {
		if strings.EqualFold(window[i].Role, "lead") {
			return window[i].Content
		}
	}
	return ""
}
