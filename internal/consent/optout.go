package consent

import "strings"

// optOutKeywords trigger full-confidence opt-out when the whole message is
// the keyword, and reduced confidence when merely contained in it.
var optOutKeywords = []string{
	"stop",
	"unsubscribe",
	"opt out",
	"opt-out",
	"don't message me",
	"do not message me",
	"don't contact me",
	"do not contact me",
	"remove me",
	"leave me alone",
	"stop messaging",
	"no more messages",
}

// OptOutResult reports whether a lead message is an opt-out request.
type OptOutResult struct {
	IsOptOut   bool
	Confidence float64
	Matched    string
}

// DetectOptOut checks a lead message against the opt-out keyword list.
// An exact match (the message is only the keyword, ignoring case and
// surrounding whitespace/punctuation) scores 1.0; containment scores 0.8.
func DetectOptOut(text string) OptOutResult {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.Trim(normalized, ".!?")

	for _, keyword := range optOutKeywords {
		if normalized == keyword {
			return OptOutResult{IsOptOut: true, Confidence: 1.0, Matched: keyword}
		}
	}
	for _, keyword := range optOutKeywords {
		if strings.Contains(normalized, keyword) {
			return OptOutResult{IsOptOut: true, Confidence: 0.8, Matched: keyword}
		}
	}
	return OptOutResult{}
}
