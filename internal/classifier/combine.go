package classifier

// semanticDominanceThreshold is the confidence at which the semantic result
// is adopted without consulting the pattern score.
const semanticDominanceThreshold = 0.85

// fallbackConfidenceCap bounds the confidence of any pattern-only result
// produced because the semantic call failed.
const fallbackConfidenceCap = 0.3

// Combine is the single policy deciding which analysis wins.
//
//   - semantic failed: degrade to the pattern result, confidence capped at
//     fallbackConfidenceCap (a zero-match pattern result is reported at the
//     cap itself, as the floor for "we know nothing").
//   - semantic confidence >= 0.85: semantic result unmodified.
//   - pattern confidence > semantic confidence: pattern state/confidence win;
//     reasoning, objections and interests from the semantic analysis are kept
//     as auxiliary detail.
//   - otherwise: semantic result, method tagged combined.
func Combine(semantic *Result, semanticErr error, pattern Result) Result {
	if semanticErr != nil || semantic == nil {
		out := pattern
		if out.Confidence > fallbackConfidenceCap || out.Confidence == 0 {
			out.Confidence = fallbackConfidenceCap
		}
		out.Method = MethodFallback
		return out
	}

	if semantic.Confidence >= semanticDominanceThreshold {
		out := *semantic
		out.Method = MethodSemantic
		return out
	}

	if pattern.Confidence > semantic.Confidence {
		out := pattern
		out.Method = MethodPattern
		out.Reasoning = semantic.Reasoning
		out.Objections = semantic.Objections
		out.Interests = semantic.Interests
		return out
	}

	out := *semantic
	out.Method = MethodCombined
	return out
}
