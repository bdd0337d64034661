// Package selector picks the template to send for a lead's state and
// sequence stage, with a fallback chain that never leaves the dispatcher
// without content.
package selector

import (
	"math/rand"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/repository"
)

// Strategy picks one template from a non-empty candidate pool.
type Strategy interface {
	Pick(candidates []repository.Template) repository.Template
}

// WeightedRandom draws proportionally to each template's usage_weight.
// Templates with non-positive weight are treated as weight 1.
type WeightedRandom struct {
	rng *rand.Rand
}

// NewWeightedRandom creates the default strategy. rng may be nil, in which
// case the shared global source is used.
func NewWeightedRandom(rng *rand.Rand) *WeightedRandom {
	return &WeightedRandom{rng: rng}
}

func (s *WeightedRandom) Pick(candidates []repository.Template) repository.Template {
	total := 0.0
	for _, t := range candidates {
		total += effectiveWeight(t)
	}

	draw := total * s.float64()
	cumulative := 0.0
	for _, t := range candidates {
		cumulative += effectiveWeight(t)
		if draw < cumulative {
			return t
		}
	}
	return candidates[len(candidates)-1]
}

func (s *WeightedRandom) float64() float64 {
	if s.rng != nil {
		return s.rng.Float64()
	}
	return rand.Float64()
}

func effectiveWeight(t repository.Template) float64 {
	if t.UsageWeight <= 0 {
		return 1
	}
	return t.UsageWeight
}

// PerformanceBased picks the template with the best blended outcome score,
// weighting response rate over conversion rate.
type PerformanceBased struct{}

func (PerformanceBased) Pick(candidates []repository.Template) repository.Template {
	best := candidates[0]
	bestScore := performanceScore(best)
	for _, t := range candidates[1:] {
		if score := performanceScore(t); score > bestScore {
			best = t
			bestScore = score
		}
	}
	return best
}

func performanceScore(t repository.Template) float64 {
	return 0.6*t.ResponseRate + 0.4*t.ConversionRate
}

// LeastUsed picks the template with the lowest usage count, spreading sends
// evenly across variations.
type LeastUsed struct{}

func (LeastUsed) Pick(candidates []repository.Template) repository.Template {
	best := candidates[0]
	for _, t := range candidates[1:] {
		if t.UsageCount < best.UsageCount {
			best = t
		}
	}
	return best
}
