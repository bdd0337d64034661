package selector

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/ebenpjw/realestate-bot-backend-sub008/internal/templates/repository"
)

func TestWeightedRandomConvergesToWeights(t *testing.T) {
	heavy := repository.Template{ID: uuid.New(), Name: "heavy", UsageWeight: 3}
	light := repository.Template{ID: uuid.New(), Name: "light", UsageWeight: 1}
	candidates := []repository.Template{heavy, light}

	strategy := NewWeightedRandom(rand.New(rand.NewSource(42)))

	const draws = 10000
	heavyCount := 0
	for i := 0; i < draws; i++ {
		if strategy.Pick(candidates).ID == heavy.ID {
			heavyCount++
		}
	}

	// 3:1 weights should yield ~75% of draws, within 10%.
	ratio := float64(heavyCount) / draws
	if ratio < 0.65 || ratio > 0.85 {
		t.Fatalf("expected ~0.75 share for the heavier template, got %f", ratio)
	}
}

func TestWeightedRandomTreatsZeroWeightAsOne(t *testing.T) {
	a := repository.Template{ID: uuid.New(), UsageWeight: 0}
	b := repository.Template{ID: uuid.New(), UsageWeight: 0}
	strategy := NewWeightedRandom(rand.New(rand.NewSource(1)))

	seen := map[uuid.UUID]int{}
	for i := 0; i < 1000; i++ {
		seen[strategy.Pick([]repository.Template{a, b}).ID]++
	}
	if seen[a.ID] == 0 || seen[b.ID] == 0 {
		t.Fatalf("expected both zero-weight templates to be drawn, got %v", seen)
	}
}

func TestPerformanceBasedPrefersBlendedScore(t *testing.T) {
	responder := repository.Template{ID: uuid.New(), Name: "responder", ResponseRate: 0.5, ConversionRate: 0.1}
	converter := repository.Template{ID: uuid.New(), Name: "converter", ResponseRate: 0.1, ConversionRate: 0.5}

	// 0.6*0.5+0.4*0.1 = 0.34 beats 0.6*0.1+0.4*0.5 = 0.26.
	picked := PerformanceBased{}.Pick([]repository.Template{converter, responder})
	if picked.ID != responder.ID {
		t.Fatalf("expected the higher response-rate template, got %s", picked.Name)
	}
}

func TestLeastUsedPicksLowestCount(t *testing.T) {
	worn := repository.Template{ID: uuid.New(), UsageCount: 40}
	fresh := repository.Template{ID: uuid.New(), UsageCount: 3}

	picked := LeastUsed{}.Pick([]repository.Template{worn, fresh})
	if picked.ID != fresh.ID {
		t.Fatal("expected the least used template")
	}
}
