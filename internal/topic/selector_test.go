package topic

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkedin-autoposter/pkg/logger"
)

func newTestSelector(seed uint64) *Selector {
	return NewSelector(rand.New(rand.NewPCG(seed, seed+1)), logger.Nop())
}

func TestSelectAlwaysReturnsCatalogMember(t *testing.T) {
	catalog := []string{"AI", "Technology", "Business"}
	perfs := []map[string]float64{
		nil,
		{},
		{"AI": 0.9},
		{"AI": 0, "Technology": 0, "Business": 0},
		{"AI": -3, "Technology": math.NaN(), "Business": math.Inf(1)},
		{"Unknown": 5},
	}

	s := newTestSelector(1)
	for _, perf := range perfs {
		for i := 0; i < 200; i++ {
			assert.Contains(t, catalog, s.Select(catalog, perf))
		}
	}
}

func TestSelectEmptyCatalog(t *testing.T) {
	assert.Equal(t, "", newTestSelector(1).Select(nil, map[string]float64{"AI": 1}))
}

func TestZeroScoreTopicKeepsNonZeroProbability(t *testing.T) {
	catalog := []string{"AI", "Cold"}
	perf := map[string]float64{"AI": 0.1, "Cold": 0}

	s := newTestSelector(42)
	counts := map[string]int{}
	for i := 0; i < 20000; i++ {
		counts[s.Select(catalog, perf)]++
	}

	// 0.001 / 0.101 is roughly 1%
	assert.Greater(t, counts["Cold"], 0)
	assert.Less(t, counts["Cold"], counts["AI"])
}

func TestSelectFollowsWeights(t *testing.T) {
	catalog := []string{"A", "B"}
	perf := map[string]float64{"A": 3, "B": 1}

	s := newTestSelector(7)
	a := 0
	const n = 20000
	for i := 0; i < n; i++ {
		if s.Select(catalog, perf) == "A" {
			a++
		}
	}
	assert.InDelta(t, 0.75, float64(a)/n, 0.03)
}

func TestSelectUniformWithoutPerformance(t *testing.T) {
	catalog := []string{"A", "B", "C", "D"}
	s := newTestSelector(9)
	counts := map[string]int{}
	for i := 0; i < 8000; i++ {
		counts[s.Select(catalog, nil)]++
	}
	for _, c := range catalog {
		assert.InDelta(t, 2000, counts[c], 300, c)
	}
}

func TestWeights(t *testing.T) {
	w := Weights([]string{"A", "B", "C"}, map[string]float64{"A": 2.5, "C": -1})
	assert.Equal(t, []float64{2.5, 1.0, MinWeight}, w)

	w = Weights([]string{"A", "B", "C"}, map[string]float64{"A": math.Inf(1), "B": math.Inf(-1), "C": math.NaN()})
	assert.Equal(t, []float64{math.MaxFloat64, MinWeight, MinWeight}, w)
}

func TestSelectHugeScores(t *testing.T) {
	catalog := []string{"A", "B", "C"}
	s := newTestSelector(3)

	counts := map[string]int{}
	for i := 0; i < 3000; i++ {
		counts[s.Select(catalog, map[string]float64{"A": 1e308, "B": 1e308, "C": 1e308})]++
	}
	for _, c := range catalog {
		assert.InDelta(t, 1000, counts[c], 150, c)
	}

	for i := 0; i < 300; i++ {
		assert.Equal(t, "A", s.Select([]string{"A", "B"}, map[string]float64{"A": math.Inf(1), "B": 1}))
	}
}

func TestPrune(t *testing.T) {
	kept, pruned := Prune([]string{"A", "B", "C"}, map[string]float64{"A": 10, "B": 10, "C": 2})
	assert.Equal(t, []string{"A", "B"}, kept)
	assert.Equal(t, []string{"C"}, pruned)
}

func TestPruneKeepsUnscoredAndNeverEmpties(t *testing.T) {
	kept, pruned := Prune([]string{"A", "New"}, map[string]float64{"A": 1, "B": 10})
	assert.Equal(t, []string{"New"}, kept)
	assert.Equal(t, []string{"A"}, pruned)

	kept, pruned = Prune([]string{"A"}, map[string]float64{"A": 1, "B": 100})
	assert.Equal(t, []string{"A"}, kept)
	assert.Empty(t, pruned)

	kept, pruned = Prune([]string{"A", "B"}, nil)
	assert.Equal(t, []string{"A", "B"}, kept)
	assert.Empty(t, pruned)
}
