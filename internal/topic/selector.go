// Package topic picks the next topic to post about from the configured catalog.
package topic

import (
	"math"
	"math/rand/v2"

	"github.com/linkedin-autoposter/pkg/logger"
)

// MinWeight is the smallest weight a topic can carry, so a low or invalid score never removes it from the draw
const MinWeight = 0.001

// Selector draws topics, weighted by their past performance when there is any
type Selector struct {
	rng *rand.Rand
	log *logger.Logger
}

// NewSelector creates a selector. A nil rng uses a randomly seeded source.
func NewSelector(rng *rand.Rand, log *logger.Logger) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{
		rng: rng,
		log: log.WithComponent("topic-selector"),
	}
}

// Select returns one topic of the catalog. It never fails: without performance data,
// or when the weighted draw cannot be made, it falls back to a uniform pick.
// An empty catalog returns "".
func (s *Selector) Select(catalog []string, performance map[string]float64) (topic string) {
	if len(catalog) == 0 {
		return ""
	}
	if len(performance) == 0 {
		return s.uniform(catalog)
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().Interface("panic", r).Msg("Weighted topic selection failed, using uniform pick")
			topic = s.uniform(catalog)
		}
	}()

	weights := Weights(catalog, performance)
	largest := 0.0
	for _, w := range weights {
		largest = max(largest, w)
	}
	// scaled by the largest weight so the sum cannot overflow
	total := 0.0
	for i, w := range weights {
		weights[i] = w / largest
		total += weights[i]
	}

	target := s.rng.Float64() * total
	for i, w := range weights {
		target -= w
		if target < 0 {
			return catalog[i]
		}
	}
	return catalog[len(catalog)-1]
}

func (s *Selector) uniform(catalog []string) string {
	return catalog[s.rng.IntN(len(catalog))]
}

// Weights returns the selection weight of each catalog topic: its score,
// 1.0 when it has none, clamped to MinWeight. +Inf becomes the largest finite float.
func Weights(catalog []string, performance map[string]float64) []float64 {
	weights := make([]float64, len(catalog))
	for i, t := range catalog {
		w, ok := performance[t]
		if !ok {
			w = 1.0
		}
		switch {
		case math.IsInf(w, 1):
			w = math.MaxFloat64
		case math.IsNaN(w) || w < MinWeight:
			w = MinWeight
		}
		weights[i] = w
	}
	return weights
}

// Prune drops topics scoring below half the mean of all scores. Topics without a score are kept.
// If every topic would be dropped the catalog is returned unchanged.
func Prune(catalog []string, scores map[string]float64) (kept, pruned []string) {
	if len(scores) == 0 {
		return catalog, nil
	}

	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	threshold := 0.5 * (sum / float64(len(scores)))

	for _, t := range catalog {
		if score, ok := scores[t]; ok && score < threshold {
			pruned = append(pruned, t)
			continue
		}
		kept = append(kept, t)
	}

	if len(kept) == 0 {
		return catalog, nil
	}
	return kept, pruned
}
