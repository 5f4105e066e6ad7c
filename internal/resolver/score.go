package resolver

import (
	"github.com/scrypster/coalesce/internal/similarity"
	"github.com/scrypster/coalesce/pkg/types"
)

// scorePair computes the weighted aggregate similarity for one candidate
// pair: score = sum(weight * sim) / sum(weight), over attributes present on
// either side.
//
// Missing-value policy: if both sides lack the attribute it is excluded
// from the weight normalization entirely; if exactly one side lacks it, the
// attribute contributes 0.0 but its weight still counts. Scoring never
// fails on absent or oddly-typed values.
func (p *Pipeline) scorePair(a, b *types.Entity) types.MatchCandidate {
	candidate := types.MatchCandidate{
		EntityA:         a.ID,
		EntityB:         b.ID,
		AttributeScores: make(map[string]float64, len(p.cfg.Weights)),
	}

	totalWeight := 0.0
	totalScore := 0.0

	for attr, weight := range p.cfg.Weights {
		va, okA := a.Attribute(attr)
		vb, okB := b.Attribute(attr)
		if !okA && !okB {
			continue
		}

		score := 0.0
		if okA && okB {
			score = p.compare(attr, va, vb)
		}

		candidate.AttributeScores[attr] = score
		totalScore += score * weight
		totalWeight += weight
	}

	if totalWeight > 0 {
		candidate.Score = totalScore / totalWeight
	}
	return candidate
}

// compare applies the attribute's configured comparator. Values of the
// wrong kind for the comparator score 0.0 rather than erroring; the open
// schema makes mixed-kind attributes a data condition, not a bug.
func (p *Pipeline) compare(attr string, a, b types.Value) float64 {
	switch p.cfg.Comparators[attr] {
	case CompareJaroWinkler:
		return similarity.JaroWinkler(a.AsString(), b.AsString())
	case CompareLevenshtein:
		return similarity.LevenshteinRatio(a.AsString(), b.AsString())
	case CompareExact:
		return similarity.Exact(a.AsString(), b.AsString())
	case CompareNumeric:
		if a.Kind != types.KindNumber || b.Kind != types.KindNumber {
			return 0.0
		}
		return similarity.Gaussian(a.Num, b.Num, p.cfg.Sigmas[attr])
	default:
		return 0.0
	}
}
