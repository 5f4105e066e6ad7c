package similarity

import "math"

// Gaussian computes a numeric similarity with a Gaussian kernel:
// exp(-((a-b)^2) / (2*sigma^2)). Sigma controls how quickly similarity
// decays with distance and is configured per attribute. A non-positive
// sigma falls back to AbsDiff.
func Gaussian(a, b, sigma float64) float64 {
	if sigma <= 0 {
		return AbsDiff(a, b)
	}
	diff := a - b
	return math.Exp(-(diff * diff) / (2 * sigma * sigma))
}

// AbsDiff is the fallback numeric similarity for attributes without a
// configured sigma: 1 for equal values, decaying as 1/(1+|a-b|) so that the
// result stays in (0.0, 1.0] for every finite pair.
func AbsDiff(a, b float64) float64 {
	if a == b {
		return 1.0
	}
	return 1.0 / (1.0 + math.Abs(a-b))
}
