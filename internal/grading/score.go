package grading

import "math"

// ClampWeight treats absent and non-positive weights as 1 so a single
// zero-weight question can never divide the total away.
func ClampWeight(w float64) float64 {
	if w <= 0 {
		return 1
	}
	return w
}

// Score computes the weighted percentage, rounded to the nearest
// integer. A pass over zero questions scores 0 by policy, not by error.
func Score(answers []ResolvedAnswer) int {
	var earned, total float64
	for _, a := range answers {
		w := ClampWeight(a.Weight)
		total += w
		if a.IsCorrect {
			earned += w
		}
	}
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * earned / total))
}
