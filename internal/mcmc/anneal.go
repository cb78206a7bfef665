package mcmc

import "math"

// Temperature returns the annealing divisor for step n of numSamples:
// numSamples/n, falling from numSamples at the first step to 1 at the last.
//
// Dividing the log acceptance ratio by a temperature above 1 makes the
// chain accept almost everything early on and become plain
// Metropolis-Hastings at the end. The schedule changes over the run, so the
// chain does not satisfy detailed balance for the scorer's distribution; it
// is annealing toward high-scoring sequences, not an exact sampler.
func Temperature(n, numSamples int) float64 {
	if n < 1 || numSamples < 1 {
		return 1
	}
	return float64(numSamples) / float64(n)
}

// Acceptance returns the annealed Metropolis-Hastings ratio
// exp((lpy + lqx - lpx - lqy) / tp). It is never clamped; callers accept
// when u <= alpha.
func Acceptance(lpx, lpy, lqx, lqy, tp float64) float64 {
	return math.Exp((lpy + lqx - lpx - lqy) / tp)
}
