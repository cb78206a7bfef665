package logits

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// LogSoftmax returns log(softmax(x)) in float64.
func LogSoftmax(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	normalize(out)
	return out
}

// Temper returns the log-distribution proportional to exp(logp/scale).
// scale == 1 returns logp unchanged.
func Temper(logp []float64, scale float64) []float64 {
	if scale == 1 {
		return logp
	}
	out := make([]float64, len(logp))
	for i, v := range logp {
		out[i] = v / scale
	}
	normalize(out)
	return out
}

func normalize(x []float64) {
	if len(x) == 0 {
		return
	}
	floats.AddConst(-floats.LogSumExp(x), x)
}

// Choice is one categorical redraw: the value that was in place, the value
// drawn, and the log-probability of each under the distribution used.
type Choice struct {
	Old        int
	New        int
	OldLogProb float64
	NewLogProb float64
}

// Gumbel draws exact categorical samples with the Gumbel-max trick: adding
// independent Gumbel(0, 1) noise to log-probabilities and taking the argmax
// selects index i with probability p_i, with no explicit normalisation.
//
// A scale other than 1 samples from softmax(logp/scale). The log-probs
// reported by Draw and Resample are always those of the distribution that
// was actually sampled, so proposal ratios built from them stay exact.
type Gumbel struct {
	noise distuv.GumbelRight
	scale float64
}

// NewGumbel returns a Gumbel-max sampler reading randomness from src.
// Non-positive scales are treated as 1.
func NewGumbel(src rand.Source, scale float64) *Gumbel {
	if scale <= 0 || math.IsNaN(scale) {
		scale = 1
	}
	return &Gumbel{
		noise: distuv.GumbelRight{Mu: 0, Beta: 1, Src: src},
		scale: scale,
	}
}

// Scale returns the sampling temperature.
func (g *Gumbel) Scale() float64 { return g.scale }

// Draw returns a sample index and the log-distribution it was drawn from.
func (g *Gumbel) Draw(logp []float64) (int, []float64) {
	dist := Temper(logp, g.scale)
	best := 0
	bestV := math.Inf(-1)
	for i, lp := range dist {
		v := lp + g.noise.Rand()
		if v > bestV {
			best, bestV = i, v
		}
	}
	return best, dist
}

// Resample draws a replacement for old from logp.
func (g *Gumbel) Resample(logp []float64, old int) Choice {
	id, dist := g.Draw(logp)
	return Choice{
		Old:        old,
		New:        id,
		OldLogProb: dist[old],
		NewLogProb: dist[id],
	}
}
