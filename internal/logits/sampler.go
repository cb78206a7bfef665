package logits

import (
	"math"
	"math/rand/v2"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed        uint64
	Temperature float64
	TopK        int
	TopP        float64
}

// Sampler picks tokens from a log-distribution for free-running decoding.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
	topIdx []int
	topVal []float64
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
// A non-positive temperature selects greedy decoding.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 40
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	return &Sampler{
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Greedy reports whether the sampler always returns the argmax.
func (s *Sampler) Greedy() bool { return s.greedy }

// Sample draws a single index from logp:
//
//  1. Greedy samplers return the argmax.
//  2. Otherwise the top k entries are kept after dividing by the temperature.
//  3. They are renormalised, truncated at cumulative probability TopP, and
//     one is drawn with a uniform variate.
func (s *Sampler) Sample(logp []float64) int {
	if s.greedy || (s.cfg.TopK == 1 && s.cfg.TopP >= 1) {
		return Argmax(logp)
	}

	k := min(s.cfg.TopK, len(logp))
	topIdx, topVal := s.topK(logp, k, 1/s.cfg.Temperature)
	if len(topVal) == 0 {
		return 0
	}

	maxv := topVal[0]
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i, v := range topVal {
		prob[i] = math.Exp(v - maxv)
		sum += prob[i]
	}
	if sum == 0 {
		return topIdx[0]
	}
	for i := range prob {
		prob[i] /= sum
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i, p := range prob {
			c += p
			if c >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	var total float64
	for _, p := range prob[:cut] {
		total += p
	}
	r := s.rng.Float64() * total
	var c float64
	for i := range cut {
		c += prob[i]
		if r <= c {
			return topIdx[i]
		}
	}
	return topIdx[cut-1]
}

// Argmax returns the index of the maximum value. It panics on an empty slice.
func Argmax(x []float64) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// topK returns the indices and scaled values of the k largest entries,
// largest first. O(V*K), fine for small K.
func (s *Sampler) topK(x []float64, k int, scale float64) ([]int, []float64) {
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float64, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range x {
		v := l * scale

		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
