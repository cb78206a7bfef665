package mcmc

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Mixture presets.
const (
	PresetThreeMove = "three-move"
	PresetTwoMove   = "two-move"
)

var ErrMixture = errors.New("invalid kernel mixture")

// Component is one kernel and its selection weight.
type Component struct {
	Kernel Kernel
	Weight float64
}

// Mixture selects a kernel per step with probability proportional to its
// weight.
type Mixture struct {
	parts []Component
	total float64
}

// NewMixture validates the weights. Every weight must be positive and
// every kernel may appear once.
func NewMixture(parts ...Component) (*Mixture, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no kernels", ErrMixture)
	}
	seen := make(map[string]bool, len(parts))
	var total float64
	for _, p := range parts {
		name := p.Kernel.Name()
		if seen[name] {
			return nil, fmt.Errorf("%w: kernel %q listed twice", ErrMixture, name)
		}
		seen[name] = true
		if !(p.Weight > 0) || math.IsInf(p.Weight, 0) {
			return nil, fmt.Errorf("%w: kernel %q has weight %g", ErrMixture, name, p.Weight)
		}
		total += p.Weight
	}
	return &Mixture{parts: parts, total: total}, nil
}

// Preset returns a named mixture:
//
//	three-move: segment 0.4, word 0.48, reversal 0.12
//	two-move:   word 0.8, reversal 0.2
func Preset(name string) (*Mixture, error) {
	switch name {
	case PresetThreeMove:
		return NewMixture(
			Component{SegmentResample{}, 0.4},
			Component{WordResample{}, 0.48},
			Component{SegmentReversal{}, 0.12},
		)
	case PresetTwoMove:
		return NewMixture(
			Component{WordResample{}, 0.8},
			Component{SegmentReversal{}, 0.2},
		)
	}
	return nil, fmt.Errorf("%w: unknown preset %q", ErrMixture, name)
}

// KernelByName returns the kernel registered under name.
func KernelByName(name string) (Kernel, error) {
	switch name {
	case KernelWord:
		return WordResample{}, nil
	case KernelSegment:
		return SegmentResample{}, nil
	case KernelReversal:
		return SegmentReversal{}, nil
	}
	return nil, fmt.Errorf("%w: unknown kernel %q", ErrMixture, name)
}

// ParseMixture accepts a preset name or a list such as
// "word=0.7,reversal=0.3".
func ParseMixture(s string) (*Mixture, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "=") {
		return Preset(s)
	}
	var parts []Component
	for field := range strings.SplitSeq(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not name=weight", ErrMixture, field)
		}
		k, err := KernelByName(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: weight for %q: %v", ErrMixture, name, err)
		}
		parts = append(parts, Component{Kernel: k, Weight: w})
	}
	return NewMixture(parts...)
}

// Uses reports whether the mixture contains the named kernel.
func (m *Mixture) Uses(name string) bool {
	for _, p := range m.parts {
		if p.Kernel.Name() == name {
			return true
		}
	}
	return false
}

// NeedsProposal reports whether a proposal model must be loaded.
func (m *Mixture) NeedsProposal() bool { return m.Uses(KernelSegment) }

// Components returns the kernels with normalised weights.
func (m *Mixture) Components() []Component {
	out := make([]Component, len(m.parts))
	for i, p := range m.parts {
		out[i] = Component{Kernel: p.Kernel, Weight: p.Weight / m.total}
	}
	return out
}

// Pick draws a kernel.
func (m *Mixture) Pick(r *rand.Rand) Kernel {
	u := r.Float64() * m.total
	for _, p := range m.parts {
		if u < p.Weight {
			return p.Kernel
		}
		u -= p.Weight
	}
	return m.parts[len(m.parts)-1].Kernel
}

func (m *Mixture) String() string {
	var b strings.Builder
	for i, p := range m.Components() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%g", p.Kernel.Name(), p.Weight)
	}
	return b.String()
}
