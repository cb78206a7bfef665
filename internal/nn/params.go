// Package nn holds the small set of recurrent building blocks shared by the
// fixed-length scorer and the attention encoder/decoder. Layers own only
// weights; every forward call takes and returns its state explicitly, so one
// loaded model can serve many sentences at once.
package nn

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/samcharles93/fixlen/internal/tensor"
)

// Params maps a parameter name to the matrix holding its values.
type Params map[string]*tensor.Mat

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Assign copies data into the named parameter after checking its shape.
func (p Params) Assign(name string, shape []int, data []float32) error {
	m, ok := p[name]
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	if len(shape) != 2 || shape[0] != m.R || shape[1] != m.C {
		return fmt.Errorf("parameter %q: shape %v, want [%d %d]", name, shape, m.R, m.C)
	}
	if len(data) != len(m.Data) {
		return fmt.Errorf("parameter %q: %d values, want %d", name, len(data), len(m.Data))
	}
	copy(m.Data, data)
	return nil
}

// Layer is implemented by every block in this package.
type Layer interface {
	Collect(p Params)
	Init(rng *rand.Rand)
}
