package nn

import (
	"math/rand/v2"

	"github.com/samcharles93/fixlen/internal/tensor"
)

// LSTM is an input/forget/output gated cell without peepholes:
//
//	i = sigmoid(W_xi x + W_hi h + b_i)
//	f = sigmoid(W_xf x + W_hf h + b_f + 1)
//	o = sigmoid(W_xo x + W_ho h + b_o)
//	j = tanh   (W_xj x + W_hj h + b_j)
//	c' = i*j + f*c
//	h' = o*tanh(c')
type LSTM struct {
	Name string
	Wxh  tensor.Mat // [4*out x in]
	Whh  tensor.Mat // [4*out x out]
	Bh   tensor.Mat // [1 x 4*out]
}

// State is the (cell, hidden) pair. States are never mutated after Step
// returns them, so a State can be shared between branches of a search.
type State struct {
	C []float32
	H []float32
}

func NewLSTM(name string, in, out int) *LSTM {
	return &LSTM{
		Name: name,
		Wxh:  tensor.NewMat(4*out, in),
		Whh:  tensor.NewMat(4*out, out),
		Bh:   tensor.NewVec(4 * out),
	}
}

func (l *LSTM) In() int  { return l.Wxh.C }
func (l *LSTM) Out() int { return l.Whh.C }

// Start returns the initial state for the given cell, or a zero cell when c
// is nil. The hidden state starts as tanh(c).
func (l *LSTM) Start(c []float32) State {
	n := l.Out()
	cc := make([]float32, n)
	if c != nil {
		copy(cc, c)
	}
	h := make([]float32, n)
	for i, v := range cc {
		h[i] = tensor.Tanh(v)
	}
	return State{C: cc, H: h}
}

// Step consumes x and returns the next state.
func (l *LSTM) Step(s State, x []float32) State {
	n := l.Out()
	u := make([]float32, 4*n)
	tensor.MatVecAdd(u, &l.Wxh, x, l.Bh.Data)
	hh := make([]float32, 4*n)
	tensor.MatVec(hh, &l.Whh, s.H)
	tensor.Add(u, hh)

	c := make([]float32, n)
	h := make([]float32, n)
	for k := range n {
		i := tensor.Sigmoid(u[k])
		f := tensor.Sigmoid(1 + u[n+k])
		o := tensor.Sigmoid(u[2*n+k])
		j := tensor.Tanh(u[3*n+k])
		c[k] = i*j + f*s.C[k]
		h[k] = o * tensor.Tanh(c[k])
	}
	return State{C: c, H: h}
}

// Run feeds xs left to right from s and returns every intermediate state.
func (l *LSTM) Run(s State, xs [][]float32) []State {
	out := make([]State, len(xs))
	for i, x := range xs {
		s = l.Step(s, x)
		out[i] = s
	}
	return out
}

// RunReverse feeds xs right to left from s. The result is indexed like xs:
// out[i] summarises xs[i:].
func (l *LSTM) RunReverse(s State, xs [][]float32) []State {
	out := make([]State, len(xs))
	for i := len(xs) - 1; i >= 0; i-- {
		s = l.Step(s, xs[i])
		out[i] = s
	}
	return out
}

func (l *LSTM) Collect(p Params) {
	p[l.Name+".w_xh"] = &l.Wxh
	p[l.Name+".w_hh"] = &l.Whh
	p[l.Name+".b_h"] = &l.Bh
}

func (l *LSTM) Init(rng *rand.Rand) {
	tensor.FillXavier(&l.Wxh, rng)
	tensor.FillXavier(&l.Whh, rng)
	clear(l.Bh.Data)
}
