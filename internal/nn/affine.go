package nn

import (
	"math/rand/v2"

	"github.com/samcharles93/fixlen/internal/tensor"
)

// Affine computes y = W x + b.
type Affine struct {
	Name string
	W    tensor.Mat // [out x in]
	B    tensor.Mat // [1 x out]
}

func NewAffine(name string, in, out int) *Affine {
	return &Affine{
		Name: name,
		W:    tensor.NewMat(out, in),
		B:    tensor.NewVec(out),
	}
}

func (a *Affine) In() int  { return a.W.C }
func (a *Affine) Out() int { return a.W.R }

// Forward returns a newly allocated output vector.
func (a *Affine) Forward(x []float32) []float32 {
	y := make([]float32, a.W.R)
	tensor.MatVecAdd(y, &a.W, x, a.B.Data)
	return y
}

func (a *Affine) Collect(p Params) {
	p[a.Name+".w"] = &a.W
	p[a.Name+".b"] = &a.B
}

// Init draws W from a Xavier uniform distribution and zeroes b.
func (a *Affine) Init(rng *rand.Rand) {
	tensor.FillXavier(&a.W, rng)
	clear(a.B.Data)
}
