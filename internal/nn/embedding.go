package nn

import (
	"math/rand/v2"

	"github.com/samcharles93/fixlen/internal/tensor"
)

// Embedding is a lookup table with one row per vocabulary entry.
type Embedding struct {
	Name string
	W    tensor.Mat // [vocab x dim]
}

func NewEmbedding(name string, vocab, dim int) *Embedding {
	return &Embedding{Name: name, W: tensor.NewMat(vocab, dim)}
}

func (e *Embedding) Vocab() int { return e.W.R }
func (e *Embedding) Dim() int   { return e.W.C }

// Lookup returns a read-only view of the embedding for id.
func (e *Embedding) Lookup(id int) []float32 {
	return e.W.Row(id)
}

func (e *Embedding) Collect(p Params) {
	p[e.Name] = &e.W
}

func (e *Embedding) Init(rng *rand.Rand) {
	tensor.FillXavier(&e.W, rng)
}
