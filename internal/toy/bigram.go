// Package toy provides tiny deterministic sequence models with the same
// oracle interfaces as the neural ones. They are small enough to check by
// hand and are used to test the sampler without loading real weights.
package toy

import (
	"fmt"

	"github.com/samcharles93/fixlen/internal/logits"
	"github.com/samcharles93/fixlen/internal/oracle"
	"github.com/samcharles93/fixlen/internal/tensor"
)

// Bigram is a left-to-right model whose next-token distribution depends
// only on the previous token: logits = W Emb[prev] + Bias. It ignores the
// source sentence.
type Bigram struct {
	Vocab  int
	Hidden int

	Emb  tensor.Mat // [Vocab x Hidden]
	W    tensor.Mat // [Vocab x Hidden]
	Bias []float32  // [Vocab]
}

// NewBigram fills the weights deterministically from seed.
func NewBigram(vocab, hidden int, seed uint64) *Bigram {
	m := &Bigram{
		Vocab:  vocab,
		Hidden: hidden,
		Emb:    tensor.NewMat(vocab, hidden),
		W:      tensor.NewMat(vocab, hidden),
		Bias:   make([]float32, vocab),
	}
	tensor.FillRand(&m.Emb, seed+11)
	tensor.FillRand(&m.W, seed+23)
	return m
}

// Forward returns the logits following tok.
func (m *Bigram) Forward(tok int) []float32 {
	out := make([]float32, m.Vocab)
	tensor.MatVecAdd(out, &m.W, m.Emb.Row(tok), m.Bias)
	return out
}

// LogProbs returns the normalised next-token log-distribution after tok.
func (m *Bigram) LogProbs(tok int) []float64 {
	return logits.LogSoftmax(m.Forward(tok))
}

func (m *Bigram) Encode(src []int) (oracle.ProposalContext, error) {
	return bigramContext{m: m}, nil
}

type bigramContext struct{ m *Bigram }

func (c bigramContext) Start() oracle.Decoder {
	return &bigramDecoder{m: c.m}
}

// bigramDecoder has no state beyond the model: the distribution depends
// only on the token just fed.
type bigramDecoder struct {
	m *Bigram
}

func (d *bigramDecoder) Step(tok int) ([]float64, error) {
	if tok < 0 || tok >= d.m.Vocab {
		return nil, fmt.Errorf("toy: token %d out of range [0, %d)", tok, d.m.Vocab)
	}
	return d.m.LogProbs(tok), nil
}

func (d *bigramDecoder) Clone() oracle.Decoder {
	cp := *d
	return &cp
}
