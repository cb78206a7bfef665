package toy

import (
	"errors"
	"fmt"

	"github.com/samcharles93/fixlen/internal/logits"
	"github.com/samcharles93/fixlen/internal/oracle"
	"github.com/samcharles93/fixlen/internal/tensor"
)

var ErrPosition = errors.New("toy: position out of range")

// Cloze scores each interior position from its two neighbours:
//
//	logits_i = W concat(Emb[seq[i-1]], Emb[seq[i+1]]) + Bias + SourceBonus*[k in src]
//
// The loss is the sum of the per-position negative log-probabilities.
type Cloze struct {
	Vocab  int
	Hidden int

	Emb  tensor.Mat // [Vocab x Hidden]
	W    tensor.Mat // [Vocab x 2*Hidden]
	Bias []float32

	// SourceBonus is added to the logit of every token present in the
	// source sentence.
	SourceBonus float32
}

// NewCloze fills the weights deterministically from seed with values in
// (-1, 1), large enough that neighbours visibly move the conditional.
func NewCloze(vocab, hidden int, seed uint64) *Cloze {
	m := &Cloze{
		Vocab:       vocab,
		Hidden:      hidden,
		Emb:         tensor.NewMat(vocab, hidden),
		W:           tensor.NewMat(vocab, 2*hidden),
		Bias:        make([]float32, vocab),
		SourceBonus: 0.5,
	}
	tensor.FillRand(&m.Emb, seed+5)
	tensor.FillRand(&m.W, seed+17)
	for _, w := range []*tensor.Mat{&m.Emb, &m.W} {
		for i := range w.Data {
			w.Data[i] *= 100
		}
	}
	return m
}

// Uniform returns a Cloze whose every conditional is uniform.
func Uniform(vocab int) *Cloze {
	return &Cloze{
		Vocab:  vocab,
		Hidden: 1,
		Emb:    tensor.NewMat(vocab, 1),
		W:      tensor.NewMat(vocab, 2),
		Bias:   make([]float32, vocab),
	}
}

func (m *Cloze) Encode(src []int) (oracle.ScoreContext, error) {
	return m.EncodeSentence(src)
}

// EncodeSentence is Encode with the concrete return type.
func (m *Cloze) EncodeSentence(src []int) (*ClozeContext, error) {
	bonus := make([]float32, m.Vocab)
	for _, id := range src {
		if id < 0 || id >= m.Vocab {
			return nil, fmt.Errorf("toy: source token %d out of range [0, %d)", id, m.Vocab)
		}
		bonus[id] = m.SourceBonus
	}
	return &ClozeContext{m: m, bonus: bonus}, nil
}

type ClozeContext struct {
	m     *Cloze
	bonus []float32
}

// LogConditional returns the distribution at pos. seq[pos] is not read.
func (c *ClozeContext) LogConditional(seq []int, pos int) ([]float64, error) {
	if pos < 1 || pos > len(seq)-2 {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrPosition, pos, len(seq)-2)
	}
	for _, i := range []int{pos - 1, pos + 1} {
		if seq[i] < 0 || seq[i] >= c.m.Vocab {
			return nil, fmt.Errorf("toy: token %d out of range [0, %d)", seq[i], c.m.Vocab)
		}
	}
	x := tensor.Concat(c.m.Emb.Row(seq[pos-1]), c.m.Emb.Row(seq[pos+1]))
	out := make([]float32, c.m.Vocab)
	tensor.MatVecAdd(out, &c.m.W, x, c.m.Bias)
	tensor.Add(out, c.bonus)
	return logits.LogSoftmax(out), nil
}

func (c *ClozeContext) Loss(seq []int) (float64, error) {
	var loss float64
	for pos := 1; pos <= len(seq)-2; pos++ {
		lp, err := c.LogConditional(seq, pos)
		if err != nil {
			return 0, err
		}
		if seq[pos] < 0 || seq[pos] >= c.m.Vocab {
			return 0, fmt.Errorf("toy: token %d out of range [0, %d)", seq[pos], c.m.Vocab)
		}
		loss -= lp[seq[pos]]
	}
	return loss, nil
}

func (c *ClozeContext) SampleAt(seq []int, pos int, g *logits.Gumbel) (logits.Choice, error) {
	lp, err := c.LogConditional(seq, pos)
	if err != nil {
		return logits.Choice{}, err
	}
	return g.Resample(lp, seq[pos]), nil
}
