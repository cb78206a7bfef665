package nn

import (
	"math/rand/v2"

	"github.com/samcharles93/fixlen/internal/tensor"
)

// Attention is multilayer-perceptron attention:
//
//	score_k = w_ha . tanh(W_eh e_k + W_dh d + b_h)
//	probs   = softmax(score)
//	context = sum_k probs_k e_k
type Attention struct {
	Name string
	Weh  tensor.Mat // [hidden x enc]
	Wdh  tensor.Mat // [hidden x dec]
	Bh   tensor.Mat // [1 x hidden]
	Wha  tensor.Mat // [1 x hidden]
}

// Memory is the per-sentence view of the encoder states.
type Memory struct {
	enc [][]float32
	eh  [][]float32
}

// Len returns the number of attended positions.
func (m *Memory) Len() int { return len(m.enc) }

func NewAttention(name string, enc, dec, hidden int) *Attention {
	return &Attention{
		Name: name,
		Weh:  tensor.NewMat(hidden, enc),
		Wdh:  tensor.NewMat(hidden, dec),
		Bh:   tensor.NewVec(hidden),
		Wha:  tensor.NewVec(hidden),
	}
}

// Memorize precomputes the encoder projection used by every query.
func (a *Attention) Memorize(enc [][]float32) *Memory {
	eh := make([][]float32, len(enc))
	for k, e := range enc {
		eh[k] = make([]float32, a.Weh.R)
		tensor.MatVec(eh[k], &a.Weh, e)
	}
	return &Memory{enc: enc, eh: eh}
}

// Probs returns the attention distribution for decoder state d.
func (a *Attention) Probs(m *Memory, d []float32) []float32 {
	dh := make([]float32, a.Wdh.R)
	tensor.MatVecAdd(dh, &a.Wdh, d, a.Bh.Data)

	scores := make([]float32, len(m.eh))
	tmp := make([]float32, len(dh))
	for k, eh := range m.eh {
		for i := range tmp {
			tmp[i] = tensor.Tanh(eh[i] + dh[i])
		}
		scores[k] = tensor.Dot(a.Wha.Data, tmp)
	}
	tensor.Softmax(scores)
	return scores
}

// Context returns the probability-weighted sum of encoder states.
func (a *Attention) Context(m *Memory, probs []float32) []float32 {
	if len(m.enc) == 0 {
		return nil
	}
	c := make([]float32, len(m.enc[0]))
	for k, e := range m.enc {
		p := probs[k]
		for i, v := range e {
			c[i] += p * v
		}
	}
	return c
}

func (a *Attention) Collect(p Params) {
	p[a.Name+".w_eh"] = &a.Weh
	p[a.Name+".w_dh"] = &a.Wdh
	p[a.Name+".b_h"] = &a.Bh
	p[a.Name+".w_ha"] = &a.Wha
}

func (a *Attention) Init(rng *rand.Rand) {
	tensor.FillXavier(&a.Weh, rng)
	tensor.FillXavier(&a.Wdh, rng)
	clear(a.Bh.Data)
	tensor.FillXavier(&a.Wha, rng)
}
