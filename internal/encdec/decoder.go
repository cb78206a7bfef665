package encdec

import (
	"fmt"

	"github.com/samcharles93/fixlen/internal/logits"
	"github.com/samcharles93/fixlen/internal/nn"
	"github.com/samcharles93/fixlen/internal/oracle"
	"github.com/samcharles93/fixlen/internal/tensor"
	"github.com/samcharles93/fixlen/internal/vocab"
)

// Context is one encoded source sentence.
type Context struct {
	m     *Model
	mem   *nn.Memory
	start nn.State
}

// Start returns a decoder positioned before the first target token.
func (c *Context) Start() oracle.Decoder {
	return c.NewDecoder()
}

// NewDecoder is Start with the concrete return type.
func (c *Context) NewDecoder() *Decoder {
	return &Decoder{
		ctx: c,
		st:  c.start,
		j:   make([]float32, c.m.Cfg.Embed),
	}
}

// Decoder carries the recurrent state and the fed-back output embedding.
// Step replaces both rather than writing into them, so Clone only needs to
// copy the struct.
type Decoder struct {
	ctx *Context
	st  nn.State
	j   []float32
}

// Step feeds tok and returns the log-distribution of the following token.
func (d *Decoder) Step(tok int) ([]float64, error) {
	m := d.ctx.m
	if tok < 0 || tok >= m.Cfg.TrgVocab {
		return nil, fmt.Errorf("%w: target token %d (vocab %d)", ErrTokenOutOfRange, tok, m.Cfg.TrgVocab)
	}
	d.st = m.dec.Step(d.st, tensor.Concat(m.trgEmbed.Lookup(tok), d.j))
	probs := m.att.Probs(d.ctx.mem, d.st.H)
	c := m.att.Context(d.ctx.mem, probs)
	j := m.affCDJ.Forward(tensor.Concat(c, d.st.H))
	tensor.TanhInPlace(j)
	d.j = j
	return logits.LogSoftmax(m.affJY.Forward(j)), nil
}

// Clone returns an independent decoder in the same state.
func (d *Decoder) Clone() oracle.Decoder {
	cp := *d
	return &cp
}

// Loss returns the teacher-forced negative log-likelihood of trg, which
// includes <bos> and <eos>.
func (c *Context) Loss(trg []int) (float64, error) {
	d := c.NewDecoder()
	var loss float64
	for i := 0; i+1 < len(trg); i++ {
		lp, err := d.Step(trg[i])
		if err != nil {
			return 0, err
		}
		next := trg[i+1]
		if next < 0 || next >= len(lp) {
			return 0, fmt.Errorf("%w: target token %d at %d", ErrTokenOutOfRange, next, i+1)
		}
		loss -= lp[next]
	}
	return loss, nil
}

// Translate decodes left to right until <eos> or limit tokens. The result
// excludes <bos> and <eos>.
func (c *Context) Translate(limit int, s *logits.Sampler) ([]int, error) {
	d := c.NewDecoder()
	out := make([]int, 0, limit)
	tok := vocab.BOSID
	for range limit {
		lp, err := d.Step(tok)
		if err != nil {
			return nil, err
		}
		tok = s.Sample(lp)
		if tok == vocab.EOSID {
			break
		}
		out = append(out, tok)
	}
	return out, nil
}
