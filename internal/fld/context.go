package fld

import (
	"fmt"

	"github.com/samcharles93/fixlen/internal/logits"
	"github.com/samcharles93/fixlen/internal/nn"
	"github.com/samcharles93/fixlen/internal/tensor"
)

// Context is the encoded view of one source sentence. It is immutable, so
// any number of sequences may be scored against it concurrently.
type Context struct {
	m       *Model
	mem     *nn.Memory
	fwStart nn.State
	bwStart nn.State
}

// SourceLen returns the number of attended source positions.
func (c *Context) SourceLen() int { return c.mem.Len() }

func (c *Context) checkSeq(seq []int) error {
	if len(seq) < 3 {
		return fmt.Errorf("%w: target has %d tokens", ErrSequenceTooShort, len(seq))
	}
	for i, id := range seq {
		if id < 0 || id >= c.m.Cfg.TrgVocab {
			return fmt.Errorf("%w: target token %d at %d (vocab %d)", ErrTokenOutOfRange, id, i, c.m.Cfg.TrgVocab)
		}
	}
	return nil
}

// conditional returns log p(. | left, right) where left is the forward
// decoder state after the token before the position and right is the
// backward decoder state after the token following it.
func (c *Context) conditional(left, right nn.State) []float64 {
	d := tensor.Concat(left.H, right.H)
	probs := c.m.att.Probs(c.mem, d)
	ctx := c.m.att.Context(c.mem, probs)
	j := c.m.affCDJ.Forward(tensor.Concat(ctx, d))
	tensor.TanhInPlace(j)
	return logits.LogSoftmax(c.m.affJY.Forward(j))
}

// Loss returns the summed negative log-likelihood of the interior tokens.
// <bos> and <eos> are never scored.
func (c *Context) Loss(seq []int) (float64, error) {
	if err := c.checkSeq(seq); err != nil {
		return 0, err
	}
	xs := c.embed(seq)
	fw := c.m.decFw.Run(c.fwStart, xs)
	bw := c.m.decBw.RunReverse(c.bwStart, xs)

	var loss float64
	for i := 1; i < len(seq)-1; i++ {
		lp := c.conditional(fw[i-1], bw[i+1])
		loss -= lp[seq[i]]
	}
	return loss, nil
}

// LogConditional returns the normalised log-distribution at pos given every
// other token of seq. seq[pos] is not read.
func (c *Context) LogConditional(seq []int, pos int) ([]float64, error) {
	if len(seq) < 3 {
		return nil, fmt.Errorf("%w: target has %d tokens", ErrSequenceTooShort, len(seq))
	}
	if pos < 1 || pos > len(seq)-2 {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrPositionOutOfRange, pos, len(seq)-2)
	}
	left := make([][]float32, pos)
	for i := range pos {
		if err := c.checkToken(seq, i); err != nil {
			return nil, err
		}
		left[i] = c.m.trgEmbed.Lookup(seq[i])
	}
	right := make([][]float32, len(seq)-pos-1)
	for i := range right {
		if err := c.checkToken(seq, pos+1+i); err != nil {
			return nil, err
		}
		right[i] = c.m.trgEmbed.Lookup(seq[pos+1+i])
	}

	fw := c.m.decFw.Run(c.fwStart, left)
	bw := c.m.decBw.RunReverse(c.bwStart, right)
	return c.conditional(fw[len(fw)-1], bw[0]), nil
}

// SampleAt draws a replacement for seq[pos] from its cloze conditional. The
// returned log-probabilities are those of the distribution actually sampled.
func (c *Context) SampleAt(seq []int, pos int, g *logits.Gumbel) (logits.Choice, error) {
	lp, err := c.LogConditional(seq, pos)
	if err != nil {
		return logits.Choice{}, err
	}
	if err := c.checkToken(seq, pos); err != nil {
		return logits.Choice{}, err
	}
	return g.Resample(lp, seq[pos]), nil
}

func (c *Context) checkToken(seq []int, i int) error {
	if id := seq[i]; id < 0 || id >= c.m.Cfg.TrgVocab {
		return fmt.Errorf("%w: target token %d at %d (vocab %d)", ErrTokenOutOfRange, id, i, c.m.Cfg.TrgVocab)
	}
	return nil
}

func (c *Context) embed(seq []int) [][]float32 {
	xs := make([][]float32, len(seq))
	for i, id := range seq {
		xs[i] = c.m.trgEmbed.Lookup(id)
	}
	return xs
}
