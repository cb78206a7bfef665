// Package oracle defines what the sampler needs from a sequence model. The
// neural models in fld and encdec implement these, and so do the closed-form
// models in toy; the sampler never sees anything else.
package oracle

import "github.com/samcharles93/fixlen/internal/logits"

// Scorer is a fixed-length sequence model.
type Scorer interface {
	// Encode prepares a per-sentence context. Source ids include the
	// surrounding <bos> and <eos>.
	Encode(src []int) (ScoreContext, error)
}

// ScoreContext scores target sequences for one source sentence. Target
// sequences include <bos> at 0 and <eos> at len-1.
type ScoreContext interface {
	// Loss is the summed negative log-probability of the interior tokens.
	Loss(seq []int) (float64, error)
	// SampleAt redraws position pos from its cloze conditional. The
	// conditional never depends on seq[pos].
	SampleAt(seq []int, pos int, g *logits.Gumbel) (logits.Choice, error)
}

// Proposal is a left-to-right model used to propose new segments.
type Proposal interface {
	Encode(src []int) (ProposalContext, error)
}

// ProposalContext starts decoders for one source sentence.
type ProposalContext interface {
	Start() Decoder
}

// Decoder is a left-to-right decoding state.
type Decoder interface {
	// Step feeds tok and returns the log-distribution of the next token.
	Step(tok int) ([]float64, error)
	// Clone returns an independent copy of the current state.
	Clone() Decoder
}
