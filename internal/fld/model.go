// Package fld implements the fixed-length decoder: a bidirectional model
// that scores every interior target position from the tokens on both sides
// of it and the attended source sentence. Its conditional at a position is a
// cloze distribution and never looks at the token in that position.
package fld

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/fixlen/internal/nn"
	"github.com/samcharles93/fixlen/internal/oracle"
	"github.com/samcharles93/fixlen/internal/tensor"
)

var (
	ErrPositionOutOfRange = errors.New("fld: position out of range")
	ErrTokenOutOfRange    = errors.New("fld: token out of range")
	ErrSequenceTooShort   = errors.New("fld: sequence too short")
)

// Config holds the hyper-parameters of a fixed-length decoder.
type Config struct {
	SrcVocab int     `yaml:"src_vocab"`
	TrgVocab int     `yaml:"trg_vocab"`
	Embed    int     `yaml:"embed"`
	Hidden   int     `yaml:"hidden"`
	Dropout  float64 `yaml:"dropout"`
}

// Validate reports whether every size is usable.
func (c Config) Validate() error {
	switch {
	case c.SrcVocab < 1, c.TrgVocab < 1:
		return fmt.Errorf("fld: vocabulary sizes must be positive (src=%d trg=%d)", c.SrcVocab, c.TrgVocab)
	case c.Embed < 1, c.Hidden < 1:
		return fmt.Errorf("fld: layer sizes must be positive (embed=%d hidden=%d)", c.Embed, c.Hidden)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("fld: dropout %g not in [0, 1)", c.Dropout)
	}
	return nil
}

// Model holds the weights. It is read-only after loading and may be shared
// between goroutines; all per-sentence state lives in Context.
type Model struct {
	Name string
	Cfg  Config

	srcEmbed *nn.Embedding
	trgEmbed *nn.Embedding
	encFw    *nn.LSTM
	encBw    *nn.LSTM
	decFw    *nn.LSTM
	decBw    *nn.LSTM
	att      *nn.Attention
	affED    *nn.Affine
	affCDJ   *nn.Affine
	affJY    *nn.Affine
}

// New allocates a zero-valued model. Call Init or load parameters into
// Params before use.
func New(name string, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ne, nh := cfg.Embed, cfg.Hidden
	p := func(s string) string { return name + "." + s }
	return &Model{
		Name:     name,
		Cfg:      cfg,
		srcEmbed: nn.NewEmbedding(p("l_src_xe"), cfg.SrcVocab, ne),
		trgEmbed: nn.NewEmbedding(p("l_trg_xe"), cfg.TrgVocab, ne),
		encFw:    nn.NewLSTM(p("rnn_enc_fw"), ne, nh),
		encBw:    nn.NewLSTM(p("rnn_enc_bw"), ne, nh),
		decFw:    nn.NewLSTM(p("rnn_dec_fw"), ne, nh),
		decBw:    nn.NewLSTM(p("rnn_dec_bw"), ne, nh),
		att:      nn.NewAttention(p("att"), 2*nh, 2*nh, nh),
		affED:    nn.NewAffine(p("aff_ed"), 2*nh, 2*nh),
		affCDJ:   nn.NewAffine(p("aff_cdj"), 4*nh, ne),
		affJY:    nn.NewAffine(p("aff_jy"), ne, cfg.TrgVocab),
	}, nil
}

func (m *Model) layers() []nn.Layer {
	return []nn.Layer{
		m.srcEmbed, m.trgEmbed,
		m.encFw, m.encBw, m.decFw, m.decBw,
		m.att, m.affED, m.affCDJ, m.affJY,
	}
}

// Params returns every parameter keyed by its persisted name.
func (m *Model) Params() nn.Params {
	p := make(nn.Params)
	for _, l := range m.layers() {
		l.Collect(p)
	}
	return p
}

// Init draws fresh weights.
func (m *Model) Init(rng *rand.Rand) {
	for _, l := range m.layers() {
		l.Init(rng)
	}
}

// Encode runs the source encoders and prepares the decoder start states.
// src must include <bos> and <eos> around at least one word.
func (m *Model) Encode(src []int) (oracle.ScoreContext, error) {
	return m.EncodeSentence(src)
}

// EncodeSentence is Encode with the concrete return type.
func (m *Model) EncodeSentence(src []int) (*Context, error) {
	if len(src) < 3 {
		return nil, fmt.Errorf("%w: source has %d tokens, need <bos> w+ <eos>", ErrSequenceTooShort, len(src))
	}
	xs := make([][]float32, len(src))
	for i, id := range src {
		if id < 0 || id >= m.Cfg.SrcVocab {
			return nil, fmt.Errorf("%w: source token %d at %d (vocab %d)", ErrTokenOutOfRange, id, i, m.Cfg.SrcVocab)
		}
		xs[i] = m.srcEmbed.Lookup(id)
	}

	zero := m.encFw.Start(nil)
	fw := m.encFw.Run(zero, xs)
	bw := m.encBw.RunReverse(m.encBw.Start(nil), xs)

	// Decoder start cells come from the final encoder cells.
	nh := m.Cfg.Hidden
	init := m.affED.Forward(tensor.Concat(fw[len(fw)-1].C, bw[0].C))

	// <bos> and <eos> are not attended.
	enc := make([][]float32, 0, len(src)-2)
	for i := 1; i < len(src)-1; i++ {
		enc = append(enc, tensor.Concat(fw[i].H, bw[i].H))
	}

	return &Context{
		m:       m,
		mem:     m.att.Memorize(enc),
		fwStart: m.decFw.Start(init[:nh]),
		bwStart: m.decBw.Start(init[nh:]),
	}, nil
}
