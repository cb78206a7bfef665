// Package encdec implements a left-to-right attention encoder/decoder. The
// sampler uses it only to propose and score replacement segments; it can
// also translate on its own.
package encdec

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/fixlen/internal/nn"
	"github.com/samcharles93/fixlen/internal/oracle"
	"github.com/samcharles93/fixlen/internal/tensor"
)

var (
	ErrTokenOutOfRange = errors.New("encdec: token out of range")
	ErrEmptySource     = errors.New("encdec: empty source")
)

// Config holds the hyper-parameters of an encoder/decoder.
type Config struct {
	SrcVocab int     `yaml:"src_vocab"`
	TrgVocab int     `yaml:"trg_vocab"`
	Embed    int     `yaml:"embed"`
	Hidden   int     `yaml:"hidden"`
	Dropout  float64 `yaml:"dropout"`
}

func (c Config) Validate() error {
	switch {
	case c.SrcVocab < 1, c.TrgVocab < 1:
		return fmt.Errorf("encdec: vocabulary sizes must be positive (src=%d trg=%d)", c.SrcVocab, c.TrgVocab)
	case c.Embed < 1, c.Hidden < 1:
		return fmt.Errorf("encdec: layer sizes must be positive (embed=%d hidden=%d)", c.Embed, c.Hidden)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("encdec: dropout %g not in [0, 1)", c.Dropout)
	}
	return nil
}

// Model holds read-only weights.
type Model struct {
	Name string
	Cfg  Config

	srcEmbed *nn.Embedding
	trgEmbed *nn.Embedding
	encFw    *nn.LSTM
	encBw    *nn.LSTM
	dec      *nn.LSTM
	att      *nn.Attention
	affFBD   *nn.Affine
	affCDJ   *nn.Affine
	affJY    *nn.Affine
}

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
		encFw:    nn.NewLSTM(p("rnn_fw"), ne, nh),
		encBw:    nn.NewLSTM(p("rnn_bw"), ne, nh),
		dec:      nn.NewLSTM(p("rnn_dec"), 2*ne, nh),
		att:      nn.NewAttention(p("att"), 2*nh, nh, nh),
		affFBD:   nn.NewAffine(p("aff_fbd"), 2*nh, nh),
		affCDJ:   nn.NewAffine(p("aff_cdj"), 3*nh, ne),
		affJY:    nn.NewAffine(p("aff_jy"), ne, cfg.TrgVocab),
	}, nil
}

func (m *Model) layers() []nn.Layer {
	return []nn.Layer{
		m.srcEmbed, m.trgEmbed,
		m.encFw, m.encBw, m.dec,
		m.att, m.affFBD, m.affCDJ, m.affJY,
	}
}

func (m *Model) Params() nn.Params {
	p := make(nn.Params)
	for _, l := range m.layers() {
		l.Collect(p)
	}
	return p
}

func (m *Model) Init(rng *rand.Rand) {
	for _, l := range m.layers() {
		l.Init(rng)
	}
}

// Encode runs the bidirectional encoder over every source position,
// including <bos> and <eos>.
func (m *Model) Encode(src []int) (oracle.ProposalContext, error) {
	return m.EncodeSentence(src)
}

// EncodeSentence is Encode with the concrete return type.
func (m *Model) EncodeSentence(src []int) (*Context, error) {
	if len(src) == 0 {
		return nil, ErrEmptySource
	}
	xs := make([][]float32, len(src))
	for i, id := range src {
		if id < 0 || id >= m.Cfg.SrcVocab {
			return nil, fmt.Errorf("%w: source token %d at %d (vocab %d)", ErrTokenOutOfRange, id, i, m.Cfg.SrcVocab)
		}
		xs[i] = m.srcEmbed.Lookup(id)
	}
	fw := m.encFw.Run(m.encFw.Start(nil), xs)
	bw := m.encBw.RunReverse(m.encBw.Start(nil), xs)

	enc := make([][]float32, len(src))
	for i := range src {
		enc[i] = tensor.Concat(fw[i].H, bw[i].H)
	}
	init := m.affFBD.Forward(tensor.Concat(fw[len(fw)-1].C, bw[0].C))
	return &Context{
		m:     m,
		mem:   m.att.Memorize(enc),
		start: m.dec.Start(init),
	}, nil
}
