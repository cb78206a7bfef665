// Package model persists and loads the sampler's neural models. A saved
// model is a directory per tag holding a YAML hyper-parameter file and a
// safetensors parameter file:
//
//	<dir>/<tag>/model.<name>.yaml
//	<dir>/<tag>/model.<name>.safetensors
package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/fixlen/internal/encdec"
	"github.com/samcharles93/fixlen/internal/fld"
	"github.com/samcharles93/fixlen/internal/nn"
	"github.com/samcharles93/fixlen/internal/safetensors"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrKindMismatch  = errors.New("model kind mismatch")
	ErrShapeMismatch = errors.New("parameter shape mismatch")
)

// Kind identifies the architecture stored in a model directory.
type Kind string

const (
	KindFLD    Kind = "fld"
	KindEncDec Kind = "encdec"
)

// Default model names, used as the parameter-name prefix.
const (
	ScorerName   = "fld"
	ProposalName = "encdec"
)

// Header is the YAML hyper-parameter file.
type Header struct {
	Kind     Kind    `yaml:"kind"`
	Name     string  `yaml:"name"`
	SrcVocab int     `yaml:"src_vocab"`
	TrgVocab int     `yaml:"trg_vocab"`
	Embed    int     `yaml:"embed"`
	Hidden   int     `yaml:"hidden"`
	Dropout  float64 `yaml:"dropout"`
}

// Tag normalises an epoch: numeric epochs are zero-padded to four digits,
// anything else (for example "best") is used as is.
func Tag(epoch string) string {
	if n, err := strconv.ParseUint(epoch, 10, 32); err == nil {
		return fmt.Sprintf("%04d", n)
	}
	return epoch
}

// Dir returns the directory holding the model saved under epoch.
func Dir(root, epoch string) string {
	return filepath.Join(root, Tag(epoch))
}

func paths(root, epoch, name string) (cfgPath, paramPath string) {
	d := Dir(root, epoch)
	return filepath.Join(d, "model."+name+".yaml"), filepath.Join(d, "model."+name+".safetensors")
}

// LoadScorer loads the fixed-length decoder saved under root/epoch.
func LoadScorer(root, epoch string) (*fld.Model, error) {
	h, err := readHeader(root, epoch, ScorerName, KindFLD)
	if err != nil {
		return nil, err
	}
	m, err := fld.New(h.Name, fld.Config{
		SrcVocab: h.SrcVocab, TrgVocab: h.TrgVocab,
		Embed: h.Embed, Hidden: h.Hidden, Dropout: h.Dropout,
	})
	if err != nil {
		return nil, err
	}
	_, paramPath := paths(root, epoch, ScorerName)
	if err := loadParams(paramPath, m.Params()); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadProposal loads the attention encoder/decoder saved under root/epoch.
func LoadProposal(root, epoch string) (*encdec.Model, error) {
	h, err := readHeader(root, epoch, ProposalName, KindEncDec)
	if err != nil {
		return nil, err
	}
	m, err := encdec.New(h.Name, encdec.Config{
		SrcVocab: h.SrcVocab, TrgVocab: h.TrgVocab,
		Embed: h.Embed, Hidden: h.Hidden, Dropout: h.Dropout,
	})
	if err != nil {
		return nil, err
	}
	_, paramPath := paths(root, epoch, ProposalName)
	if err := loadParams(paramPath, m.Params()); err != nil {
		return nil, err
	}
	return m, nil
}

// SaveScorer writes m under root/epoch.
func SaveScorer(root, epoch string, m *fld.Model) error {
	c := m.Cfg
	return save(root, epoch, ScorerName, Header{
		Kind: KindFLD, Name: m.Name,
		SrcVocab: c.SrcVocab, TrgVocab: c.TrgVocab,
		Embed: c.Embed, Hidden: c.Hidden, Dropout: c.Dropout,
	}, m.Params())
}

// SaveProposal writes m under root/epoch.
func SaveProposal(root, epoch string, m *encdec.Model) error {
	c := m.Cfg
	return save(root, epoch, ProposalName, Header{
		Kind: KindEncDec, Name: m.Name,
		SrcVocab: c.SrcVocab, TrgVocab: c.TrgVocab,
		Embed: c.Embed, Hidden: c.Hidden, Dropout: c.Dropout,
	}, m.Params())
}

func readHeader(root, epoch, name string, want Kind) (Header, error) {
	cfgPath, _ := paths(root, epoch, name)
	data, err := os.ReadFile(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		return Header{}, fmt.Errorf("%w: %s", ErrModelNotFound, cfgPath)
	}
	if err != nil {
		return Header{}, fmt.Errorf("read model config: %w", err)
	}
	var h Header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return Header{}, fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	if h.Kind != want {
		return Header{}, fmt.Errorf("%w: %s holds %q, want %q", ErrKindMismatch, cfgPath, h.Kind, want)
	}
	if h.Name == "" {
		h.Name = name
	}
	return h, nil
}

func loadParams(path string, params nn.Params) error {
	f, err := safetensors.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("open parameters: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, name := range params.Names() {
		data, info, err := f.ReadTensorF32(name)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		if err := params.Assign(name, info.Shape, data); err != nil {
			return fmt.Errorf("%w: %v", ErrShapeMismatch, err)
		}
	}
	return nil
}

func save(root, epoch, name string, h Header, params nn.Params) error {
	dir := Dir(root, epoch)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	cfgPath, paramPath := paths(root, epoch, name)

	data, err := yaml.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode model config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		return fmt.Errorf("write model config: %w", err)
	}

	tensors := make(map[string]safetensors.Tensor, len(params))
	for name, m := range params {
		tensors[name] = safetensors.Tensor{Shape: m.Shape(), Data: m.Data}
	}
	if err := safetensors.WriteF32(paramPath, tensors, map[string]string{"kind": string(h.Kind), "name": h.Name}); err != nil {
		return fmt.Errorf("write parameters: %w", err)
	}
	return nil
}
