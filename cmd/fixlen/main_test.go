package main

import (
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fixlen/internal/fld"
	"github.com/samcharles93/fixlen/internal/logger"
	"github.com/samcharles93/fixlen/internal/mcmc"
	"github.com/samcharles93/fixlen/internal/model"
	"github.com/samcharles93/fixlen/internal/toy"
	"github.com/samcharles93/fixlen/internal/vocab"
)

func testVocab(t *testing.T, words ...string) *vocab.Vocabulary {
	t.Helper()
	tokens := []vocab.TokenStats{{Surface: vocab.Unk}, {Surface: vocab.BOS}, {Surface: vocab.EOS}}
	for _, w := range words {
		tokens = append(tokens, vocab.TokenStats{Surface: w, Frequency: 1})
	}
	v, err := vocab.New(tokens)
	if err != nil {
		t.Fatalf("vocab.New: %v", err)
	}
	return v
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func TestRunSampleOutput(t *testing.T) {
	src := testVocab(t, "ich", "bin")
	trg := testVocab(t, "i", "am", "here", "there")
	mix, err := mcmc.Preset(mcmc.PresetThreeMove)
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	s := &mcmc.Sampler{
		Scorer:      toy.NewCloze(trg.Size(), 3, 1),
		Proposal:    toy.NewBigram(trg.Size(), 3, 2),
		Mixture:     mix,
		Anneal:      true,
		GumbelScale: 1,
		VocabSize:   trg.Size(),
		BOS:         trg.BOS(),
		EOS:         trg.EOS(),
	}

	in := "ich bin 3 4\nbin 1 0\n"
	var out bytes.Buffer
	if err := runSample(quietContext(), strings.NewReader(in), &out, s, src, trg, 11); err != nil {
		t.Fatalf("runSample: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"source: <bos> ich bin <eos>\ntrg_len: 3\nnum_samples: 4\ntarget-0: <bos> ",
		"target-4: <bos> ",
		"source: <bos> bin <eos>\ntrg_len: 1\nnum_samples: 0\ntarget-0: <bos> ",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in output:\n%s", want, text)
		}
	}
	if got := strings.Count(text, "alpha: "); got != 4 {
		t.Fatalf("expected 4 alpha lines, got %d", got)
	}

	var again bytes.Buffer
	if err := runSample(quietContext(), strings.NewReader(in), &again, s, src, trg, 11); err != nil {
		t.Fatalf("runSample: %v", err)
	}
	if again.String() != text {
		t.Fatal("same seed produced different output")
	}
}

func TestRunSampleRejectsMalformedLine(t *testing.T) {
	src := testVocab(t, "ich")
	trg := testVocab(t, "i")
	mix, _ := mcmc.Preset(mcmc.PresetTwoMove)
	s := &mcmc.Sampler{Scorer: toy.Uniform(trg.Size()), Mixture: mix, VocabSize: trg.Size(), BOS: trg.BOS(), EOS: trg.EOS()}
	err := runSample(quietContext(), strings.NewReader("ich 2\n"), &bytes.Buffer{}, s, src, trg, 1)
	if err == nil {
		t.Fatal("expected format error")
	}
}

func TestRunScore(t *testing.T) {
	src := testVocab(t, "ich", "bin")
	trg := testVocab(t, "i", "am")
	m, err := fld.New("fld", fld.Config{SrcVocab: src.Size(), TrgVocab: trg.Size(), Embed: 4, Hidden: 3})
	if err != nil {
		t.Fatalf("fld.New: %v", err)
	}
	m.Init(rand.New(rand.NewPCG(1, 2)))

	var out bytes.Buffer
	if err := runScore(strings.NewReader("ich bin\ni am\nbin\nam am\n"), &out, m, src, trg); err != nil {
		t.Fatalf("runScore: %v", err)
	}
	lines := strings.Fields(out.String())
	if len(lines) != 2 {
		t.Fatalf("expected 2 losses, got %q", out.String())
	}
	for _, l := range lines {
		v, err := strconv.ParseFloat(l, 64)
		if err != nil || v <= 0 {
			t.Fatalf("bad loss %q: %v", l, err)
		}
	}

	if err := runScore(strings.NewReader("ich bin\n"), &bytes.Buffer{}, m, src, trg); err == nil {
		t.Fatal("expected error for a missing target line")
	}
}

func TestInitModel(t *testing.T) {
	dir := t.TempDir()
	o := initOptions{kind: "fld", dir: dir, epoch: "3", embed: 4, hidden: 3, seed: 9}
	if err := initModel(quietContext(), o, 5, 6); err != nil {
		t.Fatalf("initModel: %v", err)
	}
	m, err := model.LoadScorer(dir, "3")
	if err != nil {
		t.Fatalf("LoadScorer: %v", err)
	}
	if m.Cfg.SrcVocab != 5 || m.Cfg.TrgVocab != 6 || m.Cfg.Hidden != 3 {
		t.Fatalf("unexpected config %+v", m.Cfg)
	}
	if _, err := os.Stat(filepath.Join(dir, "0003")); err != nil {
		t.Fatalf("expected zero-padded tag directory: %v", err)
	}

	o.kind = "lm"
	if err := initModel(quietContext(), o, 5, 6); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "src_vocab: /data/src.json\nmixture: two-move\nseed: 42\nanneal: false\nmax_samples: 50\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SrcVocab != "/data/src.json" || cfg.Mixture != "two-move" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Seed == nil || *cfg.Seed != 42 || cfg.Anneal == nil || *cfg.Anneal {
		t.Fatalf("pointer fields not decoded: %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit config")
	}

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if cfg, err := LoadConfig(""); err != nil || cfg.Mixture != "" {
		t.Fatalf("missing default config should be empty: %+v %v", cfg, err)
	}
}

func TestApplyChainConfigKeepsFlags(t *testing.T) {
	seed := int64(42)
	anneal := false
	cfg := Config{Mixture: "two-move", Seed: &seed, Anneal: &anneal, FLDDir: "/models/fld"}

	var opts chainOptions
	oldDir := fldDir
	t.Cleanup(func() { fldDir = oldDir })

	cmd := &cli.Command{
		Name:  "sample",
		Flags: append(scorerFlags(), chainFlags(&opts)...),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyChainConfig(c, cfg, &opts)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"sample", "--seed", "7"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if opts.seed != 7 {
		t.Fatalf("flag seed overridden by config: %d", opts.seed)
	}
	if opts.mixture != "two-move" || !opts.noAnneal || fldDir != "/models/fld" {
		t.Fatalf("config not applied: %+v dir=%q", opts, fldDir)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := newLogger("info", "json", false); err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if _, err := newLogger("chatty", "json", false); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := newLogger("info", "yaml", false); err == nil {
		t.Fatal("expected format error")
	}
}
