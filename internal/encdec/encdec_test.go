package encdec

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/samcharles93/fixlen/internal/logits"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	m, err := New("encdec", Config{SrcVocab: 8, TrgVocab: 10, Embed: 4, Hidden: 6})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Init(rand.New(rand.NewPCG(3, 9)))
	return m
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)
	ctx, err := m.EncodeSentence([]int{1, 4, 5, 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	d := ctx.NewDecoder()
	if _, err := d.Step(1); err != nil {
		t.Fatalf("Step: %v", err)
	}
	a := d.Clone()
	b := d.Clone()
	if _, err := a.Step(7); err != nil {
		t.Fatalf("Step: %v", err)
	}
	la, err := a.Step(3)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	// b has not seen 7; advancing it differently must not affect a.
	if _, err := b.Step(4); err != nil {
		t.Fatalf("Step: %v", err)
	}
	c := d.Clone()
	if _, err := c.Step(7); err != nil {
		t.Fatalf("Step: %v", err)
	}
	lc, err := c.Step(3)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	for i := range la {
		if la[i] != lc[i] {
			t.Fatalf("clones from the same prefix disagree at %d: %g vs %g", i, la[i], lc[i])
		}
	}
}

func TestLossMatchesSteps(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)
	ctx, err := m.EncodeSentence([]int{1, 3, 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	trg := []int{1, 5, 6, 2}
	loss, err := ctx.Loss(trg)
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	d := ctx.Start()
	var want float64
	for i := 0; i < len(trg)-1; i++ {
		lp, err := d.Step(trg[i])
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		want -= lp[trg[i+1]]
	}
	if math.Abs(loss-want) > 1e-9 {
		t.Fatalf("loss %g, stepwise %g", loss, want)
	}
}

func TestTranslateRespectsLimit(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)
	ctx, err := m.EncodeSentence([]int{1, 3, 4, 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := ctx.Translate(5, logits.NewSampler(logits.SamplerConfig{}))
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) > 5 {
		t.Fatalf("expected at most 5 tokens, got %d", len(out))
	}
	again, _ := ctx.Translate(5, logits.NewSampler(logits.SamplerConfig{}))
	if len(again) != len(out) {
		t.Fatalf("greedy decoding is not deterministic: %v vs %v", out, again)
	}
	for i := range out {
		if out[i] == 2 || out[i] != again[i] {
			t.Fatalf("unexpected output %v vs %v", out, again)
		}
	}
}

func TestStepRejectsBadToken(t *testing.T) {
	t.Parallel()
	m := newTestModel(t)
	ctx, err := m.EncodeSentence([]int{1, 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := ctx.Start().Step(10); err == nil {
		t.Fatal("expected error for out-of-range token")
	}
	if _, err := m.Encode(nil); err == nil {
		t.Fatal("expected error for empty source")
	}
}
