package toy

import (
	"errors"
	"math"
	"testing"
)

func TestBigramForwardMatchesNaive(t *testing.T) {
	t.Parallel()
	m := NewBigram(8, 6, 5)
	tok := 3
	got := m.Forward(tok)
	for j := range m.Vocab {
		var sum float32
		for i := range m.Hidden {
			sum += m.W.Row(j)[i] * m.Emb.Row(tok)[i]
		}
		ref := sum + m.Bias[j]
		if math.Abs(float64(got[j]-ref)) > 1e-4 {
			t.Fatalf("logit mismatch at %d: got %f, want %f", j, got[j], ref)
		}
	}
}

func TestBigramDecoderClone(t *testing.T) {
	t.Parallel()
	m := NewBigram(6, 4, 1)
	ctx, err := m.Encode([]int{1, 3, 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	d := ctx.Start()
	if _, err := d.Step(1); err != nil {
		t.Fatalf("Step: %v", err)
	}
	c := d.Clone()
	a, _ := d.Step(4)
	b, _ := c.Step(4)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("clone diverged at %d", i)
		}
	}
	if _, err := d.Step(6); err == nil {
		t.Fatal("expected range error")
	}
}

func TestUniformCloze(t *testing.T) {
	t.Parallel()
	m := Uniform(5)
	ctx, err := m.EncodeSentence([]int{1, 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	loss, err := ctx.Loss([]int{1, 3, 4, 2})
	if err != nil {
		t.Fatalf("Loss: %v", err)
	}
	if want := 2 * math.Log(5); math.Abs(loss-want) > 1e-9 {
		t.Fatalf("loss %g, want %g", loss, want)
	}
	if _, err := ctx.LogConditional([]int{1, 3, 2}, 2); !errors.Is(err, ErrPosition) {
		t.Fatalf("expected ErrPosition, got %v", err)
	}
}

func TestClozeUsesSource(t *testing.T) {
	t.Parallel()
	m := NewCloze(7, 3, 9)
	seq := []int{1, 4, 2}
	a, _ := m.EncodeSentence([]int{1, 5, 2})
	b, _ := m.EncodeSentence([]int{1, 6, 2})
	la, _ := a.LogConditional(seq, 1)
	lb, _ := b.LogConditional(seq, 1)
	if la[5] <= lb[5] {
		t.Fatalf("token in source should gain probability: %g vs %g", la[5], lb[5])
	}
}
