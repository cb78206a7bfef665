package nn

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestLSTMStepZeroWeights(t *testing.T) {
	t.Parallel()
	l := NewLSTM("rnn", 3, 2)
	s := l.Start([]float32{1, -1})
	next := l.Step(s, []float32{0.5, 0.5, 0.5})

	f := 1 / (1 + math.Exp(-1))
	for k, c0 := range []float64{1, -1} {
		wantC := f * c0
		wantH := 0.5 * math.Tanh(wantC)
		if math.Abs(float64(next.C[k])-wantC) > 1e-6 {
			t.Fatalf("c[%d]: got %f, want %f", k, next.C[k], wantC)
		}
		if math.Abs(float64(next.H[k])-wantH) > 1e-6 {
			t.Fatalf("h[%d]: got %f, want %f", k, next.H[k], wantH)
		}
	}
	if s.C[0] != 1 || s.C[1] != -1 {
		t.Fatal("Step mutated the input state")
	}
}

func TestLSTMRunReverseIndexing(t *testing.T) {
	t.Parallel()
	l := NewLSTM("rnn", 2, 3)
	l.Init(rand.New(rand.NewPCG(4, 4)))
	xs := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	bw := l.RunReverse(l.Start(nil), xs)

	// bw[1] only depends on xs[1:] so it must match a fresh run over that suffix.
	tail := l.RunReverse(l.Start(nil), xs[1:])
	for k := range bw[1].H {
		if bw[1].H[k] != tail[0].H[k] {
			t.Fatalf("reverse state mismatch at %d: %f vs %f", k, bw[1].H[k], tail[0].H[k])
		}
	}
}

func TestAttentionUniformWithZeroScorer(t *testing.T) {
	t.Parallel()
	a := NewAttention("att", 2, 2, 4)
	mem := a.Memorize([][]float32{{1, 0}, {0, 1}, {1, 1}, {3, 3}})
	probs := a.Probs(mem, []float32{0.2, 0.1})
	for k, p := range probs {
		if math.Abs(float64(p)-0.25) > 1e-6 {
			t.Fatalf("probs[%d] = %f, want 0.25", k, p)
		}
	}
	ctx := a.Context(mem, probs)
	if math.Abs(float64(ctx[0])-1.25) > 1e-6 || math.Abs(float64(ctx[1])-1.25) > 1e-6 {
		t.Fatalf("unexpected context %v", ctx)
	}
}

func TestAffineForward(t *testing.T) {
	t.Parallel()
	a := NewAffine("aff", 2, 1)
	a.W.Data[0], a.W.Data[1] = 2, 3
	a.B.Data[0] = 1
	y := a.Forward([]float32{1, 2})
	if y[0] != 9 {
		t.Fatalf("expected 9, got %f", y[0])
	}
}

func TestParamsAssignChecksShape(t *testing.T) {
	t.Parallel()
	p := Params{}
	NewAffine("aff", 3, 2).Collect(p)

	if err := p.Assign("aff.w", []int{3, 2}, make([]float32, 6)); err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if err := p.Assign("aff.missing", []int{1, 2}, make([]float32, 2)); err == nil {
		t.Fatal("expected unknown parameter error")
	}
	if err := p.Assign("aff.b", []int{1, 2}, []float32{5, 6}); err != nil {
		t.Fatalf("assign bias: %v", err)
	}
	if got := p["aff.b"].Data; got[0] != 5 || got[1] != 6 {
		t.Fatalf("bias not copied: %v", got)
	}
	if names := p.Names(); len(names) != 2 || names[0] != "aff.b" || names[1] != "aff.w" {
		t.Fatalf("unexpected names %v", names)
	}
}
