package mcmc

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/samcharles93/fixlen/internal/logits"
	"github.com/samcharles93/fixlen/internal/oracle"
	"github.com/samcharles93/fixlen/internal/toy"
)

func newEnv(t *testing.T, seed uint64, scorer *toy.Cloze, proposal oracle.Proposal, src []int) Env {
	t.Helper()
	pcg := rand.NewPCG(seed, seed)
	env := Env{Rand: rand.New(pcg), Gumbel: logits.NewGumbel(pcg, 1)}
	if scorer != nil {
		ctx, err := scorer.Encode(src)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		env.Scorer = ctx
	}
	if proposal != nil {
		ctx, err := proposal.Encode(src)
		if err != nil {
			t.Fatalf("Encode proposal: %v", err)
		}
		env.Proposal = ctx
	}
	return env
}

func diffCount(a, b Sequence) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

func TestBlockSwapInverse(t *testing.T) {
	t.Parallel()
	orig := Sequence{1, 10, 11, 12, 13, 14, 15, 16, 2}
	n := orig.TrgLen()
	for l := 0; l < n; l++ {
		for r := l + 2; r <= n; r++ {
			for m := l + 1; m < r; m++ {
				seq := orig.Clone()
				if err := BlockSwap(seq, l, m, r); err != nil {
					t.Fatalf("BlockSwap(%d,%d,%d): %v", l, m, r, err)
				}
				// The two blocks trade places, each keeping its order.
				want := append(Sequence{}, orig[:l+1]...)
				want = append(want, orig[m+1:r+1]...)
				want = append(want, orig[l+1:m+1]...)
				want = append(want, orig[r+1:]...)
				if !seq.Equal(want) {
					t.Fatalf("BlockSwap(%d,%d,%d) = %v, want %v", l, m, r, seq, want)
				}
				if err := BlockSwap(seq, l, l+r-m, r); err != nil {
					t.Fatalf("inverse BlockSwap: %v", err)
				}
				if !seq.Equal(orig) {
					t.Fatalf("(%d,%d,%d) then pivot %d gave %v", l, m, r, l+r-m, seq)
				}
			}
		}
	}
}

func TestBlockSwapEqualBlocksIsSelfInverse(t *testing.T) {
	t.Parallel()
	orig := Sequence{1, 10, 11, 12, 13, 14, 15, 2}
	n := orig.TrgLen()
	for l := 0; l < n; l++ {
		for half := 1; l+2*half <= n; half++ {
			m, r := l+half, l+2*half
			seq := orig.Clone()
			_ = BlockSwap(seq, l, m, r)
			_ = BlockSwap(seq, l, m, r)
			if !seq.Equal(orig) {
				t.Fatalf("(%d,%d,%d) applied twice gave %v", l, m, r, seq)
			}
		}
	}
}

func TestBlockSwapRejectsBadBounds(t *testing.T) {
	t.Parallel()
	seq := Sequence{1, 5, 6, 7, 2}
	for _, b := range [][3]int{{-1, 0, 2}, {0, 0, 2}, {0, 2, 2}, {0, 1, 4}, {1, 1, 3}} {
		if err := BlockSwap(seq, b[0], b[1], b[2]); !errors.Is(err, ErrInvariant) {
			t.Fatalf("BlockSwap%v: expected ErrInvariant, got %v", b, err)
		}
	}
}

func TestReversalBounds(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(42, 42))
	for n := 2; n <= 9; n++ {
		for range 2000 {
			l, m, rr := reversalBounds(r, n)
			if l < 0 || l >= m || m >= rr || rr > n || rr-l < 2 {
				t.Fatalf("n=%d: bad bounds (%d,%d,%d)", n, l, m, rr)
			}
		}
	}
}

func TestReversalSingleTokenIsNoOp(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 1, nil, nil, nil)
	cur := Sequence{1, 7, 2}
	mv, err := SegmentReversal{}.Propose(&env, cur)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if !mv.Candidate.Equal(cur) || mv.LQX != 0 || mv.LQY != 0 {
		t.Fatalf("expected unchanged candidate with zero proposal terms, got %+v", mv)
	}
}

func TestReversalKeepsMultiset(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 3, nil, nil, nil)
	cur := Sequence{1, 3, 4, 5, 6, 7, 2}
	for range 200 {
		mv, err := SegmentReversal{}.Propose(&env, cur)
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}
		seen := make(map[int]int)
		for _, tok := range mv.Candidate {
			seen[tok]++
		}
		for _, tok := range cur {
			seen[tok]--
		}
		for tok, n := range seen {
			if n != 0 {
				t.Fatalf("token %d count changed by %d in %v", tok, n, mv.Candidate)
			}
		}
		if mv.Candidate[0] != 1 || mv.Candidate[6] != 2 {
			t.Fatalf("boundaries moved: %v", mv.Candidate)
		}
	}
	if cur[1] != 3 || cur[5] != 7 {
		t.Fatalf("current sequence was modified: %v", cur)
	}
}

func TestWordResampleChangesOnePosition(t *testing.T) {
	t.Parallel()
	scorer := toy.NewCloze(12, 4, 8)
	src := []int{1, 5, 6, 2}
	env := newEnv(t, 5, scorer, nil, src)
	cur := Sequence{1, 3, 4, 5, 6, 7, 2}
	ctx, _ := scorer.EncodeSentence(src)
	for range 300 {
		mv, err := WordResample{}.Propose(&env, cur)
		if err != nil {
			t.Fatalf("Propose: %v", err)
		}
		d := diffCount(cur, mv.Candidate)
		if d > 1 {
			t.Fatalf("%d positions changed: %v -> %v", d, cur, mv.Candidate)
		}
		if d == 0 {
			continue
		}
		pos := 0
		for i := range cur {
			if cur[i] != mv.Candidate[i] {
				pos = i
			}
		}
		lp, err := ctx.LogConditional(cur, pos)
		if err != nil {
			t.Fatalf("LogConditional: %v", err)
		}
		if math.Abs(mv.LQX-lp[cur[pos]]) > 1e-12 || math.Abs(mv.LQY-lp[mv.Candidate[pos]]) > 1e-12 {
			t.Fatalf("proposal terms %g/%g, conditional %g/%g", mv.LQX, mv.LQY, lp[cur[pos]], lp[mv.Candidate[pos]])
		}
	}
	if !cur.Equal(Sequence{1, 3, 4, 5, 6, 7, 2}) {
		t.Fatalf("current sequence was modified: %v", cur)
	}
}

func TestSegmentBounds(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(9, 9))
	for n := 1; n <= 7; n++ {
		for range 1000 {
			i1, i2 := segmentBounds(r, n)
			if i1 < 0 || i1 >= i2 || i2 > n {
				t.Fatalf("n=%d: bad segment (%d, %d)", n, i1, i2)
			}
		}
	}
}

func TestSegmentResampleScoresBothPasses(t *testing.T) {
	t.Parallel()
	bigram := toy.NewBigram(9, 3, 4)
	env := newEnv(t, 11, nil, bigram, []int{1, 4, 2})
	cur := Sequence{1, 3, 4, 5, 6, 7, 2}
	for i1 := 0; i1 < cur.TrgLen(); i1++ {
		for i2 := i1 + 1; i2 <= cur.TrgLen(); i2++ {
			mv, err := resampleSegment(&env, cur, i1, i2)
			if err != nil {
				t.Fatalf("resampleSegment(%d,%d): %v", i1, i2, err)
			}
			var lqx, lqy float64
			for i := range len(cur) {
				if (i <= i1 || i > i2) && mv.Candidate[i] != cur[i] {
					t.Fatalf("(%d,%d) changed position %d", i1, i2, i)
				}
			}
			for i := i1; i < i2; i++ {
				lqx += bigram.LogProbs(cur[i])[cur[i+1]]
				lqy += bigram.LogProbs(mv.Candidate[i])[mv.Candidate[i+1]]
			}
			if math.Abs(lqx-mv.LQX) > 1e-9 || math.Abs(lqy-mv.LQY) > 1e-9 {
				t.Fatalf("(%d,%d): got %g/%g, want %g/%g", i1, i2, mv.LQX, mv.LQY, lqx, lqy)
			}
		}
	}
}

// historyProposal records every token fed to each decoder so a test can
// check which prefix each pass started from.
type historyProposal struct {
	vocab int
	done  *[][]int
}

func (p historyProposal) Encode([]int) (oracle.ProposalContext, error) { return p, nil }
func (p historyProposal) Start() oracle.Decoder                         { return &historyDecoder{p: p} }

type historyDecoder struct {
	p    historyProposal
	seen []int
}

func (d *historyDecoder) Step(tok int) ([]float64, error) {
	d.seen = append(d.seen, tok)
	*d.p.done = append(*d.p.done, append([]int(nil), d.seen...))
	lp := make([]float64, d.p.vocab)
	for i := range lp {
		lp[i] = -math.Log(float64(d.p.vocab))
	}
	return lp, nil
}

func (d *historyDecoder) Clone() oracle.Decoder {
	return &historyDecoder{p: d.p, seen: append([]int(nil), d.seen...)}
}

func TestSegmentResampleRestartsFromPrefix(t *testing.T) {
	t.Parallel()
	var log [][]int
	env := newEnv(t, 2, nil, historyProposal{vocab: 20, done: &log}, nil)
	cur := Sequence{1, 10, 11, 12, 13, 14, 2}
	i1, i2 := 2, 4
	mv, err := resampleSegment(&env, cur, i1, i2)
	if err != nil {
		t.Fatalf("resampleSegment: %v", err)
	}
	// Prefix replay feeds cur[0:2], then each pass feeds two more tokens.
	if len(log) != i1+2*(i2-i1) {
		t.Fatalf("expected %d steps, got %d", i1+2*(i2-i1), len(log))
	}
	forced := log[i1+(i2-i1)-1]
	free := log[len(log)-1]
	wantForced := []int{1, 10, 11, 12}
	wantFree := []int{1, 10, 11, mv.Candidate[3]}
	for i := range wantForced {
		if forced[i] != wantForced[i] {
			t.Fatalf("teacher-forced pass fed %v, want %v", forced, wantForced)
		}
		if free[i] != wantFree[i] {
			t.Fatalf("free-running pass fed %v, want %v", free, wantFree)
		}
	}
}

func TestSegmentResampleNeedsProposal(t *testing.T) {
	t.Parallel()
	env := newEnv(t, 1, nil, nil, nil)
	if _, err := (SegmentResample{}).Propose(&env, Sequence{1, 3, 4, 2}); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}
