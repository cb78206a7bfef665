package mcmc

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/samcharles93/fixlen/internal/logits"
	"github.com/samcharles93/fixlen/internal/oracle"
)

// Kernel names as used in mixture specifications.
const (
	KernelWord     = "word"
	KernelSegment  = "segment"
	KernelReversal = "reversal"
)

// Env is everything a kernel may read for one sentence. Proposal is nil
// when no proposal model is loaded.
type Env struct {
	Scorer   oracle.ScoreContext
	Proposal oracle.ProposalContext
	Gumbel   *logits.Gumbel
	Rand     *rand.Rand
}

// Move is a candidate together with its proposal log-probabilities:
// LQX = log q(current | candidate), LQY = log q(candidate | current).
type Move struct {
	Candidate Sequence
	LQX       float64
	LQY       float64
}

// Kernel proposes a candidate from the current sequence. It must not modify
// cur and must only change interior positions.
type Kernel interface {
	Name() string
	Propose(env *Env, cur Sequence) (Move, error)
}

// WordResample redraws one uniformly chosen interior position from the
// scorer's cloze conditional.
type WordResample struct{}

func (WordResample) Name() string { return KernelWord }

func (WordResample) Propose(env *Env, cur Sequence) (Move, error) {
	pos := 1 + env.Rand.IntN(cur.TrgLen())
	ch, err := env.Scorer.SampleAt(cur, pos, env.Gumbel)
	if err != nil {
		return Move{}, fmt.Errorf("%w: word resample at %d: %w", ErrInvariant, pos, err)
	}
	cand := cur.Clone()
	cand[pos] = ch.New
	// The conditional ignores the token at pos, so the reverse move draws
	// the old token from the same distribution.
	return Move{Candidate: cand, LQX: ch.OldLogProb, LQY: ch.NewLogProb}, nil
}

// SegmentResample replaces tokens i1+1..i2 with a free-running draw from
// the proposal model, conditioned on the unchanged prefix.
type SegmentResample struct{}

func (SegmentResample) Name() string { return KernelSegment }

func (SegmentResample) Propose(env *Env, cur Sequence) (Move, error) {
	if env.Proposal == nil {
		return Move{}, fmt.Errorf("%w: segment resample without a proposal model", ErrInvariant)
	}
	n := cur.TrgLen()
	i1, i2 := segmentBounds(env.Rand, n)
	if i1 < 0 || i2 > n || i1 >= i2 {
		return Move{}, fmt.Errorf("%w: segment [%d, %d) for trg_len %d", ErrInvariant, i1, i2, n)
	}
	return resampleSegment(env, cur, i1, i2)
}

// segmentBounds picks i1 in [0, n) and a distinct i2 in [1, n], ordered.
// For n == 1 the only choice is (0, 1).
func segmentBounds(r *rand.Rand, n int) (int, int) {
	i1 := r.IntN(n)
	i2 := 1 + r.IntN(n)
	for i2 == i1 {
		i2 = 1 + r.IntN(n)
	}
	if i1 > i2 {
		i1, i2 = i2, i1
	}
	return i1, i2
}

func resampleSegment(env *Env, cur Sequence, i1, i2 int) (Move, error) {
	prefix := env.Proposal.Start()
	for i := range i1 {
		if _, err := prefix.Step(cur[i]); err != nil {
			return Move{}, fmt.Errorf("replay prefix: %w", err)
		}
	}
	scale := env.Gumbel.Scale()

	// Score the current span from a fresh copy of the prefix state.
	var lqx float64
	forced := prefix.Clone()
	for i := i1; i < i2; i++ {
		lp, err := forced.Step(cur[i])
		if err != nil {
			return Move{}, fmt.Errorf("score segment: %w", err)
		}
		lqx += logits.Temper(lp, scale)[cur[i+1]]
	}

	// Generate the replacement from a second copy of the same state.
	var lqy float64
	cand := cur.Clone()
	free := prefix.Clone()
	prev := cur[i1]
	for i := i1; i < i2; i++ {
		lp, err := free.Step(prev)
		if err != nil {
			return Move{}, fmt.Errorf("generate segment: %w", err)
		}
		tok, dist := env.Gumbel.Draw(lp)
		lqy += dist[tok]
		cand[i+1] = tok
		prev = tok
	}
	return Move{Candidate: cand, LQX: lqx, LQY: lqy}, nil
}

// SegmentReversal swaps two adjacent blocks inside a random span. It is
// deterministic given its boundaries and equally likely in both
// directions, so both proposal terms are zero.
type SegmentReversal struct{}

func (SegmentReversal) Name() string { return KernelReversal }

func (SegmentReversal) Propose(env *Env, cur Sequence) (Move, error) {
	n := cur.TrgLen()
	if n < 2 {
		return Move{Candidate: cur.Clone()}, nil
	}
	l, m, r := reversalBounds(env.Rand, n)
	cand := cur.Clone()
	if err := BlockSwap(cand, l, m, r); err != nil {
		return Move{}, err
	}
	return Move{Candidate: cand}, nil
}

// reversalBounds picks span in [2, n], l in [0, n-span] and a pivot m with
// both blocks non-empty.
func reversalBounds(r *rand.Rand, n int) (l, m, rr int) {
	span := 2 + r.IntN(n-1)
	l = r.IntN(n - span + 1)
	m = l + 1 + r.IntN(span-1)
	return l, m, l + span
}

// BlockSwap exchanges seq[l+1..m] and seq[m+1..r] in place by reversing
// each block and then the whole span. The inverse is BlockSwap with pivot
// l+r-m; with equal blocks (2m == l+r) it is its own inverse.
func BlockSwap(seq Sequence, l, m, r int) error {
	if l < 0 || l >= m || m >= r || r > seq.TrgLen() {
		return fmt.Errorf("%w: block swap (%d, %d, %d) for trg_len %d", ErrInvariant, l, m, r, seq.TrgLen())
	}
	slices.Reverse(seq[l+1 : m+1])
	slices.Reverse(seq[m+1 : r+1])
	slices.Reverse(seq[l+1 : r+1])
	return nil
}
