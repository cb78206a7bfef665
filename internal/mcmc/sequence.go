// Package mcmc samples fixed-length target sentences with a
// Metropolis-Hastings chain. A chain starts from a random sequence and
// repeatedly proposes a candidate with one of a fixed set of move kernels,
// scores it with a cloze scorer and accepts or rejects it.
package mcmc

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/fixlen/internal/vocab"
)

// ErrInvariant reports a broken chain invariant. It indicates a bug, never
// bad input, and aborts the run.
var ErrInvariant = errors.New("mcmc: invariant violated")

// Sequence is <bos>, trg_len interior tokens, <eos>. Only the interior is
// ever changed by a move.
type Sequence []int

// TrgLen returns the number of interior positions.
func (s Sequence) TrgLen() int { return len(s) - 2 }

// Interior returns a view of the mutable positions.
func (s Sequence) Interior() []int { return s[1 : len(s)-1] }

// Clone returns a copy of s.
func (s Sequence) Clone() Sequence {
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// Equal reports whether s and o hold the same tokens.
func (s Sequence) Equal(o Sequence) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// check verifies the boundary tokens and the length.
func (s Sequence) check(trgLen, bos, eos int) error {
	if len(s) != trgLen+2 {
		return fmt.Errorf("%w: sequence length %d, want %d", ErrInvariant, len(s), trgLen+2)
	}
	if s[0] != bos || s[len(s)-1] != eos {
		return fmt.Errorf("%w: boundaries are %d/%d, want %d/%d", ErrInvariant, s[0], s[len(s)-1], bos, eos)
	}
	return nil
}

// RandomSequence draws every interior token uniformly from the vocabulary,
// skipping <unk>, <bos> and <eos>.
func RandomSequence(r *rand.Rand, trgLen, vocabSize, bos, eos int) (Sequence, error) {
	if trgLen < 1 {
		return nil, fmt.Errorf("trg_len must be at least 1, got %d", trgLen)
	}
	reserved := map[int]struct{}{vocab.UnkID: {}, bos: {}, eos: {}}
	if vocabSize <= len(reserved) {
		return nil, fmt.Errorf("target vocabulary of %d has no ordinary tokens", vocabSize)
	}
	seq := make(Sequence, trgLen+2)
	seq[0], seq[trgLen+1] = bos, eos
	for i := 1; i <= trgLen; i++ {
		for {
			tok := r.IntN(vocabSize)
			if _, skip := reserved[tok]; !skip {
				seq[i] = tok
				break
			}
		}
	}
	return seq, nil
}
