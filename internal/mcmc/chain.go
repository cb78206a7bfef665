package mcmc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/samcharles93/fixlen/internal/logger"
	"github.com/samcharles93/fixlen/internal/logits"
	"github.com/samcharles93/fixlen/internal/oracle"
)

// Record describes one step. Step 0 is the initial state and carries no
// proposal; for later steps Sequence and Score are the state after the
// accept/reject decision.
type Record struct {
	Step     int
	Kernel   string
	LPX      float64
	LPY      float64
	LQX      float64
	LQY      float64
	Temp     float64
	Alpha    float64
	Accepted bool
	Sequence Sequence
	Score    float64
}

// Observer receives every record of a chain in order. Records share no
// memory with the chain.
type Observer interface {
	Observe(Record) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Record) error

func (f ObserverFunc) Observe(r Record) error { return f(r) }

// Observers fans a record out to several observers, stopping at the first
// error.
type Observers []Observer

func (o Observers) Observe(r Record) error {
	for _, obs := range o {
		if obs == nil {
			continue
		}
		if err := obs.Observe(r); err != nil {
			return err
		}
	}
	return nil
}

// KernelStats counts the decisions taken for one kernel.
type KernelStats struct {
	Accepted int64
	Rejected int64
}

// Chain is one Metropolis-Hastings chain over fixed-length sequences.
type Chain struct {
	env        Env
	mixture    *Mixture
	anneal     bool
	numSamples int
	bos, eos   int

	current Sequence
	score   float64
	step    int

	Stats map[string]*KernelStats
}

// ChainConfig fixes the sampling schedule of a chain.
type ChainConfig struct {
	Mixture    *Mixture
	Anneal     bool
	TrgLen     int
	NumSamples int
	VocabSize  int
	BOS        int
	EOS        int
}

// NewChain draws the initial sequence and scores it.
func NewChain(env Env, cfg ChainConfig) (*Chain, error) {
	if cfg.Mixture == nil {
		return nil, fmt.Errorf("%w: no mixture", ErrMixture)
	}
	if cfg.Mixture.NeedsProposal() && env.Proposal == nil {
		return nil, fmt.Errorf("%w: %q needs a proposal model", ErrMixture, KernelSegment)
	}
	if cfg.NumSamples < 0 {
		return nil, fmt.Errorf("num_samples must not be negative, got %d", cfg.NumSamples)
	}
	init, err := RandomSequence(env.Rand, cfg.TrgLen, cfg.VocabSize, cfg.BOS, cfg.EOS)
	if err != nil {
		return nil, err
	}
	loss, err := env.Scorer.Loss(init)
	if err != nil {
		return nil, fmt.Errorf("score initial sequence: %w", err)
	}
	c := &Chain{
		env:        env,
		mixture:    cfg.Mixture,
		anneal:     cfg.Anneal,
		numSamples: cfg.NumSamples,
		bos:        cfg.BOS,
		eos:        cfg.EOS,
		current:    init,
		score:      -loss,
		Stats:      make(map[string]*KernelStats),
	}
	for _, p := range cfg.Mixture.parts {
		c.Stats[p.Kernel.Name()] = &KernelStats{}
	}
	return c, nil
}

// Current returns a copy of the current sequence and its score.
func (c *Chain) Current() (Sequence, float64) {
	return c.current.Clone(), c.score
}

// Done reports whether every step has been taken.
func (c *Chain) Done() bool { return c.step >= c.numSamples }

// Initial returns the step-0 record.
func (c *Chain) Initial() Record {
	return Record{Sequence: c.current.Clone(), Score: c.score}
}

// Step performs one proposal and accept/reject decision.
func (c *Chain) Step() (Record, error) {
	if c.Done() {
		return Record{}, fmt.Errorf("%w: step %d past num_samples %d", ErrInvariant, c.step+1, c.numSamples)
	}
	c.step++
	n := c.step

	k := c.mixture.Pick(c.env.Rand)
	mv, err := k.Propose(&c.env, c.current)
	if err != nil {
		return Record{}, err
	}
	if err := mv.Candidate.check(c.current.TrgLen(), c.bos, c.eos); err != nil {
		return Record{}, fmt.Errorf("kernel %s: %w", k.Name(), err)
	}

	loss, err := c.env.Scorer.Loss(mv.Candidate)
	if err != nil {
		return Record{}, fmt.Errorf("score candidate: %w", err)
	}
	lpx := c.score
	lpy := -loss

	tp := 1.0
	if c.anneal {
		tp = Temperature(n, c.numSamples)
	}
	alpha := Acceptance(lpx, lpy, mv.LQX, mv.LQY, tp)

	accepted := c.env.Rand.Float64() <= alpha
	st := c.Stats[k.Name()]
	if accepted {
		c.current = mv.Candidate
		c.score = lpy
		st.Accepted++
	} else {
		st.Rejected++
	}

	return Record{
		Step:     n,
		Kernel:   k.Name(),
		LPX:      lpx,
		LPY:      lpy,
		LQX:      mv.LQX,
		LQY:      mv.LQY,
		Temp:     tp,
		Alpha:    alpha,
		Accepted: accepted,
		Sequence: c.current.Clone(),
		Score:    c.score,
	}, nil
}

// Run emits the initial record and then steps until done. It stops early
// when ctx is cancelled.
func (c *Chain) Run(ctx context.Context, obs Observer) error {
	if obs == nil {
		obs = Observers(nil)
	}
	if c.step == 0 {
		if err := obs.Observe(c.Initial()); err != nil {
			return err
		}
	}
	for !c.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := c.Step()
		if err != nil {
			return err
		}
		if err := obs.Observe(rec); err != nil {
			return err
		}
	}
	return nil
}

// Totals sums the per-kernel statistics.
func (c *Chain) Totals() KernelStats {
	var t KernelStats
	for _, s := range c.Stats {
		t.Accepted += s.Accepted
		t.Rejected += s.Rejected
	}
	return t
}

// Sampler holds the loaded models and the sampling options shared by every
// sentence.
type Sampler struct {
	Scorer      oracle.Scorer
	Proposal    oracle.Proposal
	Mixture     *Mixture
	Anneal      bool
	GumbelScale float64
	VocabSize   int
	BOS         int
	EOS         int
}

// Request is one sentence to sample for. Src includes <bos> and <eos>.
type Request struct {
	Src        []int
	TrgLen     int
	NumSamples int
	Seed       uint64
}

// Result is the final state of a chain.
type Result struct {
	Sequence Sequence
	Score    float64
	Stats    map[string]KernelStats
	Accepted int64
	Rejected int64
}

// NewSource returns a PCG source for seed. Seed 0 picks a random seed.
func NewSource(seed uint64) *rand.PCG {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.NewPCG(seed, seed^0xDEADBEEF)
}

// Sample encodes the source with every model in use, runs one chain and
// reports each step to obs.
func (s *Sampler) Sample(ctx context.Context, req Request, obs Observer) (Result, error) {
	log := logger.FromContext(ctx)
	if s.Mixture == nil {
		return Result{}, fmt.Errorf("%w: no mixture", ErrMixture)
	}

	src := NewSource(req.Seed)
	env := Env{
		Rand:   rand.New(src),
		Gumbel: logits.NewGumbel(src, s.GumbelScale),
	}
	var err error
	if env.Scorer, err = s.Scorer.Encode(req.Src); err != nil {
		return Result{}, fmt.Errorf("encode source: %w", err)
	}
	if s.Mixture.NeedsProposal() {
		if s.Proposal == nil {
			return Result{}, fmt.Errorf("%w: %q needs a proposal model", ErrMixture, KernelSegment)
		}
		if env.Proposal, err = s.Proposal.Encode(req.Src); err != nil {
			return Result{}, fmt.Errorf("encode source for proposal: %w", err)
		}
	}

	c, err := NewChain(env, ChainConfig{
		Mixture:    s.Mixture,
		Anneal:     s.Anneal,
		TrgLen:     req.TrgLen,
		NumSamples: req.NumSamples,
		VocabSize:  s.VocabSize,
		BOS:        s.BOS,
		EOS:        s.EOS,
	})
	if err != nil {
		return Result{}, err
	}

	debug := ObserverFunc(func(r Record) error {
		if r.Step > 0 {
			log.Debug("mcmc step", "step", r.Step, "kernel", r.Kernel, "alpha", r.Alpha, "accepted", r.Accepted, "score", r.Score)
		}
		return nil
	})
	if err := c.Run(ctx, Observers{obs, debug}); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Error("chain failed", "step", c.step, "error", err)
		}
		return Result{}, err
	}

	seq, score := c.Current()
	tot := c.Totals()
	res := Result{
		Sequence: seq,
		Score:    score,
		Stats:    make(map[string]KernelStats, len(c.Stats)),
		Accepted: tot.Accepted,
		Rejected: tot.Rejected,
	}
	for name, st := range c.Stats {
		res.Stats[name] = *st
	}
	log.Info("chain finished",
		"trg_len", req.TrgLen,
		"num_samples", req.NumSamples,
		"accepted", res.Accepted,
		"rejected", res.Rejected,
		"score", res.Score,
	)
	return res, nil
}
