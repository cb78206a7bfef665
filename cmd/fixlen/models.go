package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fixlen/internal/api"
	"github.com/samcharles93/fixlen/internal/encdec"
	"github.com/samcharles93/fixlen/internal/fld"
	"github.com/samcharles93/fixlen/internal/logger"
	"github.com/samcharles93/fixlen/internal/mcmc"
	"github.com/samcharles93/fixlen/internal/model"
	"github.com/samcharles93/fixlen/internal/vocab"
)

type chainOptions struct {
	mixture     string
	seed        int64
	gumbelScale float64
	noAnneal    bool
}

func chainFlags(o *chainOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "mixture",
			Usage:       "kernel mixture: three-move, two-move or name=weight,... (default three-move with --encdec-dir, else two-move)",
			Destination: &o.mixture,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "random seed (0 = random)",
			Destination: &o.seed,
		},
		&cli.Float64Flag{
			Name:        "gumbel-scale",
			Usage:       "temperature of Gumbel-max draws",
			Value:       1,
			Destination: &o.gumbelScale,
		},
		&cli.BoolFlag{
			Name:        "no-anneal",
			Usage:       "keep the acceptance temperature at 1 instead of num_samples/n",
			Destination: &o.noAnneal,
		},
	}
}

// loaded is everything a sampling command needs, read once at startup.
type loaded struct {
	src      *vocab.Vocabulary
	trg      *vocab.Vocabulary
	scorer   *fld.Model
	proposal *encdec.Model
	sampler  *mcmc.Sampler
}

func loadVocabs() (*vocab.Vocabulary, *vocab.Vocabulary, error) {
	if err := requireFlag(srcVocabPath, "src-vocab"); err != nil {
		return nil, nil, err
	}
	if err := requireFlag(trgVocabPath, "trg-vocab"); err != nil {
		return nil, nil, err
	}
	src, err := vocab.Load(srcVocabPath)
	if err != nil {
		return nil, nil, fmt.Errorf("source vocabulary: %w", err)
	}
	trg, err := vocab.Load(trgVocabPath)
	if err != nil {
		return nil, nil, fmt.Errorf("target vocabulary: %w", err)
	}
	return src, trg, nil
}

func checkSizes(what string, srcWant, trgWant int, src, trg *vocab.Vocabulary) error {
	if srcWant != src.Size() || trgWant != trg.Size() {
		return fmt.Errorf("%s was trained for vocabularies %d/%d, loaded %d/%d",
			what, srcWant, trgWant, src.Size(), trg.Size())
	}
	return nil
}

func loadProposal(src, trg *vocab.Vocabulary) (*encdec.Model, error) {
	m, err := model.LoadProposal(encdecDir, encdecEpoch)
	if err != nil {
		return nil, err
	}
	if err := checkSizes("proposal model", m.Cfg.SrcVocab, m.Cfg.TrgVocab, src, trg); err != nil {
		return nil, err
	}
	return m, nil
}

func loadModels(ctx context.Context, o chainOptions) (*loaded, error) {
	log := logger.FromContext(ctx)
	src, trg, err := loadVocabs()
	if err != nil {
		return nil, err
	}
	if err := requireFlag(fldDir, "fld-dir"); err != nil {
		return nil, err
	}

	name := o.mixture
	if name == "" {
		name = mcmc.PresetTwoMove
		if encdecDir != "" {
			name = mcmc.PresetThreeMove
		}
	}
	mix, err := mcmc.ParseMixture(name)
	if err != nil {
		return nil, err
	}

	scorer, err := model.LoadScorer(fldDir, fldEpoch)
	if err != nil {
		return nil, err
	}
	if err := checkSizes("scorer", scorer.Cfg.SrcVocab, scorer.Cfg.TrgVocab, src, trg); err != nil {
		return nil, err
	}
	log.Info("loaded scorer", "dir", model.Dir(fldDir, fldEpoch), "embed", scorer.Cfg.Embed, "hidden", scorer.Cfg.Hidden)

	l := &loaded{src: src, trg: trg, scorer: scorer}
	if mix.NeedsProposal() {
		if encdecDir == "" {
			return nil, fmt.Errorf("mixture %s needs --encdec-dir", mix)
		}
		if l.proposal, err = loadProposal(src, trg); err != nil {
			return nil, err
		}
		log.Info("loaded proposal", "dir", model.Dir(encdecDir, encdecEpoch), "embed", l.proposal.Cfg.Embed, "hidden", l.proposal.Cfg.Hidden)
	}

	l.sampler = &mcmc.Sampler{
		Scorer:      scorer,
		Mixture:     mix,
		Anneal:      !o.noAnneal,
		GumbelScale: o.gumbelScale,
		VocabSize:   trg.Size(),
		BOS:         trg.BOS(),
		EOS:         trg.EOS(),
	}
	if l.proposal != nil {
		l.sampler.Proposal = l.proposal
	}
	log.Info("sampler ready", "mixture", mix.String(), "anneal", !o.noAnneal, "gumbel_scale", o.gumbelScale)
	return l, nil
}

func (l *loaded) models() []api.ModelInfo {
	out := []api.ModelInfo{{ID: l.scorer.Name, Object: "model", Role: "scorer", OwnedBy: "fixlen"}}
	if l.proposal != nil {
		out = append(out, api.ModelInfo{ID: l.proposal.Name, Object: "model", Role: "proposal", OwnedBy: "fixlen"})
	}
	return out
}
