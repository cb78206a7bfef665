package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fixlen/internal/encdec"
	"github.com/samcharles93/fixlen/internal/fld"
	"github.com/samcharles93/fixlen/internal/logger"
	"github.com/samcharles93/fixlen/internal/mcmc"
	"github.com/samcharles93/fixlen/internal/model"
)

type initOptions struct {
	kind    string
	dir     string
	epoch   string
	embed   int64
	hidden  int64
	dropout float64
	seed    int64
}

func initModelCmd() *cli.Command {
	var o initOptions
	return &cli.Command{
		Name:  "init-model",
		Usage: "Write a randomly initialized scorer or proposal model",
		Flags: append(vocabFlags(),
			&cli.StringFlag{
				Name:        "kind",
				Usage:       "model kind (fld, encdec)",
				Value:       string(model.KindFLD),
				Destination: &o.kind,
			},
			&cli.StringFlag{
				Name:        "dir",
				Usage:       "model directory",
				Destination: &o.dir,
			},
			&cli.StringFlag{
				Name:        "epoch",
				Usage:       "epoch or tag to write",
				Value:       "0",
				Destination: &o.epoch,
			},
			&cli.Int64Flag{
				Name:        "embed",
				Usage:       "embedding size",
				Value:       256,
				Destination: &o.embed,
			},
			&cli.Int64Flag{
				Name:        "hidden",
				Usage:       "hidden size",
				Value:       512,
				Destination: &o.hidden,
			},
			&cli.Float64Flag{
				Name:        "dropout",
				Usage:       "dropout rate recorded with the model",
				Value:       0.3,
				Destination: &o.dropout,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "initialization seed (0 = random)",
				Destination: &o.seed,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireFlag(o.dir, "dir"); err != nil {
				return err
			}
			src, trg, err := loadVocabs()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := initModel(ctx, o, src.Size(), trg.Size()); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func initModel(ctx context.Context, o initOptions, srcSize, trgSize int) error {
	rng := rand.New(mcmc.NewSource(uint64(o.seed)))
	log := logger.FromContext(ctx)
	switch model.Kind(o.kind) {
	case model.KindFLD:
		m, err := fld.New(model.ScorerName, fld.Config{
			SrcVocab: srcSize, TrgVocab: trgSize,
			Embed: int(o.embed), Hidden: int(o.hidden), Dropout: o.dropout,
		})
		if err != nil {
			return err
		}
		m.Init(rng)
		if err := model.SaveScorer(o.dir, o.epoch, m); err != nil {
			return err
		}
	case model.KindEncDec:
		m, err := encdec.New(model.ProposalName, encdec.Config{
			SrcVocab: srcSize, TrgVocab: trgSize,
			Embed: int(o.embed), Hidden: int(o.hidden), Dropout: o.dropout,
		})
		if err != nil {
			return err
		}
		m.Init(rng)
		if err := model.SaveProposal(o.dir, o.epoch, m); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown model kind %q (want %s or %s)", o.kind, model.KindFLD, model.KindEncDec)
	}
	log.Info("wrote model", "kind", o.kind, "dir", model.Dir(o.dir, o.epoch))
	return nil
}
