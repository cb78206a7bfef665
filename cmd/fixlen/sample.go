package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fixlen/internal/input"
	"github.com/samcharles93/fixlen/internal/logger"
	"github.com/samcharles93/fixlen/internal/mcmc"
	"github.com/samcharles93/fixlen/internal/vocab"
)

func sampleCmd() *cli.Command {
	var opts chainOptions
	flags := append(vocabFlags(), scorerFlags()...)
	flags = append(flags, proposalFlags()...)
	flags = append(flags, chainFlags(&opts)...)

	return &cli.Command{
		Name:  "sample",
		Usage: "Sample a fixed-length translation for each stdin line \"w1 ... wn trg_len num_samples\"",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyChainConfig(cmd, fileConfig, &opts)
			l, err := loadModels(ctx, opts)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := runSample(ctx, os.Stdin, os.Stdout, l.sampler, l.src, l.trg, uint64(opts.seed)); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// runSample reads sentences from in until EOF and writes each chain to out.
// Per-sentence seeds come from one stream seeded with seed, so a run is
// reproducible as a whole.
func runSample(ctx context.Context, in io.Reader, out io.Writer, s *mcmc.Sampler, src, trg *vocab.Vocabulary, seed uint64) error {
	log := logger.FromContext(ctx)
	seeds := rand.New(mcmc.NewSource(seed))
	rep := mcmc.NewReporter(out, trg)
	sc := input.NewScanner(in)

	n := 0
	for sc.Scan() {
		n++
		line := sc.Line()
		ids := src.Sentence(line.Words)
		source, err := src.IDsToLine(ids)
		if err != nil {
			return err
		}
		if err := rep.Begin(source, line.TrgLen, line.NumSamples); err != nil {
			return err
		}

		sentenceSeed := seeds.Uint64()
		for sentenceSeed == 0 {
			sentenceSeed = seeds.Uint64()
		}
		sentLog := log.With("sentence", n)
		start := time.Now()
		_, err = s.Sample(logger.WithContext(ctx, sentLog), mcmc.Request{
			Src:        ids,
			TrgLen:     line.TrgLen,
			NumSamples: line.NumSamples,
			Seed:       sentenceSeed,
		}, rep)
		if err != nil {
			return fmt.Errorf("sentence %d: %w", n, err)
		}
		sentLog.Debug("sentence done", "elapsed", time.Since(start))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	log.Info("input exhausted", "sentences", n)
	return nil
}
