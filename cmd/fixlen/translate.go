package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fixlen/internal/encdec"
	"github.com/samcharles93/fixlen/internal/logits"
	"github.com/samcharles93/fixlen/internal/vocab"
)

func translateCmd() *cli.Command {
	var (
		limit int64
		temp  float64
		topK  int64
		topP  float64
		seed  int64
	)
	flags := append(vocabFlags(), proposalFlags()...)
	flags = append(flags,
		&cli.Int64Flag{
			Name:        "limit",
			Usage:       "maximum output length",
			Value:       64,
			Destination: &limit,
		},
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature (0 = greedy)",
			Destination: &temp,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "top-k sampling",
			Value:       40,
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "top-p sampling",
			Value:       0.95,
			Destination: &topP,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed",
			Destination: &seed,
		},
	)

	return &cli.Command{
		Name:  "translate",
		Usage: "Decode each stdin line left to right with the proposal model",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			if limit < 1 {
				return cli.Exit("--limit must be positive", 1)
			}
			src, trg, err := loadVocabs()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := requireFlag(encdecDir, "encdec-dir"); err != nil {
				return err
			}
			m, err := loadProposal(src, trg)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			s := logits.NewSampler(logits.SamplerConfig{
				Seed:        uint64(seed),
				Temperature: temp,
				TopK:        int(topK),
				TopP:        topP,
			})
			if err := runTranslate(os.Stdin, os.Stdout, m, src, trg, int(limit), s); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func runTranslate(in io.Reader, out io.Writer, m *encdec.Model, src, trg *vocab.Vocabulary, limit int, s *logits.Sampler) error {
	sc := bufio.NewScanner(in)
	w := bufio.NewWriter(out)
	defer w.Flush()

	for n := 1; sc.Scan(); n++ {
		c, err := m.EncodeSentence(src.Sentence(strings.Fields(sc.Text())))
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		ids, err := c.Translate(limit, s)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		line, err := trg.IDsToLine(ids)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return sc.Err()
}
