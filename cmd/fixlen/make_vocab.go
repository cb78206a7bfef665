package main

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fixlen/internal/logger"
	"github.com/samcharles93/fixlen/internal/vocab"
)

func makeVocabCmd() *cli.Command {
	var (
		corpus string
		out    string
		size   int64
	)
	return &cli.Command{
		Name:  "make-vocab",
		Usage: "Build a vocabulary from a whitespace-tokenised corpus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "corpus",
				Usage:       "corpus file (default stdin)",
				Destination: &corpus,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "vocabulary file to write",
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "size",
				Usage:       "vocabulary size including <unk>, <bos> and <eos>",
				Value:       16000,
				Destination: &size,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := requireFlag(out, "out"); err != nil {
				return err
			}
			var r io.Reader = os.Stdin
			if corpus != "" {
				f, err := os.Open(corpus)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				defer func() { _ = f.Close() }()
				r = f
			}
			v, stats, err := vocab.Build(r, int(size))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := v.Save(out); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			logger.FromContext(ctx).Info("wrote vocabulary",
				"path", out,
				"size", v.Size(),
				"sentences", stats.Sentences,
				"words", stats.Words,
				"unk", stats.ActualUnk,
			)
			return nil
		},
	}
}
