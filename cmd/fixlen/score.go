package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fixlen/internal/fld"
	"github.com/samcharles93/fixlen/internal/model"
	"github.com/samcharles93/fixlen/internal/vocab"
)

func scoreCmd() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "Print the scorer loss of each source/target line pair read from stdin",
		Flags: append(vocabFlags(), scorerFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			src, trg, err := loadVocabs()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := requireFlag(fldDir, "fld-dir"); err != nil {
				return err
			}
			m, err := model.LoadScorer(fldDir, fldEpoch)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := checkSizes("scorer", m.Cfg.SrcVocab, m.Cfg.TrgVocab, src, trg); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := runScore(os.Stdin, os.Stdout, m, src, trg); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// runScore reads alternating source and target lines and writes one loss
// per pair. A trailing source line without a target is an error.
func runScore(in io.Reader, out io.Writer, m *fld.Model, src, trg *vocab.Vocabulary) error {
	sc := bufio.NewScanner(in)
	w := bufio.NewWriter(out)
	defer w.Flush()

	for pair := 1; sc.Scan(); pair++ {
		srcIDs := src.Sentence(strings.Fields(sc.Text()))
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return err
			}
			return fmt.Errorf("pair %d: missing target line", pair)
		}
		trgIDs := trg.Sentence(strings.Fields(sc.Text()))

		c, err := m.EncodeSentence(srcIDs)
		if err != nil {
			return fmt.Errorf("pair %d: %w", pair, err)
		}
		loss, err := c.Loss(trgIDs)
		if err != nil {
			return fmt.Errorf("pair %d: %w", pair, err)
		}
		if _, err := fmt.Fprintln(w, strconv.FormatFloat(loss, 'g', 6, 64)); err != nil {
			return err
		}
	}
	return sc.Err()
}
