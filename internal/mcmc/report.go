package mcmc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Detokenizer turns ids back into a space-separated line.
type Detokenizer interface {
	IDsToLine(ids []int) (string, error)
}

// Reporter writes the line-oriented sampler output:
//
//	source: <bos> w1 ... wn <eos>
//	trg_len: N
//	num_samples: S
//	target-0: <tokens>	score-0: F
//	lp(x): F
//	lp(y): F
//	lq(x|y): F
//	lq(y|x): F
//	alpha: F
//	target-1: <tokens>	score-1: F
//	...
//
// Scores are log-likelihoods (negated losses).
type Reporter struct {
	w     *bufio.Writer
	vocab Detokenizer
}

func NewReporter(w io.Writer, trg Detokenizer) *Reporter {
	return &Reporter{w: bufio.NewWriter(w), vocab: trg}
}

// Begin writes the per-sentence header.
func (r *Reporter) Begin(source string, trgLen, numSamples int) error {
	fmt.Fprintf(r.w, "source: %s\n", source)
	fmt.Fprintf(r.w, "trg_len: %d\n", trgLen)
	fmt.Fprintf(r.w, "num_samples: %d\n", numSamples)
	return r.w.Flush()
}

// Observe writes one step. Output is flushed after each target line so a
// consumer sees progress on long chains.
func (r *Reporter) Observe(rec Record) error {
	if rec.Step > 0 {
		fmt.Fprintf(r.w, "lp(x): %s\n", formatFloat(rec.LPX))
		fmt.Fprintf(r.w, "lp(y): %s\n", formatFloat(rec.LPY))
		fmt.Fprintf(r.w, "lq(x|y): %s\n", formatFloat(rec.LQX))
		fmt.Fprintf(r.w, "lq(y|x): %s\n", formatFloat(rec.LQY))
		fmt.Fprintf(r.w, "alpha: %s\n", formatFloat(rec.Alpha))
	}
	line, err := r.vocab.IDsToLine(rec.Sequence)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.w, "target-%d: %s\tscore-%d: %s\n", rec.Step, line, rec.Step, formatFloat(rec.Score))
	return r.w.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
