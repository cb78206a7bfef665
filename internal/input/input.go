// Package input parses sampler requests of the form
//
//	w1 w2 ... wn <trg_len> <num_samples>
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var ErrFormat = errors.New("format: w1 w2 ... wn trg_len num_samples")

// Line is one parsed request.
type Line struct {
	Words      []string
	TrgLen     int
	NumSamples int
}

// ParseLine splits on whitespace and reads the two trailing integers.
func ParseLine(s string) (Line, error) {
	f := strings.Fields(s)
	if len(f) < 3 {
		return Line{}, fmt.Errorf("%w: got %d fields", ErrFormat, len(f))
	}
	trgLen, err := strconv.Atoi(f[len(f)-2])
	if err != nil {
		return Line{}, fmt.Errorf("%w: trg_len %q is not an integer", ErrFormat, f[len(f)-2])
	}
	if trgLen < 1 {
		return Line{}, fmt.Errorf("%w: trg_len must be at least 1, got %d", ErrFormat, trgLen)
	}
	num, err := strconv.Atoi(f[len(f)-1])
	if err != nil {
		return Line{}, fmt.Errorf("%w: num_samples %q is not an integer", ErrFormat, f[len(f)-1])
	}
	if num < 0 {
		return Line{}, fmt.Errorf("%w: num_samples must not be negative, got %d", ErrFormat, num)
	}
	return Line{Words: f[:len(f)-2], TrgLen: trgLen, NumSamples: num}, nil
}

// Scanner reads requests line by line. Any malformed line stops the scan.
type Scanner struct {
	sc   *bufio.Scanner
	line Line
	n    int
	err  error
}

func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Scanner{sc: sc}
}

// Scan advances to the next request. It returns false at EOF or on the
// first error; Err distinguishes the two.
func (s *Scanner) Scan() bool {
	if s.err != nil || !s.sc.Scan() {
		return false
	}
	s.n++
	l, err := ParseLine(s.sc.Text())
	if err != nil {
		s.err = fmt.Errorf("line %d: %w", s.n, err)
		return false
	}
	s.line = l
	return true
}

func (s *Scanner) Line() Line { return s.line }

func (s *Scanner) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.sc.Err()
}
