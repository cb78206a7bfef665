// Package vocab maps token surfaces to ids. Ids 0, 1 and 2 are always
// <unk>, <bos> and <eos>.
package vocab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

const (
	Unk = "<unk>"
	BOS = "<bos>"
	EOS = "<eos>"

	UnkID = 0
	BOSID = 1
	EOSID = 2

	// NumReserved is the number of ids with a fixed meaning.
	NumReserved = 3
)

var (
	ErrOutOfRange     = errors.New("vocab: id out of range")
	ErrTooSmall       = errors.New("vocab: size must be at least 3")
	ErrReservedInText = errors.New("vocab: corpus contains a reserved token")
	ErrMalformed      = errors.New("vocab: malformed vocabulary file")
)

// TokenStats is one vocabulary entry as stored on disk.
type TokenStats struct {
	Surface   string `json:"surface"`
	Frequency uint64 `json:"frequency"`
}

type file struct {
	Tokens []TokenStats `json:"tokens"`
}

// Vocabulary is an immutable id<->surface table.
type Vocabulary struct {
	stoi map[string]int
	itos []string
	freq []uint64
}

// New builds a vocabulary from entries. The first three entries must be
// <unk>, <bos> and <eos> in that order.
func New(tokens []TokenStats) (*Vocabulary, error) {
	if len(tokens) < NumReserved {
		return nil, fmt.Errorf("%w: %d entries", ErrMalformed, len(tokens))
	}
	for i, want := range []string{Unk, BOS, EOS} {
		if tokens[i].Surface != want {
			return nil, fmt.Errorf("%w: entry %d is %q, want %q", ErrMalformed, i, tokens[i].Surface, want)
		}
	}
	v := &Vocabulary{
		stoi: make(map[string]int, len(tokens)),
		itos: make([]string, 0, len(tokens)),
		freq: make([]uint64, 0, len(tokens)),
	}
	for i, t := range tokens {
		if _, dup := v.stoi[t.Surface]; dup {
			return nil, fmt.Errorf("%w: duplicate surface %q", ErrMalformed, t.Surface)
		}
		v.stoi[t.Surface] = i
		v.itos = append(v.itos, t.Surface)
		v.freq = append(v.freq, t.Frequency)
	}
	return v, nil
}

// Load reads a vocabulary JSON file.
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return New(f.Tokens)
}

// Save writes the vocabulary as JSON.
func (v *Vocabulary) Save(path string) error {
	f := file{Tokens: make([]TokenStats, len(v.itos))}
	for i, s := range v.itos {
		f.Tokens[i] = TokenStats{Surface: s, Frequency: v.freq[i]}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vocabulary: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Size returns the number of entries.
func (v *Vocabulary) Size() int { return len(v.itos) }

// StoI returns the id for word, or UnkID when it is not known.
func (v *Vocabulary) StoI(word string) int {
	if id, ok := v.stoi[word]; ok {
		return id
	}
	return UnkID
}

// ID returns the id for word and whether it is known.
func (v *Vocabulary) ID(word string) (int, bool) {
	id, ok := v.stoi[word]
	return id, ok
}

// IToS returns the surface for id.
func (v *Vocabulary) IToS(id int) (string, error) {
	if id < 0 || id >= len(v.itos) {
		return "", fmt.Errorf("%w: %d", ErrOutOfRange, id)
	}
	return v.itos[id], nil
}

// Freq returns the corpus frequency recorded for id.
func (v *Vocabulary) Freq(id int) (uint64, error) {
	if id < 0 || id >= len(v.freq) {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, id)
	}
	return v.freq[id], nil
}

func (v *Vocabulary) BOS() int { return v.stoi[BOS] }
func (v *Vocabulary) EOS() int { return v.stoi[EOS] }

// LineToIDs splits line on whitespace and maps every word.
func (v *Vocabulary) LineToIDs(line string) []int {
	words := strings.Fields(line)
	ids := make([]int, len(words))
	for i, w := range words {
		ids[i] = v.StoI(w)
	}
	return ids
}

// Sentence maps words to ids and surrounds them with <bos> and <eos>.
func (v *Vocabulary) Sentence(words []string) []int {
	ids := make([]int, 0, len(words)+2)
	ids = append(ids, v.BOS())
	for _, w := range words {
		ids = append(ids, v.StoI(w))
	}
	return append(ids, v.EOS())
}

// IDsToLine joins the surfaces of ids with single spaces.
func (v *Vocabulary) IDsToLine(ids []int) (string, error) {
	words := make([]string, len(ids))
	for i, id := range ids {
		w, err := v.IToS(id)
		if err != nil {
			return "", err
		}
		words[i] = w
	}
	return strings.Join(words, " "), nil
}

// BuildStats summarises a corpus scan.
type BuildStats struct {
	Sentences   int
	Words       uint64
	ExplicitUnk uint64
	ActualUnk   uint64
}

// Build counts words in a whitespace-tokenised corpus and keeps the size-3
// most frequent ones after the reserved entries. Ties are broken by surface
// so the result is reproducible. Everything not kept is charged to <unk>.
func Build(r io.Reader, size int) (*Vocabulary, BuildStats, error) {
	var stats BuildStats
	if size < NumReserved {
		return nil, stats, ErrTooSmall
	}

	freq := make(map[string]uint64)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for sc.Scan() {
		for _, w := range strings.Fields(sc.Text()) {
			stats.Words++
			switch w {
			case BOS, EOS:
				return nil, stats, fmt.Errorf("%w: %q", ErrReservedInText, w)
			case Unk:
				stats.ExplicitUnk++
			default:
				freq[w]++
			}
		}
		stats.Sentences++
	}
	if err := sc.Err(); err != nil {
		return nil, stats, fmt.Errorf("read corpus: %w", err)
	}

	words := make([]TokenStats, 0, len(freq))
	for w, n := range freq {
		words = append(words, TokenStats{Surface: w, Frequency: n})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].Frequency != words[j].Frequency {
			return words[i].Frequency > words[j].Frequency
		}
		return words[i].Surface < words[j].Surface
	})
	if keep := size - NumReserved; len(words) > keep {
		words = words[:keep]
	}

	unk := stats.Words
	for _, w := range words {
		unk -= w.Frequency
	}
	stats.ActualUnk = unk

	tokens := make([]TokenStats, 0, NumReserved+len(words))
	tokens = append(tokens,
		TokenStats{Surface: Unk, Frequency: unk},
		TokenStats{Surface: BOS},
		TokenStats{Surface: EOS},
	)
	tokens = append(tokens, words...)
	v, err := New(tokens)
	return v, stats, err
}
