// Package tokenest implements the pluggable TokenEstimator of §4.1: a
// deterministic, side-effect-free token count for a piece of text. Two
// production variants are provided — a cl100k-class BPE estimator and a
// word-count approximation — behind one interface so the assembler never
// depends on which is configured.
package tokenest

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens deterministically and without side effects.
type Estimator interface {
	Estimate(text string) int
}

// wordsPerTokenInverse is 1.3 tokens/word per §4.1.
const wordsPerTokenInverse = 1.3

// WordCount approximates token count at 1.3 tokens per whitespace-split
// word. It never errors and has no external dependency, making it the
// estimator of last resort when a BPE encoding cannot be loaded.
type WordCount struct{}

func (WordCount) Estimate(text string) int {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	return int(float64(len(words))*wordsPerTokenInverse + 0.5)
}

// BPE wraps a cl100k-class tiktoken encoding (the encoding used by
// OpenAI's gpt-3.5/gpt-4 family, the nearest real analogue to the spec's
// "cl100k-class tokenizer").
type BPE struct {
	enc *tiktoken.Tiktoken
}

var (
	cl100kOnce sync.Once
	cl100kEnc  *tiktoken.Tiktoken
	cl100kErr  error
)

// NewBPE loads the cl100k_base encoding once per process and reuses it.
func NewBPE() (*BPE, error) {
	cl100kOnce.Do(func() {
		cl100kEnc, cl100kErr = tiktoken.GetEncoding("cl100k_base")
	})
	if cl100kErr != nil {
		return nil, cl100kErr
	}
	return &BPE{enc: cl100kEnc}, nil
}

func (b *BPE) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.Encode(text, nil, nil))
}

// NewDefault returns the BPE estimator, falling back to WordCount if the
// encoding table cannot be loaded (e.g. offline test environments),
// mirroring the fallback-summarizer-construction pattern of §9: try the
// richer implementation first, degrade to the simple one at startup.
func NewDefault() Estimator {
	if bpe, err := NewBPE(); err == nil {
		return bpe
	}
	return WordCount{}
}
