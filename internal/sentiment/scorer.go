// Package sentiment scores headline text on a bounded bearish/bullish scale.
//
// The scorer is lexicon based and deterministic: identical input always
// yields the identical score. A Lexicon is built once at startup and is
// read-only afterwards, so a single LexiconScorer is safe for concurrent use.
package sentiment

import (
	"math"
	"strings"
	"unicode"
)

// Scorer turns text into a score in [-1.0, +1.0].
type Scorer interface {
	Score(text string) (float64, error)
}

// ScoreFunc adapts a plain function to the Scorer interface.
type ScoreFunc func(text string) (float64, error)

// Score calls f(text).
func (f ScoreFunc) Score(text string) (float64, error) { return f(text) }

const (
	// negationScalar flips and dampens a term preceded by a negator.
	negationScalar = -0.74
	// negationWindow is how many preceding tokens are checked for a negator.
	negationWindow = 3
	// normAlpha controls how quickly the summed valence saturates towards ±1.
	normAlpha = 1.0
)

// LexiconScorer scores text against a Lexicon.
type LexiconScorer struct {
	lex *Lexicon
}

// NewLexiconScorer returns a scorer backed by lex. A nil lex uses DefaultLexicon.
func NewLexiconScorer(lex *Lexicon) *LexiconScorer {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &LexiconScorer{lex: lex}
}

// Score returns the compound sentiment of text.
// Text with no lexicon matches, including empty text, scores 0.
func (s *LexiconScorer) Score(text string) (float64, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, nil
	}

	sum := 0.0
	consumed := make([]bool, len(tokens))

	// Multi-word phrases first so their words are not counted twice.
	for _, p := range s.lex.phrases {
		for i := 0; i+len(p.words) <= len(tokens); i++ {
			if !matchAt(tokens, i, p.words, consumed) {
				continue
			}
			sum += s.negate(tokens, i, p.weight)
			for j := range p.words {
				consumed[i+j] = true
			}
		}
	}

	for i, tok := range tokens {
		if consumed[i] {
			continue
		}
		w, ok := s.lex.lookup(tok)
		if !ok {
			continue
		}
		sum += s.negate(tokens, i, w)
	}

	return Clamp(normalize(sum)), nil
}

// negate applies negationScalar if a negator occurs within the window before i.
func (s *LexiconScorer) negate(tokens []string, i int, w float64) float64 {
	start := i - negationWindow
	if start < 0 {
		start = 0
	}
	for _, t := range tokens[start:i] {
		if s.lex.isNegator(t) {
			return w * negationScalar
		}
	}
	return w
}

func matchAt(tokens []string, i int, words []string, consumed []bool) bool {
	for j, w := range words {
		if consumed[i+j] || tokens[i+j] != w {
			return false
		}
	}
	return true
}

// normalize maps an unbounded valence sum into (-1, 1).
func normalize(sum float64) float64 {
	if sum == 0 {
		return 0
	}
	return sum / math.Sqrt(sum*sum+normAlpha)
}

// Clamp bounds a score to [-1, 1]. NaN maps to 0.
func Clamp(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return 0
	case score > 1:
		return 1
	case score < -1:
		return -1
	}
	return score
}

// Label returns a human-readable bucket for a score.
func Label(score float64) string {
	switch {
	case score > 0.3:
		return "Bullish"
	case score > 0.1:
		return "Slightly Bullish"
	case score < -0.3:
		return "Bearish"
	case score < -0.1:
		return "Slightly Bearish"
	}
	return "Neutral"
}

// tokenize lowercases text and splits it into word tokens.
// Apostrophes and inner hyphens are kept so "isn't" and "all-time" survive.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’' && r != '-'
	})

	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-'’")
		f = strings.ReplaceAll(f, "’", "'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
