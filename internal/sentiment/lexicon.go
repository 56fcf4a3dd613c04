package sentiment

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxWeight bounds a single lexicon entry.
const maxWeight = 4.0

// bullish / bearish keyword dictionaries (lowercase).
var bullishWords = map[string]float64{
	"bullish": 0.7, "rally": 0.6, "surge": 0.7, "soar": 0.7, "upbeat": 0.5,
	"positive": 0.4, "growth": 0.4, "upgrade": 0.6, "outperform": 0.6,
	"buy": 0.5, "strong": 0.4, "recovery": 0.5, "rebound": 0.5, "breakout": 0.6,
	"record high": 0.7, "all-time high": 0.7, "beat": 0.5, "gain": 0.4,
	"exceeds": 0.5, "beats estimates": 0.6, "expansion": 0.4, "jump": 0.5,
	"profit": 0.3, "dividend": 0.4, "accumulate": 0.5, "optimism": 0.5,
	"boom": 0.6, "rise": 0.3, "climb": 0.3, "approval": 0.4, "win": 0.4,
}

var bearishWords = map[string]float64{
	"bearish": 0.7, "crash": 0.8, "plunge": 0.7, "slump": 0.6, "tumble": 0.6,
	"negative": 0.4, "downgrade": 0.6, "underperform": 0.6, "sink": 0.5,
	"sell": 0.5, "weak": 0.4, "decline": 0.5, "loss": 0.4, "lose": 0.4,
	"selloff": 0.7, "sell-off": 0.7, "fall": 0.4, "drop": 0.4, "correction": 0.5,
	"default": 0.7, "fraud": 0.8, "scam": 0.8, "investigation": 0.5, "hack": 0.7,
	"cut": 0.3, "miss": 0.5, "warning": 0.5, "concern": 0.3, "fear": 0.5,
	"recession": 0.7, "bankruptcy": 0.8, "layoff": 0.5, "lawsuit": 0.5,
	"misses estimates": 0.6, "record low": 0.7,
}

var defaultNegators = []string{
	"not", "no", "never", "without", "isn't", "aren't", "wasn't", "weren't",
	"don't", "doesn't", "didn't", "won't", "can't", "cannot", "nor", "fails",
}

type phrase struct {
	key    string
	words  []string
	weight float64
}

// Lexicon maps terms to signed valence. Positive is bullish.
type Lexicon struct {
	terms    map[string]float64
	phrases  []phrase // sorted for deterministic summation
	negators map[string]bool
}

// DefaultLexicon returns the built-in financial headline lexicon.
func DefaultLexicon() *Lexicon {
	lex := &Lexicon{
		terms:    make(map[string]float64),
		negators: make(map[string]bool),
	}
	for w, v := range bullishWords {
		lex.add(w, v)
	}
	for w, v := range bearishWords {
		lex.add(w, -v)
	}
	for _, n := range defaultNegators {
		lex.negators[n] = true
	}
	lex.finish()
	return lex
}

// lexiconFile is the on-disk format accepted by LoadLexiconFile.
type lexiconFile struct {
	Bullish   map[string]float64 `yaml:"bullish"`
	Bearish   map[string]float64 `yaml:"bearish"`
	Negations []string           `yaml:"negations"`
}

// LoadLexiconFile reads a YAML lexicon and merges it over the defaults.
// Bullish and bearish weights are given as magnitudes; bearish entries are negated.
func LoadLexiconFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	return ParseLexicon(data)
}

// ParseLexicon is LoadLexiconFile over raw YAML bytes.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}

	lex := DefaultLexicon()
	for w, v := range f.Bullish {
		if err := checkWeight(w, v); err != nil {
			return nil, err
		}
		lex.add(w, v)
	}
	for w, v := range f.Bearish {
		if err := checkWeight(w, v); err != nil {
			return nil, err
		}
		lex.add(w, -v)
	}
	for _, n := range f.Negations {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			lex.negators[n] = true
		}
	}
	lex.finish()
	return lex, nil
}

func checkWeight(term string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > maxWeight {
		return fmt.Errorf("lexicon term %q: weight %v outside [0, %v]", term, v, maxWeight)
	}
	return nil
}

// Len returns the number of single terms and phrases.
func (l *Lexicon) Len() int { return len(l.terms) + len(l.phrases) }

func (l *Lexicon) add(term string, weight float64) {
	words := tokenize(term)
	switch len(words) {
	case 0:
		return
	case 1:
		l.terms[words[0]] = weight
	default:
		key := strings.Join(words, " ")
		for i := range l.phrases {
			if l.phrases[i].key == key {
				l.phrases[i].weight = weight
				return
			}
		}
		l.phrases = append(l.phrases, phrase{key: key, words: words, weight: weight})
	}
}

// finish orders phrases: longer first, then lexically.
func (l *Lexicon) finish() {
	sort.Slice(l.phrases, func(i, j int) bool {
		if len(l.phrases[i].words) != len(l.phrases[j].words) {
			return len(l.phrases[i].words) > len(l.phrases[j].words)
		}
		return l.phrases[i].key < l.phrases[j].key
	})
}

func (l *Lexicon) isNegator(tok string) bool {
	return l.negators[tok] || strings.HasSuffix(tok, "n't")
}

// lookup finds tok directly or through a light inflection strip
// ("rallies" → "rally", "plunged" → "plunge", "surging" → "surge").
func (l *Lexicon) lookup(tok string) (float64, bool) {
	if w, ok := l.terms[tok]; ok {
		return w, true
	}
	for _, cand := range stems(tok) {
		if w, ok := l.terms[cand]; ok {
			return w, true
		}
	}
	return 0, false
}

func stems(tok string) []string {
	var out []string
	switch {
	case strings.HasSuffix(tok, "ies"), strings.HasSuffix(tok, "ied"):
		out = append(out, tok[:len(tok)-3]+"y")
	case strings.HasSuffix(tok, "ing"):
		base := tok[:len(tok)-3]
		out = append(out, base, base+"e")
		if n := len(base); n > 1 && base[n-1] == base[n-2] {
			out = append(out, base[:n-1])
		}
	case strings.HasSuffix(tok, "ed"):
		base := tok[:len(tok)-2]
		out = append(out, base, tok[:len(tok)-1])
		if n := len(base); n > 1 && base[n-1] == base[n-2] {
			out = append(out, base[:n-1])
		}
	case strings.HasSuffix(tok, "es"):
		out = append(out, tok[:len(tok)-2], tok[:len(tok)-1])
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss"):
		out = append(out, tok[:len(tok)-1])
	}
	return out
}
