// Package analyzer normalises raw document text into the token stream the
// corpus builder counts. It lower-cases input, splits on non-alphanumeric
// boundaries, drops short tokens and stop-words, applies a configurable
// stemmer, and optionally emits underscore-joined n-grams instead of
// unigrams.
package analyzer

import (
	"fmt"
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"

	"github.com/topicmine/platform/pkg/config"
)

// StemmerMode selects the stemming stage of the pipeline.
type StemmerMode string

const (
	// StemSnowball applies the English snowball (Porter2) stemmer.
	StemSnowball StemmerMode = "snowball"
	// StemLight applies a cheap suffix-stripping stemmer.
	StemLight StemmerMode = "light"
	// StemNone disables stemming.
	StemNone StemmerMode = "none"
)

var defaultStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Config parameterizes an Analyzer. The zero value is usable: snowball
// stemming, stop-word removal, minimum token length 2, unigrams.
type Config struct {
	// MinTokenLength drops tokens shorter than this many bytes before any
	// other filtering. Zero means the default of 2.
	MinTokenLength int

	// DisableStopwords keeps stop-words in the stream.
	DisableStopwords bool

	// ExtraStopwords extends the built-in English stop-word list.
	ExtraStopwords []string

	// Stemmer selects the stemming stage. Empty means StemSnowball.
	Stemmer StemmerMode

	// NGrams emits underscore-joined n-grams of this size instead of
	// unigrams. Zero or one means unigrams.
	NGrams int
}

// Analyzer is an immutable text-normalisation pipeline. It is safe for
// concurrent use.
type Analyzer struct {
	minLen    int
	stopwords map[string]struct{}
	stemmer   StemmerMode
	ngrams    int
}

// FromConfig builds an Analyzer from the application configuration section.
func FromConfig(cfg config.AnalyzerConfig) (*Analyzer, error) {
	return New(Config{
		MinTokenLength:   cfg.MinTokenLength,
		DisableStopwords: cfg.DisableStopwords,
		ExtraStopwords:   cfg.ExtraStopwords,
		Stemmer:          StemmerMode(cfg.Stemmer),
		NGrams:           cfg.NGrams,
	})
}

// New validates cfg and builds an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	mode := cfg.Stemmer
	if mode == "" {
		mode = StemSnowball
	}
	switch mode {
	case StemSnowball, StemLight, StemNone:
	default:
		return nil, fmt.Errorf("unknown stemmer mode %q", cfg.Stemmer)
	}
	if cfg.NGrams < 0 {
		return nil, fmt.Errorf("ngram size must not be negative, got %d", cfg.NGrams)
	}
	minLen := cfg.MinTokenLength
	if minLen == 0 {
		minLen = 2
	}
	if minLen < 1 {
		return nil, fmt.Errorf("minimum token length must be positive, got %d", cfg.MinTokenLength)
	}

	stopwords := map[string]struct{}{}
	if !cfg.DisableStopwords {
		for w := range defaultStopwords {
			stopwords[w] = struct{}{}
		}
		for _, w := range cfg.ExtraStopwords {
			stopwords[strings.ToLower(w)] = struct{}{}
		}
	}

	ngrams := cfg.NGrams
	if ngrams < 1 {
		ngrams = 1
	}
	return &Analyzer{
		minLen:    minLen,
		stopwords: stopwords,
		stemmer:   mode,
		ngrams:    ngrams,
	}, nil
}

// Analyze normalises text into the final term stream. The result preserves
// occurrence order and may be empty.
func (a *Analyzer) Analyze(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) < a.minLen {
			continue
		}
		if _, isStop := a.stopwords[word]; isStop {
			continue
		}
		term := a.stemWord(word)
		if term == "" {
			continue
		}
		terms = append(terms, term)
	}
	if a.ngrams <= 1 {
		return terms
	}
	return joinNGrams(terms, a.ngrams)
}

func (a *Analyzer) stemWord(word string) string {
	switch a.stemmer {
	case StemSnowball:
		return snowballeng.Stem(word, false)
	case StemLight:
		return lightStem(word)
	default:
		return word
	}
}

// joinNGrams slides a window of size n over terms, joining each window with
// underscores. Fewer than n terms yield an empty stream.
func joinNGrams(terms []string, n int) []string {
	if len(terms) < n {
		return nil
	}
	out := make([]string, 0, len(terms)-n+1)
	for i := 0; i+n <= len(terms); i++ {
		out = append(out, strings.Join(terms[i:i+n], "_"))
	}
	return out
}

// lightStem strips common English suffixes with a fixed rule table. It is
// much cheaper than snowball and good enough when topic quality matters less
// than ingest throughput.
func lightStem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}
