package corpus

import (
	"bufio"
	"fmt"
	"io"
)

// Vocabulary assigns dense term ids to tokens in first-seen order. The
// zero-based line number of a token in the saved form is its TermID, so a
// vocabulary survives a save/load round trip with ids intact.
//
// A Vocabulary is not safe for concurrent use.
type Vocabulary struct {
	tokens []string
	ids    map[string]TermID
}

// NewVocabulary returns an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{ids: make(map[string]TermID)}
}

// GetOrAdd returns the id of token, assigning the next free id if the token
// is new.
func (v *Vocabulary) GetOrAdd(token string) TermID {
	if id, ok := v.ids[token]; ok {
		return id
	}
	id := TermID(len(v.tokens))
	v.tokens = append(v.tokens, token)
	v.ids[token] = id
	return id
}

// ID returns the id of token and whether the token is known.
func (v *Vocabulary) ID(token string) (TermID, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Token returns the token with the given id. It panics if id is out of
// range; asking for an unknown id is a bug in the caller.
func (v *Vocabulary) Token(id TermID) string {
	if int(id) >= len(v.tokens) {
		panic(fmt.Sprintf("corpus: term id %d out of range [0, %d)", id, len(v.tokens)))
	}
	return v.tokens[id]
}

// Len returns the number of known tokens.
func (v *Vocabulary) Len() int {
	return len(v.tokens)
}

// Save writes the vocabulary as one token per line, in id order.
func (v *Vocabulary) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, token := range v.tokens {
		if _, err := bw.WriteString(token); err != nil {
			return fmt.Errorf("writing vocabulary: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing vocabulary: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing vocabulary: %w", err)
	}
	return nil
}

// LoadVocabulary reads a vocabulary saved by Save. Line i becomes the token
// with id i. Empty lines are rejected: every id must map to a real token.
func LoadVocabulary(r io.Reader) (*Vocabulary, error) {
	v := NewVocabulary()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		token := scanner.Text()
		if token == "" {
			return nil, fmt.Errorf("vocabulary line %d is empty", line)
		}
		if _, ok := v.ids[token]; ok {
			return nil, fmt.Errorf("vocabulary token %q repeated at line %d", token, line)
		}
		v.GetOrAdd(token)
		line++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	return v, nil
}
