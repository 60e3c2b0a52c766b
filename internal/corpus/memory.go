package corpus

import (
	"fmt"
	"sort"
)

type memDoc struct {
	externalID string
	size       uint32
	postings   []Posting
}

// Memory is a forward index under construction. Documents are appended with
// AddDocument and assigned ids in arrival order; postings within a document
// are stored sorted by term id so iteration order is stable by construction.
//
// Memory is not synchronized; Engine serializes access for the ingest
// daemon, and the sampler runs single-threaded by design.
type Memory struct {
	vocab  *Vocabulary
	docs   []memDoc
	tokens uint64
}

// NewMemory returns an empty in-memory corpus with its own vocabulary.
func NewMemory() *Memory {
	return NewMemoryWithVocab(NewVocabulary())
}

// NewMemoryWithVocab returns an empty corpus that shares vocab. The ingest
// engine uses this to keep term ids consistent across flushed segments.
func NewMemoryWithVocab(vocab *Vocabulary) *Memory {
	return &Memory{vocab: vocab}
}

// AddDocument indexes one analyzed document and returns its id. The terms
// slice is the analyzer output: one entry per token occurrence, repeated
// terms allowed.
func (m *Memory) AddDocument(externalID string, terms []string) (DocID, error) {
	if len(terms) == 0 {
		return 0, fmt.Errorf("document %q has no terms", externalID)
	}
	freq := make(map[TermID]uint32, len(terms))
	for _, token := range terms {
		freq[m.vocab.GetOrAdd(token)]++
	}
	postings := make([]Posting, 0, len(freq))
	for term, count := range freq {
		postings = append(postings, Posting{Term: term, Count: count})
	}
	sort.Slice(postings, func(i, j int) bool { return postings[i].Term < postings[j].Term })

	id := DocID(len(m.docs))
	m.docs = append(m.docs, memDoc{
		externalID: externalID,
		size:       uint32(len(terms)),
		postings:   postings,
	})
	m.tokens += uint64(len(terms))
	return id, nil
}

// Docs returns 0..D-1 in ascending order.
func (m *Memory) Docs() []DocID {
	ids := make([]DocID, len(m.docs))
	for i := range ids {
		ids[i] = DocID(i)
	}
	return ids
}

// NumDocs returns the number of indexed documents.
func (m *Memory) NumDocs() uint32 {
	return uint32(len(m.docs))
}

// NumTerms returns the vocabulary size.
func (m *Memory) NumTerms() uint32 {
	return uint32(m.vocab.Len())
}

// DocSize returns the token count of d.
func (m *Memory) DocSize(d DocID) (uint32, error) {
	if int(d) >= len(m.docs) {
		return 0, fmt.Errorf("document %d out of range [0, %d)", d, len(m.docs))
	}
	return m.docs[d].size, nil
}

// Postings returns d's postings sorted by term id. The slice is owned by the
// index; callers must not modify it.
func (m *Memory) Postings(d DocID) ([]Posting, error) {
	if int(d) >= len(m.docs) {
		return nil, fmt.Errorf("document %d out of range [0, %d)", d, len(m.docs))
	}
	return m.docs[d].postings, nil
}

// ExternalID returns the caller-supplied id of d.
func (m *Memory) ExternalID(d DocID) (string, error) {
	if int(d) >= len(m.docs) {
		return "", fmt.Errorf("document %d out of range [0, %d)", d, len(m.docs))
	}
	return m.docs[d].externalID, nil
}

// Vocab returns the underlying vocabulary.
func (m *Memory) Vocab() *Vocabulary {
	return m.vocab
}

// TotalTokens returns the token count across all documents.
func (m *Memory) TotalTokens() uint64 {
	return m.tokens
}
