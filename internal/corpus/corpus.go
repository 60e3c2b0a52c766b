// Package corpus builds and serves forward-indexed document collections:
// per-document (term, frequency) postings plus the vocabulary mapping tokens
// to dense term ids. It provides an in-memory index for corpus construction,
// immutable on-disk segment files, and a multi-segment reader that presents
// a directory of segments as one contiguous corpus.
package corpus

// TermID identifies a vocabulary term. Valid ids are dense in [0, NumTerms()).
type TermID uint32

// DocID identifies a document. Valid ids are dense in [0, NumDocs()).
type DocID uint32

// Posting is one (term, frequency) pair in a document's forward postings.
type Posting struct {
	Term  TermID `json:"t"`
	Count uint32 `json:"c"`
}

// ForwardIndex is the read-only view of a corpus consumed by the topic
// sampler and the export tooling.
//
// Implementations must keep iteration order stable: Docs must return the
// same ids in the same order on every call, and Postings(d) must return the
// same pairs in the same order on every call within a process. The sampler
// maps posting order back to per-token assignment slots, so order stability
// is part of the contract, not an optimization.
type ForwardIndex interface {
	// Docs returns every document id exactly once.
	Docs() []DocID

	// NumDocs returns the number of documents D.
	NumDocs() uint32

	// NumTerms returns the vocabulary size V.
	NumTerms() uint32

	// DocSize returns the total token count of d, i.e. the sum of its
	// posting frequencies.
	DocSize(d DocID) (uint32, error)

	// Postings returns d's (term, frequency) pairs. Each term appears at
	// most once and every frequency is at least one. Callers must not
	// modify the returned slice.
	Postings(d DocID) ([]Posting, error)
}
