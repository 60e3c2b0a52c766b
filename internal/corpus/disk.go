package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Disk is a read-only corpus assembled from every segment file in a
// directory plus the vocabulary saved alongside them. Segments are loaded in
// file-name order and their document id spaces concatenated, so global ids
// stay dense and stable for a given directory state. Postings are
// materialized at open: the trainer walks every posting K times per sweep,
// so repeated disk reads would dominate the run.
type Disk struct {
	vocab    *Vocabulary
	docIDs   []DocID
	sizes    []uint32
	postings [][]Posting
	extIDs   []string
	tokens   uint64
	segments int
}

// OpenDir loads the corpus stored in dir.
func OpenDir(dir string) (*Disk, error) {
	vf, err := os.Open(filepath.Join(dir, VocabFileName))
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary: %w", err)
	}
	vocab, err := LoadVocabulary(vf)
	vf.Close()
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary: %w", err)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*"+SegmentSuffix))
	if err != nil {
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no segment files in %s", dir)
	}
	sort.Strings(paths)

	d := &Disk{vocab: vocab}
	for _, path := range paths {
		seg, err := OpenSegment(path)
		if err != nil {
			return nil, err
		}
		if seg.NumTerms() > uint32(vocab.Len()) {
			seg.Close()
			return nil, fmt.Errorf("segment %s references %d terms, vocabulary has %d", path, seg.NumTerms(), vocab.Len())
		}
		for local := uint32(0); local < seg.NumDocs(); local++ {
			postings, err := seg.ReadPostings(local)
			if err != nil {
				seg.Close()
				return nil, fmt.Errorf("segment %s: %w", path, err)
			}
			size, err := seg.DocSize(local)
			if err != nil {
				seg.Close()
				return nil, fmt.Errorf("segment %s: %w", path, err)
			}
			externalID, err := seg.ExternalID(local)
			if err != nil {
				seg.Close()
				return nil, fmt.Errorf("segment %s: %w", path, err)
			}
			d.postings = append(d.postings, postings)
			d.sizes = append(d.sizes, size)
			d.extIDs = append(d.extIDs, externalID)
			d.tokens += uint64(size)
		}
		d.segments++
		seg.Close()
	}

	d.docIDs = make([]DocID, len(d.postings))
	for i := range d.docIDs {
		d.docIDs[i] = DocID(i)
	}
	return d, nil
}

// Docs returns 0..D-1 in ascending order. Callers must not modify the
// returned slice.
func (d *Disk) Docs() []DocID {
	return d.docIDs
}

// NumDocs returns the number of documents across all segments.
func (d *Disk) NumDocs() uint32 {
	return uint32(len(d.postings))
}

// NumTerms returns the vocabulary size.
func (d *Disk) NumTerms() uint32 {
	return uint32(d.vocab.Len())
}

// DocSize returns the token count of doc.
func (d *Disk) DocSize(doc DocID) (uint32, error) {
	if int(doc) >= len(d.sizes) {
		return 0, fmt.Errorf("document %d out of range [0, %d)", doc, len(d.sizes))
	}
	return d.sizes[doc], nil
}

// Postings returns doc's postings. The slice is owned by the corpus; callers
// must not modify it.
func (d *Disk) Postings(doc DocID) ([]Posting, error) {
	if int(doc) >= len(d.postings) {
		return nil, fmt.Errorf("document %d out of range [0, %d)", doc, len(d.postings))
	}
	return d.postings[doc], nil
}

// ExternalID returns the external id recorded for doc at ingest time.
func (d *Disk) ExternalID(doc DocID) (string, error) {
	if int(doc) >= len(d.extIDs) {
		return "", fmt.Errorf("document %d out of range [0, %d)", doc, len(d.extIDs))
	}
	return d.extIDs[doc], nil
}

// Vocab returns the shared vocabulary.
func (d *Disk) Vocab() *Vocabulary {
	return d.vocab
}

// TotalTokens returns the token count across the corpus.
func (d *Disk) TotalTokens() uint64 {
	return d.tokens
}

// Segments returns the number of segment files loaded.
func (d *Disk) Segments() int {
	return d.segments
}
