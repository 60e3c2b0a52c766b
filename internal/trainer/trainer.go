// Package trainer holds the training pipeline around the Gibbs sampler:
// corpus loading, run identifiers, run record assembly, and model export.
package trainer

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/topicmine/platform/internal/analyzer"
	"github.com/topicmine/platform/internal/corpus"
)

// Corpus is the trainer's view of a loaded corpus: the forward index the
// sampler consumes plus the lookups run records and exports need. Both
// corpus.Disk and corpus.Memory satisfy it.
type Corpus interface {
	corpus.ForwardIndex
	ExternalID(d corpus.DocID) (string, error)
	Vocab() *corpus.Vocabulary
	TotalTokens() uint64
}

// LoadTokenFile reads documents from a local file, one per line, either as
// "id<TAB>text" or as bare text with generated ids, and analyzes them into an
// in-memory corpus. Lines whose text analyzes to nothing are skipped.
func LoadTokenFile(path string, an *analyzer.Analyzer) (*corpus.Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	mem := corpus.NewMemory()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		id, text, found := strings.Cut(line, "\t")
		if !found || strings.TrimSpace(id) == "" {
			id = fmt.Sprintf("doc-%06d", lineNo)
			text = line
		}
		terms := an.Analyze(text)
		if len(terms) == 0 {
			skipped++
			continue
		}
		if _, err := mem.AddDocument(id, terms); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	if mem.NumDocs() == 0 {
		return nil, fmt.Errorf("no usable documents in %s", path)
	}
	if skipped > 0 {
		slog.Warn("skipped lines with no analyzable terms",
			"count", skipped,
			"file", filepath.Base(path),
		)
	}
	return mem, nil
}

// NewRunID returns a unique, time-sortable run identifier.
func NewRunID() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("run-%s-%s",
		time.Now().UTC().Format("20060102-150405"),
		hex.EncodeToString(b[:]),
	)
}

// ResolveSeed replaces a zero seed with one drawn from OS entropy so the
// recorded run stays reproducible. Nonzero seeds pass through unchanged.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	v := int64(b[0]) | int64(b[1])<<8 | int64(b[2])<<16 | int64(b[3])<<24 |
		int64(b[4])<<32 | int64(b[5])<<40 | int64(b[6])<<48 | int64(b[7])<<56
	if v == 0 {
		v = 1
	}
	return v
}
