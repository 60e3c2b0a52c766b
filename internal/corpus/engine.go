package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SegmentInfo describes one flushed segment.
type SegmentInfo struct {
	Path   string
	Docs   uint32
	Terms  uint32
	Tokens uint64
}

// EngineStats is a point-in-time view of an Engine.
type EngineStats struct {
	BufferedDocs   int
	BufferedTokens uint64
	Segments       int
	TotalDocs      uint64
	TotalTokens    uint64
	VocabTerms     int
}

// Engine accumulates analyzed documents in memory and flushes them to
// immutable segment files once a document threshold is reached or the flush
// loop fires. The vocabulary is shared across every segment the engine ever
// writes and is persisted atomically next to them, so a corpus directory is
// always loadable by OpenDir.
type Engine struct {
	mu       sync.Mutex
	mem      *Memory
	vocab    *Vocabulary
	writer   *SegmentWriter
	dataDir  string
	maxDocs  int
	segments int
	onFlush  func(SegmentInfo)

	totalDocs   uint64
	totalTokens uint64

	logger *slog.Logger
}

// NewEngine creates an engine writing into dataDir, flushing whenever the
// in-memory buffer holds maxDocs documents. An existing vocabulary and any
// existing segments in dataDir are picked up, so a restarted daemon keeps
// extending the same corpus.
func NewEngine(dataDir string, maxDocs int) (*Engine, error) {
	if maxDocs <= 0 {
		return nil, fmt.Errorf("segment max docs must be positive, got %d", maxDocs)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating corpus data directory: %w", err)
	}
	vocab := NewVocabulary()
	vocabPath := filepath.Join(dataDir, VocabFileName)
	if f, err := os.Open(vocabPath); err == nil {
		loaded, lerr := LoadVocabulary(f)
		f.Close()
		if lerr != nil {
			return nil, fmt.Errorf("recovering vocabulary: %w", lerr)
		}
		vocab = loaded
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("opening vocabulary: %w", err)
	}

	e := &Engine{
		mem:     NewMemoryWithVocab(vocab),
		vocab:   vocab,
		writer:  NewSegmentWriter(dataDir),
		dataDir: dataDir,
		maxDocs: maxDocs,
		logger:  slog.Default().With("component", "corpus-engine"),
	}
	if err := e.recoverSegments(); err != nil {
		return nil, fmt.Errorf("recovering segments: %w", err)
	}
	return e, nil
}

// AddDocument buffers one analyzed document. When the buffer reaches the
// configured document threshold it is flushed before returning.
func (e *Engine) AddDocument(externalID string, terms []string) error {
	e.mu.Lock()
	if _, err := e.mem.AddDocument(externalID, terms); err != nil {
		e.mu.Unlock()
		return err
	}
	e.totalDocs++
	e.totalTokens += uint64(len(terms))
	needFlush := int(e.mem.NumDocs()) >= e.maxDocs
	e.mu.Unlock()

	e.logger.Debug("document buffered",
		"external_id", externalID,
		"token_count", len(terms),
	)
	if needFlush {
		if _, err := e.Flush(); err != nil {
			return fmt.Errorf("flushing corpus buffer: %w", err)
		}
	}
	return nil
}

// NeedsFlush reports whether the buffer has reached the flush threshold.
func (e *Engine) NeedsFlush() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.mem.NumDocs()) >= e.maxDocs
}

// SetOnFlush installs a hook invoked for every segment the engine writes,
// whether the flush was triggered by the document threshold, the flush loop,
// or an explicit Flush call. Install it before documents start flowing.
func (e *Engine) SetOnFlush(fn func(SegmentInfo)) {
	e.mu.Lock()
	e.onFlush = fn
	e.mu.Unlock()
}

// Flush writes the buffered documents as a new segment plus the current
// vocabulary, then resets the buffer. Flushing an empty buffer is a no-op
// returning (nil, nil).
func (e *Engine) Flush() (*SegmentInfo, error) {
	e.mu.Lock()
	info, hook, err := e.flushLocked()
	e.mu.Unlock()
	if err != nil || info == nil {
		return info, err
	}
	if hook != nil {
		hook(*info)
	}
	return info, nil
}

func (e *Engine) flushLocked() (*SegmentInfo, func(SegmentInfo), error) {
	if e.mem.NumDocs() == 0 {
		return nil, nil, nil
	}
	start := time.Now()
	path, err := e.writer.Write(e.mem)
	if err != nil {
		return nil, nil, fmt.Errorf("writing segment: %w", err)
	}
	if err := e.saveVocabLocked(); err != nil {
		return nil, nil, err
	}
	info := &SegmentInfo{
		Path:   path,
		Docs:   e.mem.NumDocs(),
		Terms:  uint32(e.vocab.Len()),
		Tokens: e.mem.TotalTokens(),
	}
	e.mem = NewMemoryWithVocab(e.vocab)
	e.segments++
	e.logger.Info("segment flushed",
		"segment", filepath.Base(path),
		"docs", info.Docs,
		"vocab_terms", info.Terms,
		"tokens", info.Tokens,
		"duration_ms", time.Since(start).Milliseconds(),
		"active_segments", e.segments,
	)
	return info, e.onFlush, nil
}

// StartFlushLoop flushes on the given interval until ctx is cancelled, then
// performs a final flush so buffered documents survive shutdown.
func (e *Engine) StartFlushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if _, err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if _, err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineStats{
		BufferedDocs:   int(e.mem.NumDocs()),
		BufferedTokens: e.mem.TotalTokens(),
		Segments:       e.segments,
		TotalDocs:      e.totalDocs,
		TotalTokens:    e.totalTokens,
		VocabTerms:     e.vocab.Len(),
	}
}

// DataDir returns the directory the engine writes into.
func (e *Engine) DataDir() string {
	return e.dataDir
}

func (e *Engine) saveVocabLocked() error {
	vocabPath := filepath.Join(e.dataDir, VocabFileName)
	tmpPath := vocabPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating vocabulary file: %w", err)
	}
	if err := e.vocab.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing vocabulary file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, vocabPath); err != nil {
		return fmt.Errorf("renaming vocabulary file: %w", err)
	}
	return nil
}

func (e *Engine) recoverSegments() error {
	entries, err := os.ReadDir(e.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), SegmentSuffix) {
			continue
		}
		seg, err := OpenSegment(filepath.Join(e.dataDir, entry.Name()))
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", entry.Name(),
				"error", err,
			)
			continue
		}
		e.segments++
		e.totalDocs += uint64(seg.NumDocs())
		e.totalTokens += seg.TotalTokens()
		e.logger.Info("recovered existing segment",
			"segment", entry.Name(),
			"docs", seg.NumDocs(),
		)
		seg.Close()
	}
	e.logger.Info("segment recovery complete", "segments", e.segments)
	return nil
}
