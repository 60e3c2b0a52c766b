package corpus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

// Segment file layout, little-endian throughout:
//
//	[64-byte header][postings region][doc directory (JSON)][32-byte footer]
//
// The postings region holds each document's (term, count) pairs as raw
// uint32 pairs; the directory records, per document, its external id, token
// count, and the relative offset and pair count of its postings. The footer
// carries a CRC32 over the directory bytes so a truncated or corrupted
// segment is rejected at open.
const (
	MagicBytes    uint32 = 0x46574458 // "FWDX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32

	// SegmentSuffix is the extension of forward segment files.
	SegmentSuffix = ".fwd"

	// VocabFileName is the vocabulary file written next to segments.
	VocabFileName = "vocab.txt"

	postingBytes = 8 // uint32 term + uint32 count
)

// SegmentHeader is the fixed 64-byte header at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	DocCount   uint32
	TermCount  uint32
	TokenCount uint64
	CreatedAt  int64
	DirOffset  int64
	DirSize    int64
	PostOffset int64
	PostSize   int64
}

// DocEntry locates one document's postings inside a segment.
type DocEntry struct {
	ExternalID string `json:"id"`
	Size       uint32 `json:"s"`
	PostOffset int64  `json:"o"`
	Pairs      uint32 `json:"n"`
}

// SegmentWriter serializes in-memory corpora into immutable segment files.
type SegmentWriter struct {
	dataDir string
}

// NewSegmentWriter creates a writer that places segments in dataDir.
func NewSegmentWriter(dataDir string) *SegmentWriter {
	return &SegmentWriter{dataDir: dataDir}
}

// Write atomically creates a new segment file holding every document in mem.
// It writes to a .tmp file and renames on success, so readers never observe
// a partial segment. The returned path is the final segment location.
func (w *SegmentWriter) Write(mem *Memory) (string, error) {
	if mem.NumDocs() == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%d%s", time.Now().UnixNano(), SegmentSuffix)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postStart := int64(HeaderSize)
	entries := make([]DocEntry, 0, mem.NumDocs())
	pairBuf := make([]byte, 0, 4096)
	offset := postStart
	for _, d := range mem.Docs() {
		postings, err := mem.Postings(d)
		if err != nil {
			return "", fmt.Errorf("reading postings for doc %d: %w", d, err)
		}
		externalID, err := mem.ExternalID(d)
		if err != nil {
			return "", fmt.Errorf("reading external id for doc %d: %w", d, err)
		}
		size, err := mem.DocSize(d)
		if err != nil {
			return "", fmt.Errorf("reading size for doc %d: %w", d, err)
		}
		pairBuf = pairBuf[:0]
		for _, p := range postings {
			pairBuf = binary.LittleEndian.AppendUint32(pairBuf, uint32(p.Term))
			pairBuf = binary.LittleEndian.AppendUint32(pairBuf, p.Count)
		}
		if _, err := f.Write(pairBuf); err != nil {
			return "", fmt.Errorf("writing postings for doc %d: %w", d, err)
		}
		entries = append(entries, DocEntry{
			ExternalID: externalID,
			Size:       size,
			PostOffset: offset - postStart,
			Pairs:      uint32(len(postings)),
		})
		offset += int64(len(pairBuf))
	}
	postSize := offset - postStart

	dirData, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling doc directory: %w", err)
	}
	if _, err := f.Write(dirData); err != nil {
		return "", fmt.Errorf("writing doc directory: %w", err)
	}

	checksum := crc32.ChecksumIEEE(dirData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum)
	binary.LittleEndian.PutUint32(footer[4:8], mem.NumDocs())
	binary.LittleEndian.PutUint64(footer[8:16], uint64(offset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(dirData)))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[8:12], mem.NumDocs())
	binary.LittleEndian.PutUint32(headerBytes[12:16], mem.NumTerms())
	binary.LittleEndian.PutUint64(headerBytes[16:24], mem.TotalTokens())
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(offset))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(len(dirData)))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(postStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(postSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return finalPath, nil
}
