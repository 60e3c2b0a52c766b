package corpus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
)

// Segment provides read access to one immutable segment file. Document ids
// passed to its methods are segment-local, 0-based; Disk translates from the
// global id space.
type Segment struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	entries  []DocEntry
}

// OpenSegment opens and validates a segment file: magic bytes, version, and
// the CRC32 of the doc directory all have to match before any postings are
// served.
func OpenSegment(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("invalid segment file %s: bad magic bytes %x", path, magic)
	}
	version := binary.LittleEndian.Uint32(headerBytes[4:8])
	if version != FormatVersion {
		f.Close()
		return nil, fmt.Errorf("segment file %s: unsupported version %d", path, version)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    version,
		DocCount:   binary.LittleEndian.Uint32(headerBytes[8:12]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[12:16]),
		TokenCount: binary.LittleEndian.Uint64(headerBytes[16:24]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		DirOffset:  int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		DirSize:    int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}

	dirBytes := make([]byte, header.DirSize)
	if _, err := f.ReadAt(dirBytes, header.DirOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading doc directory: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DirOffset+header.DirSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment footer: %w", err)
	}
	wantCRC := binary.LittleEndian.Uint32(footer[0:4])
	if got := crc32.ChecksumIEEE(dirBytes); got != wantCRC {
		f.Close()
		return nil, fmt.Errorf("segment file %s: doc directory checksum mismatch (got %08x, want %08x)", path, got, wantCRC)
	}

	var entries []DocEntry
	if err := json.Unmarshal(dirBytes, &entries); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing doc directory: %w", err)
	}
	if uint32(len(entries)) != header.DocCount {
		f.Close()
		return nil, fmt.Errorf("segment file %s: directory has %d docs, header says %d", path, len(entries), header.DocCount)
	}
	return &Segment{
		file:     f,
		filePath: path,
		header:   header,
		entries:  entries,
	}, nil
}

// NumDocs returns the number of documents in the segment.
func (s *Segment) NumDocs() uint32 {
	return s.header.DocCount
}

// NumTerms returns the vocabulary size at the time the segment was written.
func (s *Segment) NumTerms() uint32 {
	return s.header.TermCount
}

// TotalTokens returns the token count across the segment's documents.
func (s *Segment) TotalTokens() uint64 {
	return s.header.TokenCount
}

// DocSize returns the token count of the segment-local document.
func (s *Segment) DocSize(local uint32) (uint32, error) {
	if local >= uint32(len(s.entries)) {
		return 0, fmt.Errorf("document %d out of range [0, %d)", local, len(s.entries))
	}
	return s.entries[local].Size, nil
}

// ExternalID returns the external id of the segment-local document.
func (s *Segment) ExternalID(local uint32) (string, error) {
	if local >= uint32(len(s.entries)) {
		return "", fmt.Errorf("document %d out of range [0, %d)", local, len(s.entries))
	}
	return s.entries[local].ExternalID, nil
}

// ReadPostings reads the postings of the segment-local document from disk.
// The returned slice is freshly allocated and owned by the caller.
func (s *Segment) ReadPostings(local uint32) ([]Posting, error) {
	if local >= uint32(len(s.entries)) {
		return nil, fmt.Errorf("document %d out of range [0, %d)", local, len(s.entries))
	}
	entry := s.entries[local]
	raw := make([]byte, int(entry.Pairs)*postingBytes)
	if _, err := s.file.ReadAt(raw, s.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for doc %d: %w", local, err)
	}
	postings := make([]Posting, entry.Pairs)
	for i := range postings {
		off := i * postingBytes
		postings[i] = Posting{
			Term:  TermID(binary.LittleEndian.Uint32(raw[off : off+4])),
			Count: binary.LittleEndian.Uint32(raw[off+4 : off+8]),
		}
	}
	return postings, nil
}

// Close releases the underlying file handle.
func (s *Segment) Close() error {
	return s.file.Close()
}
