// Package proto defines the shared message types used for internal RPC
// communication between the corpus daemon and its clients.
//
// The types are hand-written with JSON struct tags for the platform's
// lightweight JSON-over-TCP RPC layer (see pkg/grpc); there is no generated
// code to keep in sync.
package proto

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// FlushRequest asks the corpus daemon to write its buffered documents out as
// a segment immediately instead of waiting for the flush loop.
type FlushRequest struct {
	// Reason is recorded in the daemon's log, e.g. "trainer-start".
	Reason string `json:"reason,omitempty"`
}

// FlushResponse reports the segment written by a flush. Flushed is false when
// the buffer was empty and no segment was produced.
type FlushResponse struct {
	Flushed     bool   `json:"flushed"`
	SegmentPath string `json:"segment_path,omitempty"`
	Docs        uint32 `json:"docs,omitempty"`
	Terms       uint32 `json:"terms,omitempty"`
	Tokens      uint64 `json:"tokens,omitempty"`
}

// StatsRequest asks for the corpus daemon's counters.
type StatsRequest struct{}

// StatsResponse is a point-in-time view of the corpus daemon.
type StatsResponse struct {
	DataDir        string `json:"data_dir"`
	BufferedDocs   int    `json:"buffered_docs"`
	BufferedTokens uint64 `json:"buffered_tokens"`
	Segments       int    `json:"segments"`
	TotalDocs      uint64 `json:"total_docs"`
	TotalTokens    uint64 `json:"total_tokens"`
	VocabTerms     int    `json:"vocab_terms"`
}
