// Package ingest defines the Kafka event schemas flowing between document
// producers, the corpus daemon, and the trainer.
package ingest

import "time"

// DocumentEvent is the Kafka message payload carrying one raw document into
// the corpus pipeline.
type DocumentEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// SegmentEvent is the Kafka message payload produced after the corpus daemon
// flushes a segment to disk.
type SegmentEvent struct {
	Path      string    `json:"path"`
	Docs      uint32    `json:"docs"`
	Terms     uint32    `json:"terms"`
	Tokens    uint64    `json:"tokens"`
	FlushedAt time.Time `json:"flushed_at"`
}

// ModelEvent is the Kafka message payload produced after a training run has
// been persisted and is ready to serve.
type ModelEvent struct {
	RunID         string    `json:"run_id"`
	Topics        int       `json:"topics"`
	Iterations    int       `json:"iterations"`
	State         string    `json:"state"`
	LogLikelihood float64   `json:"log_likelihood"`
	CompletedAt   time.Time `json:"completed_at"`
}
