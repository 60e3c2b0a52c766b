// Package publisher emits corpus lifecycle events to Kafka so downstream
// consumers can react to freshly flushed segments and completed training
// runs.
package publisher

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/topicmine/platform/internal/corpus"
	"github.com/topicmine/platform/internal/ingest"
	"github.com/topicmine/platform/pkg/kafka"
)

// SegmentPublisher announces flushed segments on the segments topic.
type SegmentPublisher struct {
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewSegmentPublisher creates a SegmentPublisher with the given producer,
// which must be bound to the segments topic.
func NewSegmentPublisher(producer *kafka.Producer) *SegmentPublisher {
	return &SegmentPublisher{
		producer: producer,
		logger:   slog.Default().With("component", "segment-publisher"),
	}
}

// SegmentFlushed publishes a SegmentEvent for a freshly written segment.
// Publish failures are logged rather than returned: the segment is already
// durable on disk and consumers rediscover it from the directory.
func (p *SegmentPublisher) SegmentFlushed(ctx context.Context, info corpus.SegmentInfo) {
	event := kafka.Event{
		Key: filepath.Base(info.Path),
		Value: ingest.SegmentEvent{
			Path:      info.Path,
			Docs:      info.Docs,
			Terms:     info.Terms,
			Tokens:    info.Tokens,
			FlushedAt: time.Now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish segment event",
			"segment", info.Path,
			"error", err,
		)
		return
	}
	p.logger.Info("segment event published",
		"segment", filepath.Base(info.Path),
		"docs", info.Docs,
	)
}

// ModelPublisher announces persisted training runs on the model events topic.
type ModelPublisher struct {
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewModelPublisher creates a ModelPublisher with the given producer, which
// must be bound to the model events topic.
func NewModelPublisher(producer *kafka.Producer) *ModelPublisher {
	return &ModelPublisher{
		producer: producer,
		logger:   slog.Default().With("component", "model-publisher"),
	}
}

// ModelTrained publishes a ModelEvent for a completed training run.
func (p *ModelPublisher) ModelTrained(ctx context.Context, event ingest.ModelEvent) error {
	err := p.producer.Publish(ctx, kafka.Event{
		Key:   event.RunID,
		Value: event,
	})
	if err != nil {
		return err
	}
	p.logger.Info("model event published",
		"run_id", event.RunID,
		"topics", event.Topics,
	)
	return nil
}
