// Package consumer reads document events from Kafka and feeds them through
// the analyzer into the corpus engine.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/topicmine/platform/internal/analyzer"
	"github.com/topicmine/platform/internal/corpus"
	"github.com/topicmine/platform/internal/ingest"
	"github.com/topicmine/platform/internal/ingest/validator"
	"github.com/topicmine/platform/pkg/kafka"
	"github.com/topicmine/platform/pkg/metrics"
)

// CorpusConsumer wraps a Kafka consumer to drive corpus building.
type CorpusConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates a CorpusConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *CorpusConsumer {
	return &CorpusConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "corpus-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (cc *CorpusConsumer) Start(ctx context.Context) error {
	cc.logger.Info("corpus consumer starting")
	return cc.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that analyzes each document
// event and buffers the result in the corpus engine. Malformed, invalid, and
// empty-after-analysis documents are counted and skipped so they are not
// redelivered; engine failures are returned so the message is retried.
func HandleMessage(an *analyzer.Analyzer, engine *corpus.Engine, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "corpus-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingest.DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			m.DocsRejectedTotal.WithLabelValues("decode").Inc()
			return nil
		}
		if err := validator.ValidateDocumentEvent(&event); err != nil {
			logger.Warn("document event failed validation",
				"doc_id", event.ID,
				"error", err,
			)
			m.DocsRejectedTotal.WithLabelValues("invalid").Inc()
			return nil
		}

		terms := an.Analyze(event.Body)
		if event.Title != "" {
			terms = append(an.Analyze(event.Title), terms...)
		}
		if len(terms) == 0 {
			logger.Warn("document produced no terms, skipping", "doc_id", event.ID)
			m.DocsRejectedTotal.WithLabelValues("empty").Inc()
			return nil
		}

		if err := engine.AddDocument(event.ID, terms); err != nil {
			return fmt.Errorf("buffering document %s: %w", event.ID, err)
		}
		m.DocsConsumedTotal.Inc()
		m.TokensConsumedTotal.Add(float64(len(terms)))

		logger.Debug("document buffered",
			"doc_id", event.ID,
			"terms", len(terms),
		)
		return nil
	}
}
