// Command corpusd consumes document events from Kafka, analyzes their text,
// and buffers the resulting term streams in the corpus engine, which flushes
// immutable segment files for trainers to read. It announces every flushed
// segment on Kafka, exposes an admin RPC for forced flushes and stats, and
// serves health and metrics endpoints over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/topicmine/platform/internal/analyzer"
	"github.com/topicmine/platform/internal/corpus"
	"github.com/topicmine/platform/internal/ingest/consumer"
	"github.com/topicmine/platform/internal/ingest/publisher"
	"github.com/topicmine/platform/pkg/config"
	"github.com/topicmine/platform/pkg/grpc"
	"github.com/topicmine/platform/pkg/health"
	"github.com/topicmine/platform/pkg/kafka"
	"github.com/topicmine/platform/pkg/logger"
	"github.com/topicmine/platform/pkg/metrics"
	"github.com/topicmine/platform/pkg/proto"
	"github.com/topicmine/platform/pkg/resilience"
)

const gaugeInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting corpus daemon",
		"data_dir", cfg.Corpus.DataDir,
		"segment_max_docs", cfg.Corpus.SegmentMaxDocs,
		"flush_interval", cfg.Corpus.FlushInterval,
	)

	m := metrics.New()

	an, err := analyzer.FromConfig(cfg.Analyzer)
	if err != nil {
		slog.Error("failed to build analyzer", "error", err)
		os.Exit(1)
	}

	engine, err := corpus.NewEngine(cfg.Corpus.DataDir, cfg.Corpus.SegmentMaxDocs)
	if err != nil {
		slog.Error("failed to open corpus engine", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	segmentProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Segments)
	defer segmentProducer.Close()
	segments := publisher.NewSegmentPublisher(segmentProducer)
	engine.SetOnFlush(func(info corpus.SegmentInfo) {
		m.SegmentFlushesTotal.WithLabelValues("ok").Inc()
		// Final flushes run after the signal context is cancelled, so segment
		// announcements get their own publish deadline.
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		segments.SegmentFlushed(pubCtx, info)
	})
	engine.StartFlushLoop(ctx, cfg.Corpus.FlushInterval)
	go pollEngineGauges(ctx, engine, m)

	admin := grpc.NewServer()
	admin.Register("Corpus.Flush", flushHandler(engine, m, cfg.Admin.RequestTimeout))
	admin.Register("Corpus.Stats", statsHandler(engine))
	go func() {
		if err := admin.Serve(cfg.Admin.Addr); err != nil {
			slog.Error("admin rpc error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("corpus_engine", func(ctx context.Context) health.ComponentHealth {
		stats := engine.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d segments, %d docs buffered", stats.Segments, stats.BufferedDocs),
		}
	})
	checker.Register("data_dir", func(ctx context.Context) health.ComponentHealth {
		if _, err := os.Stat(engine.DataDir()); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("GET /health/live", checker.LiveHandler())
	httpMux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		httpMux.Handle("GET /metrics", metrics.Handler())
	}
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: httpMux,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()

	handler := consumer.HandleMessage(an, engine, m)
	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Documents, handler)
	corpusConsumer := consumer.New(kafkaConsumer)

	slog.Info("corpus daemon ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.Documents,
		"group", cfg.Kafka.ConsumerGroup,
		"admin_addr", cfg.Admin.Addr,
	)

	if err := corpusConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing buffered documents before shutdown")
	if _, err := engine.Flush(); err != nil {
		m.SegmentFlushesTotal.WithLabelValues("error").Inc()
		slog.Error("final flush failed", "error", err)
	}

	admin.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}

	slog.Info("corpus daemon stopped")
}

// flushHandler serves Corpus.Flush. It forces a segment flush regardless of
// buffer level, bounded by the admin request timeout. An empty buffer yields
// Flushed=false rather than an error.
func flushHandler(engine *corpus.Engine, m *metrics.Metrics, timeout time.Duration) grpc.HandlerFunc {
	return func(ctx context.Context, req json.RawMessage) (any, error) {
		var flushReq proto.FlushRequest
		if len(req) > 0 {
			if err := json.Unmarshal(req, &flushReq); err != nil {
				return nil, fmt.Errorf("decoding flush request: %w", err)
			}
		}
		var info *corpus.SegmentInfo
		err := resilience.WithTimeout(ctx, timeout, "admin-flush", func(ctx context.Context) error {
			var ferr error
			info, ferr = engine.Flush()
			return ferr
		})
		if err != nil {
			m.SegmentFlushesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		resp := proto.FlushResponse{}
		if info != nil {
			resp.Flushed = true
			resp.SegmentPath = info.Path
			resp.Docs = info.Docs
			resp.Terms = info.Terms
			resp.Tokens = info.Tokens
		}
		slog.Info("admin flush served", "reason", flushReq.Reason, "flushed", resp.Flushed)
		return resp, nil
	}
}

// statsHandler serves Corpus.Stats from the engine's counters.
func statsHandler(engine *corpus.Engine) grpc.HandlerFunc {
	return func(ctx context.Context, req json.RawMessage) (any, error) {
		stats := engine.Stats()
		return proto.StatsResponse{
			DataDir:        engine.DataDir(),
			BufferedDocs:   stats.BufferedDocs,
			BufferedTokens: stats.BufferedTokens,
			Segments:       stats.Segments,
			TotalDocs:      stats.TotalDocs,
			TotalTokens:    stats.TotalTokens,
			VocabTerms:     stats.VocabTerms,
		}, nil
	}
}

// pollEngineGauges mirrors the engine's counters into Prometheus gauges until
// ctx is cancelled.
func pollEngineGauges(ctx context.Context, engine *corpus.Engine, m *metrics.Metrics) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := engine.Stats()
			m.CorpusBufferedDocs.Set(float64(stats.BufferedDocs))
			m.CorpusSegments.Set(float64(stats.Segments))
			m.CorpusVocabTerms.Set(float64(stats.VocabTerms))
		}
	}
}
