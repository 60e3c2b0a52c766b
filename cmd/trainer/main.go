// Command trainer fits a topic model over a corpus with collapsed Gibbs
// sampling. It loads either a segment directory written by corpusd or a local
// document file, runs the chain until convergence or the sweep limit, exports
// the point estimates, persists the run record in Postgres, and announces the
// run on Kafka.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/topicmine/platform/internal/analyzer"
	"github.com/topicmine/platform/internal/corpus"
	"github.com/topicmine/platform/internal/ingest"
	"github.com/topicmine/platform/internal/ingest/publisher"
	"github.com/topicmine/platform/internal/modelstore"
	"github.com/topicmine/platform/internal/topics"
	"github.com/topicmine/platform/internal/trainer"
	"github.com/topicmine/platform/pkg/config"
	"github.com/topicmine/platform/pkg/grpc"
	"github.com/topicmine/platform/pkg/kafka"
	"github.com/topicmine/platform/pkg/logger"
	"github.com/topicmine/platform/pkg/metrics"
	"github.com/topicmine/platform/pkg/postgres"
	"github.com/topicmine/platform/pkg/proto"
	"github.com/topicmine/platform/pkg/resilience"
	"github.com/topicmine/platform/pkg/tracing"
)

func main() {
	var (
		configPath  = flag.String("config", "configs/development.yaml", "path to config file")
		corpusDir   = flag.String("corpus", "", "corpus segment directory written by corpusd")
		inputFile   = flag.String("input", "", "local document file, one id<TAB>text line per document")
		outputDir   = flag.String("output", "", "model output directory (default from config)")
		topicCount  = flag.Int("topics", 0, "number of latent topics (default from config)")
		alpha       = flag.Float64("alpha", 0, "document-topic prior (default from config)")
		beta        = flag.Float64("beta", 0, "topic-term prior (default from config)")
		seedFlag    = flag.Int64("seed", 0, "sampler seed, 0 draws one from OS entropy")
		maxIters    = flag.Int("iters", 0, "maximum Gibbs sweeps (default from config)")
		epsilon     = flag.Float64("eps", 0, "relative log-likelihood convergence threshold (default from config)")
		corpusdAddr = flag.String("corpusd", "", "corpusd admin address for a pre-training flush")
	)
	flag.Parse()

	if (*corpusDir == "") == (*inputFile == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -corpus or -input is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *topicCount > 0 {
		cfg.Trainer.Topics = *topicCount
	}
	if *alpha > 0 {
		cfg.Trainer.Alpha = *alpha
	}
	if *beta > 0 {
		cfg.Trainer.Beta = *beta
	}
	if *seedFlag != 0 {
		cfg.Trainer.Seed = *seedFlag
	}
	if *maxIters > 0 {
		cfg.Trainer.MaxIterations = *maxIters
	}
	if *epsilon > 0 {
		cfg.Trainer.Convergence = *epsilon
	}
	if *outputDir != "" {
		cfg.Trainer.OutputDir = *outputDir
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port)
	}

	runID := trainer.NewRunID()
	seed := trainer.ResolveSeed(cfg.Trainer.Seed)
	log := logger.WithRun(runID)
	log.Info("starting training run",
		"topics", cfg.Trainer.Topics,
		"alpha", cfg.Trainer.Alpha,
		"beta", cfg.Trainer.Beta,
		"seed", seed,
		"max_iterations", cfg.Trainer.MaxIterations,
		"convergence", cfg.Trainer.Convergence,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *corpusdAddr != "" {
		preFlush(log, *corpusdAddr)
	}

	// Connect storage before the long sampling run so a bad database
	// configuration fails in seconds, not hours.
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	store := modelstore.NewStore(pg)
	schemaCtx, schemaCancel := context.WithTimeout(ctx, 10*time.Second)
	err = store.EnsureSchema(schemaCtx)
	schemaCancel()
	if err != nil {
		log.Error("failed to ensure model store schema", "error", err)
		os.Exit(1)
	}

	started := time.Now()
	traceCtx, root := tracing.StartSpan(ctx, "training-run", runID)

	_, loadSpan := tracing.StartChildSpan(traceCtx, "load-corpus")
	corp, err := loadCorpus(cfg, *corpusDir, *inputFile)
	if err != nil {
		log.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}
	loadSpan.SetAttr("docs", corp.NumDocs())
	loadSpan.SetAttr("terms", corp.NumTerms())
	loadSpan.SetAttr("tokens", corp.TotalTokens())
	loadSpan.End()
	log.Info("corpus loaded",
		"docs", corp.NumDocs(),
		"terms", corp.NumTerms(),
		"tokens", corp.TotalTokens(),
	)

	var bar *pb.ProgressBar
	sampler, err := topics.NewSampler(corp, topics.Config{
		Topics: cfg.Trainer.Topics,
		Alpha:  cfg.Trainer.Alpha,
		Beta:   cfg.Trainer.Beta,
		Seed:   seed,
		Progress: func(iteration int, logLikelihood float64) {
			if iteration > 0 {
				bar.Add(1)
				m.TrainerIterationsTotal.Inc()
			}
			m.TrainerLogLikelihood.Set(logLikelihood)
		},
	})
	if err != nil {
		log.Error("invalid sampler configuration", "error", err)
		os.Exit(1)
	}

	trainCtx, trainSpan := tracing.StartChildSpan(traceCtx, "gibbs-sampling")
	bar = pb.StartNew(cfg.Trainer.MaxIterations)
	state, err := sampler.Run(trainCtx, cfg.Trainer.MaxIterations, cfg.Trainer.Convergence)
	bar.Finish()
	trainSpan.SetAttr("state", state.String())
	trainSpan.SetAttr("iterations", sampler.Iterations())
	trainSpan.End()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Error("training interrupted, nothing persisted")
		} else {
			log.Error("training failed", "error", err)
		}
		os.Exit(1)
	}

	model := sampler.Snapshot()
	log.Info("training finished",
		"state", state.String(),
		"iterations", model.Iterations(),
		"log_likelihood", model.LogLikelihood(),
	)

	outDir := filepath.Join(cfg.Trainer.OutputDir, runID)
	rec := trainer.BuildRunRecord(runID, model, corp, seed, cfg.Trainer.TopTerms)

	_, exportSpan := tracing.StartChildSpan(traceCtx, "export-model")
	err = trainer.Export(outDir, model, corp, rec)
	exportSpan.SetAttr("dir", outDir)
	exportSpan.End()
	if err != nil {
		log.Error("export failed", "error", err)
		os.Exit(1)
	}
	log.Info("model exported", "dir", outDir)

	retryCfg := resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}

	_, persistSpan := tracing.StartChildSpan(traceCtx, "persist-run")
	err = resilience.Retry(ctx, "save-run", retryCfg, func() error {
		saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.SaveRun(saveCtx, rec)
	})
	persistSpan.End()
	if err != nil {
		log.Error("failed to persist run record, exports remain on disk",
			"error", err,
			"dir", outDir,
		)
		os.Exit(1)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ModelEvents)
	models := publisher.NewModelPublisher(producer)
	event := ingest.ModelEvent{
		RunID:         runID,
		Topics:        model.NumTopics(),
		Iterations:    model.Iterations(),
		State:         model.Status().String(),
		LogLikelihood: model.LogLikelihood(),
		CompletedAt:   time.Now().UTC(),
	}
	if err := resilience.Retry(ctx, "publish-model-event", retryCfg, func() error {
		pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return models.ModelTrained(pubCtx, event)
	}); err != nil {
		// The record is persisted; a missed announcement only delays cache
		// invalidation until TTL expiry.
		log.Error("failed to announce run on kafka", "error", err)
	}
	producer.Close()

	root.End()
	if cfg.Tracing.Enabled {
		root.Log()
	}
	log.Info("training run complete",
		"state", state.String(),
		"iterations", model.Iterations(),
		"log_likelihood", model.LogLikelihood(),
		"duration", time.Since(started).Round(time.Millisecond).String(),
	)
}

// loadCorpus opens the segment directory when -corpus is set, otherwise
// analyzes the -input file into an in-memory corpus.
func loadCorpus(cfg *config.Config, corpusDir, inputFile string) (trainer.Corpus, error) {
	if corpusDir != "" {
		return corpus.OpenDir(corpusDir)
	}
	an, err := analyzer.FromConfig(cfg.Analyzer)
	if err != nil {
		return nil, err
	}
	return trainer.LoadTokenFile(inputFile, an)
}

// preFlush asks a running corpusd to flush its buffer so the directory holds
// every ingested document. Failures are not fatal: training proceeds on the
// segments already on disk.
func preFlush(log *slog.Logger, addr string) {
	client, err := grpc.Dial(addr)
	if err != nil {
		log.Warn("corpusd unreachable, skipping pre-flush", "addr", addr, "error", err)
		return
	}
	defer client.Close()
	var resp proto.FlushResponse
	if err := client.Call("Corpus.Flush", &proto.FlushRequest{Reason: "trainer-start"}, &resp); err != nil {
		log.Warn("pre-flush failed, training on existing segments", "error", err)
		return
	}
	if resp.Flushed {
		log.Info("corpusd flushed buffered documents",
			"segment", filepath.Base(resp.SegmentPath),
			"docs", resp.Docs,
		)
	} else {
		log.Info("corpusd buffer already empty")
	}
}
