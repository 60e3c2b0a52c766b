package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/topicmine/platform/internal/ingest"
	"github.com/topicmine/platform/internal/modelstore"
	"github.com/topicmine/platform/internal/topicserver/cache"
	"github.com/topicmine/platform/internal/topicserver/handler"
	"github.com/topicmine/platform/pkg/config"
	"github.com/topicmine/platform/pkg/health"
	"github.com/topicmine/platform/pkg/kafka"
	"github.com/topicmine/platform/pkg/logger"
	"github.com/topicmine/platform/pkg/metrics"
	"github.com/topicmine/platform/pkg/middleware"
	"github.com/topicmine/platform/pkg/postgres"
	pkgredis "github.com/topicmine/platform/pkg/redis"
	"github.com/topicmine/platform/pkg/resilience"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting topic model server", "port", cfg.Server.Port)

	m := metrics.New()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	store := modelstore.NewStore(pg)
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureSchema(startupCtx); err != nil {
		startupCancel()
		slog.Error("failed to ensure model store schema", "error", err)
		os.Exit(1)
	}
	startupCancel()
	slog.Info("model store ready", "database", cfg.Postgres.Database)

	var runCache *cache.RunCache
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, run caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		runCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("run cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	breaker := resilience.NewCircuitBreaker("model-store", resilience.CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 3,
		OnStateChange: func(name string, state resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
			slog.Warn("circuit breaker state changed", "name", name, "state", state.String())
		},
	})

	if runCache != nil {
		invalidator := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ModelEvents, modelEventHandler(runCache))
		go func() {
			if err := invalidator.Start(ctx); err != nil {
				slog.Error("model event consumer error", "error", err)
			}
		}()
		slog.Info("cache invalidation on model events enabled", "topic", cfg.Kafka.Topics.ModelEvents)
	}

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := handler.New(store, runCache, breaker, m, defaultRunLimit, maxRunLimit)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("topic model server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("topic model server stopped")
}

// modelEventHandler drops every cached API response when the trainer announces
// a new run, so clients see it without waiting for TTL expiry.
func modelEventHandler(runCache *cache.RunCache) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[ingest.ModelEvent](value)
		if err != nil {
			slog.Warn("skipping malformed model event", "error", err)
			return nil
		}
		if err := runCache.Invalidate(ctx); err != nil {
			return fmt.Errorf("invalidating run cache: %w", err)
		}
		slog.Info("run cache invalidated for new model",
			"run_id", event.RunID,
			"topics", event.Topics,
		)
		return nil
	}
}
