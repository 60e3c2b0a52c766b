// Package handler serves trained topic model runs over HTTP. Reads go
// through the run cache when one is configured, and every store access is
// guarded by a circuit breaker so a failing database degrades to fast 503s
// instead of piling up timeouts.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/topicmine/platform/internal/modelstore"
	"github.com/topicmine/platform/internal/topicserver/cache"
	apperrors "github.com/topicmine/platform/pkg/errors"
	"github.com/topicmine/platform/pkg/logger"
	"github.com/topicmine/platform/pkg/metrics"
	"github.com/topicmine/platform/pkg/resilience"
)

// RunStore is the slice of the model store the handler reads from.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*modelstore.RunRecord, error)
	LatestRun(ctx context.Context) (*modelstore.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]modelstore.RunInfo, error)
}

// Handler exposes the topic model query API.
type Handler struct {
	store        RunStore
	cache        *cache.RunCache
	breaker      *resilience.CircuitBreaker
	metrics      *metrics.Metrics
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// New creates a Handler. runCache and m may be nil; breaker must not be.
func New(store RunStore, runCache *cache.RunCache, breaker *resilience.CircuitBreaker, m *metrics.Metrics, defaultLimit, maxLimit int) *Handler {
	return &Handler{
		store:        store,
		cache:        runCache,
		breaker:      breaker,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       slog.Default().With("component", "topic-handler"),
	}
}

// Register attaches the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/latest", h.LatestRun)
	mux.HandleFunc("GET /api/v1/runs/{run_id}", h.GetRun)
	mux.HandleFunc("GET /api/v1/runs/{run_id}/topics", h.RunTopics)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// ListRuns serves the run listing, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxLimit {
			parsed = h.maxLimit
		}
		limit = parsed
	}

	runs, cacheHit, err := fetch(ctx, h, fmt.Sprintf("runs:limit=%d", limit), func() ([]modelstore.RunInfo, error) {
		return h.store.ListRuns(ctx, limit)
	})
	if err != nil {
		h.storeError(w, ctx, "listing runs", err)
		return
	}
	if runs == nil {
		runs = []modelstore.RunInfo{}
	}
	h.observe(start, cacheHit)
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// LatestRun serves the most recently persisted run.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	rec, cacheHit, err := fetch(ctx, h, "latest", func() (*modelstore.RunRecord, error) {
		return h.store.LatestRun(ctx)
	})
	if err != nil {
		h.storeError(w, ctx, "loading latest run", err)
		return
	}
	h.observe(start, cacheHit)
	h.writeJSON(w, http.StatusOK, rec)
}

// GetRun serves one run by id.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	runID := r.PathValue("run_id")
	rec, cacheHit, err := h.loadRun(ctx, runID)
	if err != nil {
		h.storeError(w, ctx, "loading run", err)
		return
	}
	h.observe(start, cacheHit)
	h.writeJSON(w, http.StatusOK, rec)
}

// RunTopics serves the per-topic term summaries of one run.
func (h *Handler) RunTopics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	runID := r.PathValue("run_id")
	rec, cacheHit, err := h.loadRun(ctx, runID)
	if err != nil {
		h.storeError(w, ctx, "loading run topics", err)
		return
	}
	h.observe(start, cacheHit)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": rec.RunID,
		"topics": rec.Summary,
	})
}

// CacheStats reports hit/miss counts of the run cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops every cached read. Call it after a new training run
// lands so clients see it before the TTL expires.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) loadRun(ctx context.Context, runID string) (*modelstore.RunRecord, bool, error) {
	if runID == "" {
		return nil, false, fmt.Errorf("run id is required: %w", apperrors.ErrInvalidInput)
	}
	return fetch(ctx, h, "run:"+runID, func() (*modelstore.RunRecord, error) {
		return h.store.GetRun(ctx, runID)
	})
}

// fetch reads through the cache when one is configured, with the store
// access wrapped in the circuit breaker. Not-found results are client
// outcomes rather than store failures, so they bypass the breaker's failure
// accounting and are never cached.
func fetch[T any](ctx context.Context, h *Handler, key string, load func() (T, error)) (T, bool, error) {
	guarded := func() (T, error) {
		var result T
		var clientErr error
		err := h.breaker.Execute(func() error {
			v, err := load()
			if err != nil {
				if errors.Is(err, apperrors.ErrRunNotFound) || errors.Is(err, apperrors.ErrNoRuns) {
					clientErr = err
					return nil
				}
				return err
			}
			result = v
			return nil
		})
		if err != nil {
			return result, err
		}
		return result, clientErr
	}

	if h.cache == nil {
		v, err := guarded()
		return v, false, err
	}
	return cache.GetOrCompute(ctx, h.cache, key, guarded)
}

func (h *Handler) observe(start time.Time, cacheHit bool) {
	if h.metrics == nil {
		return
	}
	status := "miss"
	if cacheHit {
		status = "hit"
	}
	h.metrics.TopicQueriesTotal.WithLabelValues(status).Inc()
	h.metrics.TopicQueryLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func (h *Handler) storeError(w http.ResponseWriter, ctx context.Context, action string, err error) {
	log := logger.FromContext(ctx)
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Error(action+" failed", "error", err)
	} else {
		log.Debug(action+" rejected", "error", err)
	}
	if h.metrics != nil {
		h.metrics.TopicQueriesTotal.WithLabelValues("error").Inc()
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
