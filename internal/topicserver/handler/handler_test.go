package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topicmine/platform/internal/modelstore"
	apperrors "github.com/topicmine/platform/pkg/errors"
	"github.com/topicmine/platform/pkg/metrics"
	"github.com/topicmine/platform/pkg/resilience"
)

// Collectors register against the process-global Prometheus registry, so the
// test binary builds them exactly once.
var testMetrics = metrics.New()

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

type fakeStore struct {
	runs      map[string]*modelstore.RunRecord
	listing   []modelstore.RunInfo
	latest    *modelstore.RunRecord
	err       error
	calls     int
	lastLimit int
}

func (f *fakeStore) GetRun(ctx context.Context, runID string) (*modelstore.RunRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, apperrors.ErrRunNotFound)
	}
	return rec, nil
}

func (f *fakeStore) LatestRun(ctx context.Context) (*modelstore.RunRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.latest == nil {
		return nil, apperrors.ErrNoRuns
	}
	return f.latest, nil
}

func (f *fakeStore) ListRuns(ctx context.Context, limit int) ([]modelstore.RunInfo, error) {
	f.calls++
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.listing) > limit {
		return f.listing[:limit], nil
	}
	return f.listing, nil
}

func sampleRun(id string) *modelstore.RunRecord {
	return &modelstore.RunRecord{
		RunID:         id,
		Topics:        2,
		Alpha:         0.1,
		Beta:          0.01,
		Seed:          7,
		Iterations:    50,
		State:         "converged",
		LogLikelihood: -321.5,
		CorpusDocs:    10,
		CorpusTerms:   40,
		CorpusTokens:  200,
		Summary: []modelstore.TopicSummary{
			{Topic: 0, Terms: []modelstore.TermWeight{{Term: "market", Weight: 0.3}}},
			{Topic: 1, Terms: []modelstore.TermWeight{{Term: "photon", Weight: 0.25}}},
		},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestMux(store RunStore, breaker *resilience.CircuitBreaker) *http.ServeMux {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("test-store", resilience.CircuitBreakerConfig{
			FailureThreshold:    100,
			ResetTimeout:        time.Minute,
			HalfOpenMaxRequests: 1,
		})
	}
	h := New(store, nil, breaker, testMetrics, 20, 100)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}

func TestListRuns(t *testing.T) {
	store := &fakeStore{
		listing: []modelstore.RunInfo{
			{RunID: "run-b", Topics: 4, State: "converged"},
			{RunID: "run-a", Topics: 2, State: "exhausted"},
		},
	}
	mux := newTestMux(store, nil)

	status, body := doRequest(t, mux, "GET", "/api/v1/runs")
	require.Equal(t, http.StatusOK, status)

	var resp struct {
		Runs []modelstore.RunInfo `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, "run-b", resp.Runs[0].RunID)
	assert.Equal(t, "run-a", resp.Runs[1].RunID)
	assert.Equal(t, 20, store.lastLimit)
}

func TestListRunsEmptyIsArray(t *testing.T) {
	mux := newTestMux(&fakeStore{}, nil)

	status, body := doRequest(t, mux, "GET", "/api/v1/runs")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"runs":[]}`, string(body))
}

func TestListRunsLimitValidation(t *testing.T) {
	store := &fakeStore{}
	mux := newTestMux(store, nil)

	for _, bad := range []string{"zero", "-1", "0", "1.5"} {
		status, _ := doRequest(t, mux, "GET", "/api/v1/runs?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, status, "limit=%s", bad)
	}

	status, _ := doRequest(t, mux, "GET", "/api/v1/runs?limit=1000")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 100, store.lastLimit)
}

func TestGetRun(t *testing.T) {
	rec := sampleRun("run-1")
	mux := newTestMux(&fakeStore{runs: map[string]*modelstore.RunRecord{"run-1": rec}}, nil)

	status, body := doRequest(t, mux, "GET", "/api/v1/runs/run-1")
	require.Equal(t, http.StatusOK, status)

	var got modelstore.RunRecord
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, rec.Topics, got.Topics)
	assert.Equal(t, rec.State, got.State)
	assert.Equal(t, rec.LogLikelihood, got.LogLikelihood)
	assert.Equal(t, rec.Summary, got.Summary)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestGetRunMissing(t *testing.T) {
	mux := newTestMux(&fakeStore{runs: map[string]*modelstore.RunRecord{}}, nil)

	status, body := doRequest(t, mux, "GET", "/api/v1/runs/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "error")
}

func TestLatestRun(t *testing.T) {
	rec := sampleRun("run-latest")
	mux := newTestMux(&fakeStore{latest: rec}, nil)

	status, body := doRequest(t, mux, "GET", "/api/v1/runs/latest")
	require.Equal(t, http.StatusOK, status)

	var got modelstore.RunRecord
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "run-latest", got.RunID)
}

func TestLatestRunEmptyStore(t *testing.T) {
	mux := newTestMux(&fakeStore{}, nil)

	status, _ := doRequest(t, mux, "GET", "/api/v1/runs/latest")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRunTopics(t *testing.T) {
	rec := sampleRun("run-1")
	mux := newTestMux(&fakeStore{runs: map[string]*modelstore.RunRecord{"run-1": rec}}, nil)

	status, body := doRequest(t, mux, "GET", "/api/v1/runs/run-1/topics")
	require.Equal(t, http.StatusOK, status)

	var resp struct {
		RunID  string                    `json:"run_id"`
		Topics []modelstore.TopicSummary `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, rec.Summary, resp.Topics)
}

func TestStoreFailureMapsTo500(t *testing.T) {
	mux := newTestMux(&fakeStore{err: errors.New("connection refused")}, nil)

	status, _ := doRequest(t, mux, "GET", "/api/v1/runs/run-1")
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	breaker := resilience.NewCircuitBreaker("test-store", resilience.CircuitBreakerConfig{
		FailureThreshold:    2,
		ResetTimeout:        time.Minute,
		HalfOpenMaxRequests: 1,
	})
	mux := newTestMux(store, breaker)

	for i := 0; i < 2; i++ {
		status, _ := doRequest(t, mux, "GET", "/api/v1/runs/run-1")
		assert.Equal(t, http.StatusInternalServerError, status)
	}

	status, body := doRequest(t, mux, "GET", "/api/v1/runs/run-1")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "circuit breaker")
	assert.Equal(t, 2, store.calls)
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	store := &fakeStore{runs: map[string]*modelstore.RunRecord{"run-1": sampleRun("run-1")}}
	breaker := resilience.NewCircuitBreaker("test-store", resilience.CircuitBreakerConfig{
		FailureThreshold:    2,
		ResetTimeout:        time.Minute,
		HalfOpenMaxRequests: 1,
	})
	mux := newTestMux(store, breaker)

	for i := 0; i < 5; i++ {
		status, _ := doRequest(t, mux, "GET", "/api/v1/runs/nope")
		assert.Equal(t, http.StatusNotFound, status)
	}

	status, _ := doRequest(t, mux, "GET", "/api/v1/runs/run-1")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, resilience.StateClosed, breaker.GetState())
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	mux := newTestMux(&fakeStore{}, nil)

	status, body := doRequest(t, mux, "GET", "/api/v1/cache/stats")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "disabled")

	status, _ = doRequest(t, mux, "POST", "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
