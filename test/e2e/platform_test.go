// Package e2e contains end-to-end tests that exercise the full platform
// stack: ingest → corpusd → trainer → topicd, with real Kafka, PostgreSQL,
// and Redis.
//
// Prerequisites:
//   - corpusd running (health on the metrics port, admin RPC on the admin port)
//   - topicd running with PostgreSQL reachable
//   - at least one completed training run for the model query tests
//
// Run with:
//
//	go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/topicmine/platform/pkg/grpc"
	"github.com/topicmine/platform/pkg/proto"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type e2eConfig struct {
	TopicdURL  string
	CorpusdURL string
	CorpusdRPC string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		TopicdURL:  envOrDefault("E2E_TOPICD_URL", "http://localhost:8080"),
		CorpusdURL: envOrDefault("E2E_CORPUSD_URL", "http://localhost:9090"),
		CorpusdRPC: envOrDefault("E2E_CORPUSD_RPC", "localhost:7090"),
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestPlatformHealth verifies both services respond to health checks.
func TestPlatformHealth(t *testing.T) {
	cfg := loadE2EConfig()

	services := []struct {
		name string
		url  string
	}{
		{"topicd /health/live", cfg.TopicdURL + "/health/live"},
		{"topicd /health/ready", cfg.TopicdURL + "/health/ready"},
		{"corpusd /health/live", cfg.CorpusdURL + "/health/live"},
		{"corpusd /health/ready", cfg.CorpusdURL + "/health/ready"},
	}

	client := &http.Client{Timeout: 5 * time.Second}

	for _, svc := range services {
		t.Run(svc.name, func(t *testing.T) {
			resp, err := client.Get(svc.url)
			if err != nil {
				t.Skipf("service unavailable: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("expected 200, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

// TestModelQueryFlow walks the model API: list runs, load one run, and load
// its per-topic term summaries.
func TestModelQueryFlow(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(cfg.TopicdURL + "/api/v1/runs")
	if err != nil {
		t.Skipf("topicd unavailable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("listing runs: expected 200, got %d: %s", resp.StatusCode, body)
	}

	var listing struct {
		Runs []struct {
			RunID  string `json:"run_id"`
			Topics int    `json:"topics"`
			State  string `json:"state"`
		} `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decoding run listing: %v", err)
	}
	if len(listing.Runs) == 0 {
		t.Log("no training runs persisted yet — run the trainer before the model query tests")
		return
	}
	runID := listing.Runs[0].RunID
	t.Logf("querying run %s (%d topics, state=%s)", runID, listing.Runs[0].Topics, listing.Runs[0].State)

	runResp, err := client.Get(cfg.TopicdURL + "/api/v1/runs/" + runID)
	if err != nil {
		t.Fatalf("loading run: %v", err)
	}
	defer runResp.Body.Close()

	var run map[string]any
	json.NewDecoder(runResp.Body).Decode(&run)
	if run["run_id"] != runID {
		t.Errorf("expected run_id %s, got %v", runID, run["run_id"])
	}
	if topics, _ := run["topics"].(float64); topics < 1 {
		t.Errorf("expected at least one topic, got %v", run["topics"])
	}

	topicsResp, err := client.Get(cfg.TopicdURL + "/api/v1/runs/" + runID + "/topics")
	if err != nil {
		t.Fatalf("loading run topics: %v", err)
	}
	defer topicsResp.Body.Close()

	var summary struct {
		RunID  string            `json:"run_id"`
		Topics []json.RawMessage `json:"topics"`
	}
	if err := json.NewDecoder(topicsResp.Body).Decode(&summary); err != nil {
		t.Fatalf("decoding topic summaries: %v", err)
	}
	if summary.RunID != runID {
		t.Errorf("expected run_id %s in summary, got %s", runID, summary.RunID)
	}
	t.Logf("run %s exposes %d topic summaries", runID, len(summary.Topics))
}

// TestCorpusAdminFlush exercises the corpusd admin RPC: read engine stats,
// then request a flush.
func TestCorpusAdminFlush(t *testing.T) {
	cfg := loadE2EConfig()

	client, err := grpc.Dial(cfg.CorpusdRPC)
	if err != nil {
		t.Skipf("corpusd admin unreachable: %v", err)
	}
	defer client.Close()

	var stats proto.StatsResponse
	if err := client.Call("Corpus.Stats", nil, &stats); err != nil {
		t.Fatalf("Corpus.Stats: %v", err)
	}
	t.Logf("corpusd: %d docs buffered, %d segments, %d total docs",
		stats.BufferedDocs, stats.Segments, stats.TotalDocs)

	var flush proto.FlushResponse
	if err := client.Call("Corpus.Flush", &proto.FlushRequest{Reason: "e2e"}, &flush); err != nil {
		t.Fatalf("Corpus.Flush: %v", err)
	}
	if flush.Flushed {
		t.Logf("flushed %d docs to %s", flush.Docs, flush.SegmentPath)
	} else {
		t.Log("buffer was empty, nothing flushed")
	}
}

// TestCacheStats verifies that cache statistics are reported.
func TestCacheStats(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(cfg.TopicdURL + "/api/v1/cache/stats")
	if err != nil {
		t.Skipf("topicd unavailable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var stats map[string]any
	json.NewDecoder(resp.Body).Decode(&stats)
	t.Logf("cache stats: %v", stats)

	for _, field := range []string{"hits", "misses", "total", "hit_rate"} {
		if _, ok := stats[field]; !ok {
			// Cache might be disabled — check for "status" field instead.
			if status, ok := stats["status"]; ok && status == "disabled" {
				t.Log("cache is disabled, skipping field check")
				return
			}
			t.Errorf("missing expected field: %s", field)
		}
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
