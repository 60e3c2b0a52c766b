package integration

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/topicmine/platform/internal/modelstore"
	"github.com/topicmine/platform/pkg/config"
	apperrors "github.com/topicmine/platform/pkg/errors"
	"github.com/topicmine/platform/pkg/postgres"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := testPostgresConfig()
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "topicmine_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "topicmine"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// newTestStore creates the schema and returns a store plus a cleanup that
// removes every run this test saves.
func newTestStore(t *testing.T, db *postgres.Client) *modelstore.Store {
	t.Helper()
	store := modelstore.NewStore(db)
	if err := store.EnsureSchema(t.Context()); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}
	return store
}

func testRunRecord(createdAt time.Time) *modelstore.RunRecord {
	return &modelstore.RunRecord{
		RunID:         fmt.Sprintf("it-run-%d", time.Now().UnixNano()),
		Topics:        3,
		Alpha:         0.1,
		Beta:          0.01,
		Seed:          42,
		Iterations:    120,
		State:         "converged",
		LogLikelihood: -98765.4321,
		CorpusDocs:    1000,
		CorpusTerms:   5000,
		CorpusTokens:  120000,
		Summary: []modelstore.TopicSummary{
			{Topic: 0, Terms: []modelstore.TermWeight{{Term: "garlic", Weight: 0.05}, {Term: "basil", Weight: 0.04}}},
			{Topic: 1, Terms: []modelstore.TermWeight{{Term: "compiler", Weight: 0.06}}},
			{Topic: 2, Terms: []modelstore.TermWeight{{Term: "scheduler", Weight: 0.03}}},
		},
		CreatedAt: createdAt,
	}
}

func deleteRun(t *testing.T, db *postgres.Client, runID string) {
	t.Helper()
	t.Cleanup(func() {
		db.DB.Exec("DELETE FROM topic_model_runs WHERE run_id = $1", runID)
	})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestRunRecordRoundtrip saves a run and reads it back, including the JSONB
// topic summary.
func TestRunRecordRoundtrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := newTestStore(t, db)

	rec := testRunRecord(time.Now().UTC().Truncate(time.Microsecond))
	deleteRun(t, db, rec.RunID)

	if err := store.SaveRun(t.Context(), rec); err != nil {
		t.Fatalf("saving run: %v", err)
	}

	got, err := store.GetRun(t.Context(), rec.RunID)
	if err != nil {
		t.Fatalf("loading run: %v", err)
	}

	if got.RunID != rec.RunID {
		t.Errorf("run id: expected %s, got %s", rec.RunID, got.RunID)
	}
	if got.Topics != rec.Topics || got.Iterations != rec.Iterations {
		t.Errorf("shape mismatch: expected %d topics %d iterations, got %d/%d",
			rec.Topics, rec.Iterations, got.Topics, got.Iterations)
	}
	if got.Alpha != rec.Alpha || got.Beta != rec.Beta || got.Seed != rec.Seed {
		t.Errorf("hyperparameters did not survive: got alpha=%g beta=%g seed=%d",
			got.Alpha, got.Beta, got.Seed)
	}
	if got.State != rec.State {
		t.Errorf("state: expected %s, got %s", rec.State, got.State)
	}
	if got.LogLikelihood != rec.LogLikelihood {
		t.Errorf("log likelihood: expected %g, got %g", rec.LogLikelihood, got.LogLikelihood)
	}
	if got.CorpusDocs != rec.CorpusDocs || got.CorpusTerms != rec.CorpusTerms || got.CorpusTokens != rec.CorpusTokens {
		t.Errorf("corpus shape mismatch: got docs=%d terms=%d tokens=%d",
			got.CorpusDocs, got.CorpusTerms, got.CorpusTokens)
	}
	if len(got.Summary) != len(rec.Summary) {
		t.Fatalf("expected %d topic summaries, got %d", len(rec.Summary), len(got.Summary))
	}
	if got.Summary[0].Terms[0].Term != "garlic" {
		t.Errorf("summary term: expected garlic, got %s", got.Summary[0].Terms[0].Term)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("created at: expected %v, got %v", rec.CreatedAt, got.CreatedAt)
	}
}

// TestGetRunMissing verifies the not-found sentinel surfaces through the
// wrapped error chain.
func TestGetRunMissing(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := newTestStore(t, db)

	_, err := store.GetRun(t.Context(), fmt.Sprintf("no-such-run-%d", time.Now().UnixNano()))
	if !errors.Is(err, apperrors.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

// TestListRunsNewestFirst saves two runs a minute apart and checks the
// listing order.
func TestListRunsNewestFirst(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := newTestStore(t, db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	older := testRunRecord(now.Add(-time.Minute))
	newer := testRunRecord(now)
	deleteRun(t, db, older.RunID)
	deleteRun(t, db, newer.RunID)

	if err := store.SaveRun(t.Context(), older); err != nil {
		t.Fatalf("saving older run: %v", err)
	}
	if err := store.SaveRun(t.Context(), newer); err != nil {
		t.Fatalf("saving newer run: %v", err)
	}

	runs, err := store.ListRuns(t.Context(), 1000)
	if err != nil {
		t.Fatalf("listing runs: %v", err)
	}

	olderIdx, newerIdx := -1, -1
	for i, info := range runs {
		switch info.RunID {
		case older.RunID:
			olderIdx = i
		case newer.RunID:
			newerIdx = i
		}
	}
	if olderIdx < 0 || newerIdx < 0 {
		t.Fatalf("saved runs missing from listing (older=%d newer=%d)", olderIdx, newerIdx)
	}
	if newerIdx > olderIdx {
		t.Errorf("expected newest first: newer at %d, older at %d", newerIdx, olderIdx)
	}
}

// TestDuplicateRunRejected verifies the run id primary key.
func TestDuplicateRunRejected(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := newTestStore(t, db)

	rec := testRunRecord(time.Now().UTC())
	deleteRun(t, db, rec.RunID)

	if err := store.SaveRun(t.Context(), rec); err != nil {
		t.Fatalf("saving run: %v", err)
	}
	if err := store.SaveRun(t.Context(), rec); err == nil {
		t.Fatal("expected duplicate run id to be rejected")
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

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
