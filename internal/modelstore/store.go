// Package modelstore persists completed topic model runs in PostgreSQL.
package modelstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/topicmine/platform/pkg/errors"
	"github.com/topicmine/platform/pkg/postgres"
)

// TermWeight pairs a resolved vocabulary token with its probability mass
// under one topic.
type TermWeight struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// TopicSummary lists the heaviest terms of one topic.
type TopicSummary struct {
	Topic int          `json:"topic"`
	Terms []TermWeight `json:"terms"`
}

// RunRecord is one persisted training run.
type RunRecord struct {
	RunID         string         `json:"run_id"`
	Topics        int            `json:"topics"`
	Alpha         float64        `json:"alpha"`
	Beta          float64        `json:"beta"`
	Seed          int64          `json:"seed"`
	Iterations    int            `json:"iterations"`
	State         string         `json:"state"`
	LogLikelihood float64        `json:"log_likelihood"`
	CorpusDocs    int64          `json:"corpus_docs"`
	CorpusTerms   int64          `json:"corpus_terms"`
	CorpusTokens  int64          `json:"corpus_tokens"`
	Summary       []TopicSummary `json:"summary"`
	CreatedAt     time.Time      `json:"created_at"`
}

// RunInfo is a listing row: a RunRecord without the per-topic summary.
type RunInfo struct {
	RunID         string    `json:"run_id"`
	Topics        int       `json:"topics"`
	Iterations    int       `json:"iterations"`
	State         string    `json:"state"`
	LogLikelihood float64   `json:"log_likelihood"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists training runs in PostgreSQL.
//
// It requires a `topic_model_runs` table, which EnsureSchema creates:
//
//	CREATE TABLE topic_model_runs (
//	    run_id         TEXT PRIMARY KEY,
//	    topics         INTEGER NOT NULL,
//	    alpha          DOUBLE PRECISION NOT NULL,
//	    beta           DOUBLE PRECISION NOT NULL,
//	    seed           BIGINT NOT NULL,
//	    iterations     INTEGER NOT NULL,
//	    state          TEXT NOT NULL,
//	    log_likelihood DOUBLE PRECISION NOT NULL,
//	    corpus_docs    BIGINT NOT NULL,
//	    corpus_terms   BIGINT NOT NULL,
//	    corpus_tokens  BIGINT NOT NULL,
//	    summary        JSONB NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a run persistence store.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "model-store"),
	}
}

// EnsureSchema creates the runs table and its index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS topic_model_runs (
			run_id         TEXT PRIMARY KEY,
			topics         INTEGER NOT NULL,
			alpha          DOUBLE PRECISION NOT NULL,
			beta           DOUBLE PRECISION NOT NULL,
			seed           BIGINT NOT NULL,
			iterations     INTEGER NOT NULL,
			state          TEXT NOT NULL,
			log_likelihood DOUBLE PRECISION NOT NULL,
			corpus_docs    BIGINT NOT NULL,
			corpus_terms   BIGINT NOT NULL,
			corpus_tokens  BIGINT NOT NULL,
			summary        JSONB NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("creating topic_model_runs table: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS topic_model_runs_created_at_idx
		ON topic_model_runs (created_at DESC)`)
	if err != nil {
		return fmt.Errorf("creating topic_model_runs index: %w", err)
	}
	return nil
}

// SaveRun persists one completed run.
func (s *Store) SaveRun(ctx context.Context, rec *RunRecord) error {
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.DB.ExecContext(ctx, `
		INSERT INTO topic_model_runs
			(run_id, topics, alpha, beta, seed, iterations, state,
			 log_likelihood, corpus_docs, corpus_terms, corpus_tokens,
			 summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.RunID, rec.Topics, rec.Alpha, rec.Beta, rec.Seed,
		rec.Iterations, rec.State, rec.LogLikelihood,
		rec.CorpusDocs, rec.CorpusTerms, rec.CorpusTokens,
		summary, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.RunID, err)
	}

	s.logger.Info("run saved",
		"run_id", rec.RunID,
		"topics", rec.Topics,
		"iterations", rec.Iterations,
		"state", rec.State,
	)
	return nil
}

// GetRun loads one run by id. A missing run yields ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.DB.QueryRowContext(ctx, `
		SELECT run_id, topics, alpha, beta, seed, iterations, state,
		       log_likelihood, corpus_docs, corpus_terms, corpus_tokens,
		       summary, created_at
		FROM topic_model_runs WHERE run_id = $1`, runID)

	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", runID, apperrors.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	return rec, nil
}

// LatestRun loads the most recently created run. An empty table yields
// ErrNoRuns.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	row := s.db.DB.QueryRowContext(ctx, `
		SELECT run_id, topics, alpha, beta, seed, iterations, state,
		       log_likelihood, corpus_docs, corpus_terms, corpus_tokens,
		       summary, created_at
		FROM topic_model_runs ORDER BY created_at DESC LIMIT 1`)

	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	return rec, nil
}

// ListRuns returns up to limit runs, newest first, without their summaries.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT run_id, topics, iterations, state, log_likelihood, created_at
		FROM topic_model_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		if err := rows.Scan(&info.RunID, &info.Topics, &info.Iterations,
			&info.State, &info.LogLikelihood, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

func scanRun(row *sql.Row) (*RunRecord, error) {
	var rec RunRecord
	var summary []byte
	err := row.Scan(&rec.RunID, &rec.Topics, &rec.Alpha, &rec.Beta, &rec.Seed,
		&rec.Iterations, &rec.State, &rec.LogLikelihood,
		&rec.CorpusDocs, &rec.CorpusTerms, &rec.CorpusTokens,
		&summary, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(summary, &rec.Summary); err != nil {
		return nil, fmt.Errorf("unmarshaling run summary: %w", err)
	}
	return &rec, nil
}
