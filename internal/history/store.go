// File: internal/history/store.go

// Package history persists run summaries in PostgreSQL so growth and score
// regressions can be detected across runs of the same scenario. The store is
// optional: when history is disabled or the database is unreachable, callers
// log and move on.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrNoRuns indicates the scenario has no recorded history yet.
var ErrNoRuns = errors.New("no recorded runs for scenario")

// Regression margins. Deltas inside these bands are treated as run-to-run
// noise, not regressions.
const (
	growthRegressionMarginMB = 5.0
	scoreRegressionMargin    = 5.0
)

// DBPool abstracts the pgxpool.Pool so pgxmock can stand in during tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Run is one persisted run summary.
type Run struct {
	ID               string          `json:"id"`
	Scenario         string          `json:"scenario"`
	Kind             string          `json:"kind"`
	URL              string          `json:"url"`
	Passed           bool            `json:"passed"`
	GrowthMB         float64         `json:"growthMB"`
	PerformanceScore float64         `json:"performanceScore"`
	Summary          json.RawMessage `json:"summary"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Delta compares a run against the most recent earlier run of its scenario.
type Delta struct {
	Current       *Run    `json:"current"`
	Baseline      *Run    `json:"baseline"`
	GrowthDeltaMB float64 `json:"growthDeltaMB"`
	ScoreDelta    float64 `json:"scoreDelta"`
	Regressed     bool    `json:"regressed"`
}

// Store is the PostgreSQL-backed run history.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("history")}, nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		kind TEXT NOT NULL,
		url TEXT NOT NULL,
		passed BOOLEAN NOT NULL,
		growth_mb DOUBLE PRECISION NOT NULL,
		performance_score DOUBLE PRECISION NOT NULL,
		summary JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS runs_scenario_created_idx
		ON runs (scenario, created_at DESC);
`

// EnsureSchema creates the runs table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure history schema: %w", err)
	}
	return nil
}

const insertRunSQL = `
	INSERT INTO runs (id, scenario, kind, url, passed, growth_mb, performance_score, summary, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`

// SaveRun records one run summary.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	summary := run.Summary
	if len(summary) == 0 || string(summary) == "null" {
		summary = json.RawMessage("{}")
	}

	_, err := s.pool.Exec(ctx, insertRunSQL,
		run.ID, run.Scenario, run.Kind, run.URL, run.Passed,
		run.GrowthMB, run.PerformanceScore, summary, run.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	s.log.Debug("Run recorded.", zap.String("id", run.ID), zap.String("scenario", run.Scenario))
	return nil
}

const latestRunSQL = `
	SELECT id, scenario, kind, url, passed, growth_mb, performance_score, summary, created_at
	FROM runs
	WHERE scenario = $1 AND created_at < $2
	ORDER BY created_at DESC
	LIMIT 1;
`

// LatestRun returns the most recent run of the scenario recorded before the
// given instant. ErrNoRuns when none exists.
func (s *Store) LatestRun(ctx context.Context, scenario string, before time.Time) (*Run, error) {
	var run Run
	err := s.pool.QueryRow(ctx, latestRunSQL, scenario, before.UTC()).Scan(
		&run.ID, &run.Scenario, &run.Kind, &run.URL, &run.Passed,
		&run.GrowthMB, &run.PerformanceScore, &run.Summary, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNoRuns, scenario)
		}
		return nil, fmt.Errorf("failed to query latest run for %s: %w", scenario, err)
	}
	return &run, nil
}

// CompareToBaseline looks up the run immediately preceding the given one and
// computes growth and score deltas. Positive GrowthDeltaMB means the heap
// grew more than last time; negative ScoreDelta means the score dropped.
func (s *Store) CompareToBaseline(ctx context.Context, run Run) (*Delta, error) {
	baseline, err := s.LatestRun(ctx, run.Scenario, run.CreatedAt)
	if err != nil {
		return nil, err
	}

	delta := &Delta{
		Current:       &run,
		Baseline:      baseline,
		GrowthDeltaMB: run.GrowthMB - baseline.GrowthMB,
		ScoreDelta:    run.PerformanceScore - baseline.PerformanceScore,
	}
	delta.Regressed = delta.GrowthDeltaMB > growthRegressionMarginMB ||
		delta.ScoreDelta < -scoreRegressionMargin

	if delta.Regressed {
		s.log.Warn("Run regressed against baseline.",
			zap.String("scenario", run.Scenario),
			zap.String("baseline", baseline.ID),
			zap.Float64("growthDeltaMB", delta.GrowthDeltaMB),
			zap.Float64("scoreDelta", delta.ScoreDelta),
		)
	}
	return delta, nil
}
