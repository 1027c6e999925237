// File: internal/history/store_test.go
package history

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for SQL mocks.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

var runColumns = []string{
	"id", "scenario", "kind", "url", "passed",
	"growth_mb", "performance_score", "summary", "created_at",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	store, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return store, mockPool
}

func TestNew_PingFailurePropagates(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	store, mockPool := newMockStore(t)
	createdAt := time.Date(2025, 6, 12, 10, 30, 0, 0, time.UTC)

	mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
		WithArgs("run-1", "leakcheck:app", "leakcheck", "https://app.example.com",
			true, 6.0, 0.0, json.RawMessage(`{"passed":true}`), createdAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.SaveRun(context.Background(), Run{
		ID:        "run-1",
		Scenario:  "leakcheck:app",
		Kind:      "leakcheck",
		URL:       "https://app.example.com",
		Passed:    true,
		GrowthMB:  6.0,
		Summary:   json.RawMessage(`{"passed":true}`),
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveRun_EmptySummaryBecomesObject(t *testing.T) {
	store, mockPool := newMockStore(t)
	createdAt := time.Date(2025, 6, 12, 10, 30, 0, 0, time.UTC)

	mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
		WithArgs("run-2", "audit:app", "audit", "https://app.example.com",
			false, 0.0, 61.0, json.RawMessage("{}"), createdAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.SaveRun(context.Background(), Run{
		ID:               "run-2",
		Scenario:         "audit:app",
		Kind:             "audit",
		URL:              "https://app.example.com",
		PerformanceScore: 61.0,
		CreatedAt:        createdAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestLatestRun_NoHistory(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectQuery(flexibleSQLMatcher(latestRunSQL)).
		WithArgs("leakcheck:app", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.LatestRun(context.Background(), "leakcheck:app", time.Now())
	require.ErrorIs(t, err, ErrNoRuns)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCompareToBaseline_DetectsGrowthRegression(t *testing.T) {
	store, mockPool := newMockStore(t)
	now := time.Date(2025, 6, 12, 10, 30, 0, 0, time.UTC)
	earlier := now.Add(-24 * time.Hour)

	mockPool.ExpectQuery(flexibleSQLMatcher(latestRunSQL)).
		WithArgs("leakcheck:app", now).
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			"run-1", "leakcheck:app", "leakcheck", "https://app.example.com",
			true, 6.0, 0.0, json.RawMessage("{}"), earlier,
		))

	delta, err := store.CompareToBaseline(context.Background(), Run{
		ID:        "run-2",
		Scenario:  "leakcheck:app",
		Kind:      "leakcheck",
		GrowthMB:  18.0,
		CreatedAt: now,
	})
	require.NoError(t, err)

	assert.Equal(t, 12.0, delta.GrowthDeltaMB)
	assert.True(t, delta.Regressed, "12 MB extra growth is past the 5 MB noise margin")
	assert.Equal(t, "run-1", delta.Baseline.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCompareToBaseline_NoiseStaysUnflagged(t *testing.T) {
	store, mockPool := newMockStore(t)
	now := time.Date(2025, 6, 12, 10, 30, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	mockPool.ExpectQuery(flexibleSQLMatcher(latestRunSQL)).
		WithArgs("audit:app", now).
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			"run-1", "audit:app", "audit", "https://app.example.com",
			true, 0.0, 92.0, json.RawMessage("{}"), earlier,
		))

	delta, err := store.CompareToBaseline(context.Background(), Run{
		ID:               "run-2",
		Scenario:         "audit:app",
		Kind:             "audit",
		PerformanceScore: 89.0,
		CreatedAt:        now,
	})
	require.NoError(t, err)

	assert.Equal(t, -3.0, delta.ScoreDelta)
	assert.False(t, delta.Regressed, "a 3 point dip is inside the noise margin")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestCompareToBaseline_ScoreDropRegresses(t *testing.T) {
	store, mockPool := newMockStore(t)
	now := time.Date(2025, 6, 12, 10, 30, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	mockPool.ExpectQuery(flexibleSQLMatcher(latestRunSQL)).
		WithArgs("audit:app", now).
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			"run-1", "audit:app", "audit", "https://app.example.com",
			true, 0.0, 92.0, json.RawMessage("{}"), earlier,
		))

	delta, err := store.CompareToBaseline(context.Background(), Run{
		ID:               "run-2",
		Scenario:         "audit:app",
		Kind:             "audit",
		PerformanceScore: 80.0,
		CreatedAt:        now,
	})
	require.NoError(t, err)

	assert.Equal(t, -12.0, delta.ScoreDelta)
	assert.True(t, delta.Regressed)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	store, mockPool := newMockStore(t)

	mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
