// File: internal/memory/navigation_test.go
package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voidhawk9x/leakhound/internal/memory"
)

func TestClassifySeverity_Bands(t *testing.T) {
	tests := []struct {
		growthMB float64
		want     memory.Severity
	}{
		{0, memory.SeverityLow},
		{6.0, memory.SeverityLow},
		{19.99, memory.SeverityLow},
		{20.0, memory.SeverityMedium},
		{49.999, memory.SeverityMedium},
		{50.0, memory.SeverityHigh},
		{99.99, memory.SeverityHigh},
		{100.0, memory.SeverityCritical},
		{250.0, memory.SeverityCritical},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, memory.ClassifySeverity(tt.growthMB),
			"growth %v MB", tt.growthMB)
	}
}

func TestRun_StableAppPasses(t *testing.T) {
	// An app that releases all references between navigations: counters
	// never move.
	page := newFakePage(40, 60, 2048)
	sampler := memory.NewSampler(page, &fakeGC{}, 0, zap.NewNop())
	detector := memory.NewLeakDetector(page, sampler, memory.LeakOptions{
		Iterations:         3,
		EnableGC:           true,
		MaxAllowedGrowthMB: 50,
	}, zap.NewNop())

	result, err := detector.Run(context.Background(), []string{"/dashboard"})
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, memory.SeverityLow, result.Severity)
	assert.Equal(t, 0.0, result.TotalGrowthMB)
	assert.Equal(t, 0.0, result.GrowthBetweenIterationsMB)
}

func TestRun_ConcreteLeakScenario(t *testing.T) {
	// Baseline 40 MB; 2 MB retained at the end of each of 3 iterations over
	// three routes; final heap 46 MB.
	page := newFakePage(40, 120, 2048)
	page.onNavigate = func(url string) {
		if strings.HasSuffix(url, "/b") {
			page.addUsed(2 * mb)
		}
	}
	sampler := memory.NewSampler(page, &fakeGC{}, 0, zap.NewNop())
	detector := memory.NewLeakDetector(page, sampler, memory.LeakOptions{
		Iterations:         3,
		EnableGC:           true,
		MaxAllowedGrowthMB: 50,
	}, zap.NewNop())

	result, err := detector.Run(context.Background(), []string{"/", "/a", "/b"})
	require.NoError(t, err)

	assert.Equal(t, 40.0, result.BaselineMemoryMB)
	assert.Equal(t, 46.0, result.FinalMemoryMB)
	assert.Equal(t, 6.0, result.TotalGrowthMB)
	assert.True(t, result.Passed, "6 MB growth is under the 50 MB budget")
	assert.Equal(t, memory.SeverityLow, result.Severity)

	// Iteration means: {40,40,42} -> 40.67, {42,42,44} -> 42.67, {44,44,46} -> 44.67.
	require.Len(t, result.AvgMemoryPerIteration, 3)
	assert.Equal(t, 40.67, result.AvgMemoryPerIteration[0])
	assert.Equal(t, 44.67, result.AvgMemoryPerIteration[2])
	assert.Equal(t, 4.0, result.GrowthBetweenIterationsMB)
}

func TestRun_IterationMajorOrdering(t *testing.T) {
	page := newFakePage(40, 60, 2048)
	sampler := memory.NewSampler(page, &fakeGC{}, 0, zap.NewNop())
	detector := memory.NewLeakDetector(page, sampler, memory.LeakOptions{
		Iterations:         2,
		EnableGC:           true,
		MaxAllowedGrowthMB: 50,
	}, zap.NewNop())

	_, err := detector.Run(context.Background(), []string{"/x", "/y"})
	require.NoError(t, err)

	// Full route list completes before the iteration counter advances.
	assert.Equal(t, []string{"/x", "/y", "/x", "/y"}, page.navigated())
}

func TestRun_SnapshotTagging(t *testing.T) {
	page := newFakePage(40, 60, 2048)
	sampler := memory.NewSampler(page, &fakeGC{}, 0, zap.NewNop())
	detector := memory.NewLeakDetector(page, sampler, memory.LeakOptions{
		Iterations:         2,
		EnableGC:           true,
		MaxAllowedGrowthMB: 50,
	}, zap.NewNop())

	result, err := detector.Run(context.Background(), []string{"/only"})
	require.NoError(t, err)

	// baseline + 2 navigation samples + final
	require.Len(t, result.Snapshots, 4)
	assert.Equal(t, memory.PhaseBaseline, result.Snapshots[0].Phase)
	assert.Equal(t, memory.PhaseNavigation, result.Snapshots[1].Phase)
	assert.Equal(t, 0, result.Snapshots[1].Iteration)
	assert.Equal(t, "/only", result.Snapshots[1].Route)
	assert.Equal(t, 1, result.Snapshots[2].Iteration)
	assert.Equal(t, memory.PhaseFinal, result.Snapshots[3].Phase)
}

func TestRun_GrowthOverBudgetFails(t *testing.T) {
	page := newFakePage(40, 250, 2048)
	page.onNavigate = func(string) { page.addUsed(20 * mb) }
	sampler := memory.NewSampler(page, &fakeGC{}, 0, zap.NewNop())
	detector := memory.NewLeakDetector(page, sampler, memory.LeakOptions{
		Iterations:         3,
		EnableGC:           true,
		MaxAllowedGrowthMB: 50,
	}, zap.NewNop())

	result, err := detector.Run(context.Background(), []string{"/leaky"})
	require.NoError(t, err)

	// 3 navigations x 20 MB = 60 MB of growth.
	assert.Equal(t, 60.0, result.TotalGrowthMB)
	assert.False(t, result.Passed)
	assert.Equal(t, memory.SeverityHigh, result.Severity)
}

func TestRun_NoRoutes(t *testing.T) {
	page := newFakePage(40, 60, 2048)
	sampler := memory.NewSampler(page, &fakeGC{}, 0, zap.NewNop())
	detector := memory.NewLeakDetector(page, sampler, memory.LeakOptions{Iterations: 1}, zap.NewNop())

	_, err := detector.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no routes")
}
