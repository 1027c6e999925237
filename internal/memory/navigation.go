// File: internal/memory/navigation.go
package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LeakOptions configures a navigation leak sweep.
type LeakOptions struct {
	// Iterations is how many full passes over the route list to run.
	Iterations int
	// WaitBetweenNavigations is the settle time after each page load.
	WaitBetweenNavigations time.Duration
	// EnableGC stabilizes every sample with a forced collection when the
	// instrumentation channel is available.
	EnableGC bool
	// MaxAllowedGrowthMB is the pass/fail budget for total growth.
	MaxAllowedGrowthMB float64
}

// LeakDetector detects cumulative memory growth from repeated navigation, the
// canonical leak scenario: route-scoped listeners and timers that are never
// released on unmount accumulate across sweeps.
type LeakDetector struct {
	page    Page
	sampler *Sampler
	opts    LeakOptions
	logger  *zap.Logger
}

// NewLeakDetector builds a detector over the given page and sampler.
func NewLeakDetector(page Page, sampler *Sampler, opts LeakOptions, logger *zap.Logger) *LeakDetector {
	if opts.Iterations <= 0 {
		opts.Iterations = 3
	}
	if opts.MaxAllowedGrowthMB <= 0 {
		opts.MaxAllowedGrowthMB = 50
	}
	return &LeakDetector{
		page:    page,
		sampler: sampler,
		opts:    opts,
		logger:  logger.Named("leakdetector"),
	}
}

// Run sweeps the route list Iterations times, iteration-major: the full route
// list completes before the iteration counter advances. Every navigation is
// followed by a settle wait and a stabilized sample tagged (route, iteration).
func (d *LeakDetector) Run(ctx context.Context, routes []string) (*LeakResult, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("no routes to test")
	}

	sampler := d.sampler
	if !d.opts.EnableGC {
		plain := *sampler
		plain.gc = nil
		sampler = &plain
	}

	baseline, err := sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take baseline sample: %w", err)
	}

	snapshots := []Snapshot{{Sample: baseline, Phase: PhaseBaseline}}

	for iteration := 0; iteration < d.opts.Iterations; iteration++ {
		for _, route := range routes {
			if err := d.page.Navigate(ctx, route); err != nil {
				return nil, fmt.Errorf("navigation failed (iteration %d, route %s): %w", iteration, route, err)
			}
			if d.opts.WaitBetweenNavigations > 0 {
				if err := d.page.WaitIdle(ctx, d.opts.WaitBetweenNavigations); err != nil {
					return nil, err
				}
			}

			smp, err := sampler.Sample(ctx)
			if err != nil {
				return nil, fmt.Errorf("sampling failed (iteration %d, route %s): %w", iteration, route, err)
			}
			snapshots = append(snapshots, Snapshot{
				Sample:    smp,
				Phase:     PhaseNavigation,
				Iteration: iteration,
				Route:     route,
			})
		}
		d.logger.Debug("Sweep iteration complete.", zap.Int("iteration", iteration))
	}

	final, err := sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take final sample: %w", err)
	}
	snapshots = append(snapshots, Snapshot{Sample: final, Phase: PhaseFinal})

	result := d.buildResult(baseline, final, routes, snapshots)

	d.logger.Info("Navigation leak sweep complete.",
		zap.Float64("total_growth_mb", result.TotalGrowthMB),
		zap.Float64("inter_iteration_growth_mb", result.GrowthBetweenIterationsMB),
		zap.String("severity", string(result.Severity)),
		zap.Bool("passed", result.Passed),
	)

	return result, nil
}

func (d *LeakDetector) buildResult(baseline, final Sample, routes []string, snapshots []Snapshot) *LeakResult {
	totalGrowth := RoundMB(final.UsedMB() - baseline.UsedMB())

	// Mean used-heap per iteration. The delta between the last and first
	// iteration isolates a genuinely accumulating leak from one-time warm-up
	// allocation, which inflates total growth but not the iteration trend.
	avgPerIteration := make([]float64, d.opts.Iterations)
	counts := make([]int, d.opts.Iterations)
	for _, snap := range snapshots {
		if snap.Phase != PhaseNavigation {
			continue
		}
		avgPerIteration[snap.Iteration] += snap.UsedMB()
		counts[snap.Iteration]++
	}
	for i := range avgPerIteration {
		if counts[i] > 0 {
			avgPerIteration[i] = RoundMB(avgPerIteration[i] / float64(counts[i]))
		}
	}

	interIterationGrowth := 0.0
	if d.opts.Iterations >= 2 {
		interIterationGrowth = RoundMB(avgPerIteration[d.opts.Iterations-1] - avgPerIteration[0])
	}

	return &LeakResult{
		BaselineMemoryMB:          baseline.UsedMB(),
		FinalMemoryMB:             final.UsedMB(),
		TotalGrowthMB:             totalGrowth,
		GrowthBetweenIterationsMB: interIterationGrowth,
		Iterations:                d.opts.Iterations,
		RoutesTested:              routes,
		Passed:                    totalGrowth < d.opts.MaxAllowedGrowthMB,
		Severity:                  ClassifySeverity(totalGrowth),
		AvgMemoryPerIteration:     avgPerIteration,
		Snapshots:                 snapshots,
	}
}
