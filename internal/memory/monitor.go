// File: internal/memory/monitor.go
package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MonitorOptions configures one monitored action.
type MonitorOptions struct {
	// EnableGC stabilizes the initial and final samples with a forced
	// collection when the instrumentation channel is available.
	EnableGC bool
	// SampleInterval is the cadence of the concurrent sampling loop.
	SampleInterval time.Duration
	// MaxSamples caps the number of in-flight samples; <= 0 means unlimited.
	MaxSamples int
	// GraceDelay is the settle time after the action before the final sample,
	// giving asynchronous cleanup (timers, microtasks) a chance to run.
	GraceDelay time.Duration
}

// Monitor measures heap behavior around a caller-supplied asynchronous action.
type Monitor struct {
	sampler *Sampler
	opts    MonitorOptions
	logger  *zap.Logger
}

// NewMonitor builds a Monitor over the given sampler.
func NewMonitor(sampler *Sampler, opts MonitorOptions, logger *zap.Logger) *Monitor {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 500 * time.Millisecond
	}
	return &Monitor{
		sampler: sampler,
		opts:    opts,
		logger:  logger.Named("monitor"),
	}
}

// MonitorAction samples the heap before, periodically during, and after the
// action. The sampling loop keeps running regardless of the action's outcome:
// if the action fails, the returned result still describes memory at time of
// failure, and the action's error is returned alongside it (and attached as
// ActionErr).
func (m *Monitor) MonitorAction(ctx context.Context, action func(ctx context.Context) error) (*ActionResult, error) {
	sampler := m.sampler
	if !m.opts.EnableGC {
		// Strip the forcing hook without mutating the shared sampler.
		plain := *sampler
		plain.gc = nil
		sampler = &plain
	}

	initial, err := sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take initial sample: %w", err)
	}

	// The sampling loop and the action run concurrently; stop tells the loop
	// the action has settled. The loop never contributes an error: a failed
	// in-flight read only costs one sample.
	stop := make(chan struct{})
	var during []Snapshot

	var g errgroup.Group
	g.Go(func() error {
		ticker := time.NewTicker(m.opts.SampleInterval)
		defer ticker.Stop()

		for taken := 0; m.opts.MaxSamples <= 0 || taken < m.opts.MaxSamples; {
			select {
			case <-stop:
				return nil
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				smp, err := m.sampler.read(ctx)
				if err != nil {
					m.logger.Debug("In-flight sample failed.", zap.Error(err))
					continue
				}
				during = append(during, Snapshot{Sample: smp, Phase: PhaseDuring})
				taken++
			}
		}
		return nil
	})

	start := time.Now()
	actionErr := action(ctx)
	duration := time.Since(start)

	close(stop)
	_ = g.Wait()

	if m.opts.GraceDelay > 0 {
		if err := m.sampler.page.WaitIdle(ctx, m.opts.GraceDelay); err != nil {
			return nil, err
		}
	}

	final, err := sampler.Sample(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take final sample: %w", err)
	}

	result := m.buildResult(initial, during, final, duration, actionErr)

	m.logger.Info("Action monitored.",
		zap.Float64("growth_mb", result.MemoryGrowthMB),
		zap.Float64("peak_mb", result.PeakMemoryMB),
		zap.Duration("action_duration", duration),
		zap.Int("in_flight_samples", len(during)),
		zap.Bool("action_failed", actionErr != nil),
	)

	return result, actionErr
}

func (m *Monitor) buildResult(initial Sample, during []Snapshot, final Sample, duration time.Duration, actionErr error) *ActionResult {
	snapshots := make([]Snapshot, 0, len(during)+2)
	snapshots = append(snapshots, Snapshot{Sample: initial, Phase: PhaseBaseline})
	snapshots = append(snapshots, during...)
	snapshots = append(snapshots, Snapshot{Sample: final, Phase: PhaseFinal})

	peak := 0.0
	for _, snap := range snapshots {
		if mb := snap.UsedMB(); mb > peak {
			peak = mb
		}
	}

	avgDuring := initial.UsedMB()
	if len(during) > 0 {
		sum := 0.0
		for _, snap := range during {
			sum += snap.UsedMB()
		}
		avgDuring = RoundMB(sum / float64(len(during)))
	}

	growth := RoundMB(final.UsedMB() - initial.UsedMB())
	summary := fmt.Sprintf("heap grew %.2f MB over %s (peak %.2f MB, %d in-flight samples)",
		growth, duration.Round(time.Millisecond), peak, len(during))
	if actionErr != nil {
		summary += "; action failed: " + actionErr.Error()
	}

	return &ActionResult{
		InitialMemoryMB: initial.UsedMB(),
		FinalMemoryMB:   final.UsedMB(),
		PeakMemoryMB:    peak,
		MemoryGrowthMB:  growth,
		AvgDuringMB:     avgDuring,
		ActionDuration:  duration,
		Snapshots:       snapshots,
		Summary:         summary,
		ActionErr:       actionErr,
	}
}
