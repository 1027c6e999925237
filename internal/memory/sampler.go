// File: internal/memory/sampler.go
package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Page is the minimal page-handle capability the samplers need. The browser
// Session satisfies it; tests supply fakes.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, expr string, out any) error
	WaitIdle(ctx context.Context, d time.Duration) error
}

// Collector is the best-effort forced-GC capability of the instrumentation
// channel. A nil Collector means the channel is unavailable and sampling runs
// degraded (noisier numbers, never an error).
type Collector interface {
	ForceGC(ctx context.Context) error
}

// heapCountersJS reads the in-page performance counters. The properties live
// on the prototype, so they are copied into a plain object explicitly.
const heapCountersJS = `({
    usedJSHeapSize: performance.memory ? performance.memory.usedJSHeapSize : 0,
    totalJSHeapSize: performance.memory ? performance.memory.totalJSHeapSize : 0,
    jsHeapSizeLimit: performance.memory ? performance.memory.jsHeapSizeLimit : 0
})`

type heapCounters struct {
	UsedJSHeapSize  uint64 `json:"usedJSHeapSize"`
	TotalJSHeapSize uint64 `json:"totalJSHeapSize"`
	JSHeapSizeLimit uint64 `json:"jsHeapSizeLimit"`
}

// Sampler produces GC-stabilized point-in-time heap samples.
type Sampler struct {
	page    Page
	gc      Collector
	settle  time.Duration
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewSampler builds a sampler over the given page. gc may be nil when the
// instrumentation channel could not be attached.
func NewSampler(page Page, gc Collector, settle time.Duration, logger *zap.Logger) *Sampler {
	return &Sampler{
		page:    page,
		gc:      gc,
		settle:  settle,
		logger:  logger.Named("sampler"),
		nowFunc: time.Now,
	}
}

// Sample takes one GC-stabilized reading. When forced collection is
// unavailable or fails, it logs a warning and reads anyway; the degraded path
// never aborts the caller.
func (s *Sampler) Sample(ctx context.Context) (Sample, error) {
	if s.gc != nil {
		if err := s.gc.ForceGC(ctx); err != nil {
			s.logger.Warn("Forced GC failed; sampling without collection.", zap.Error(err))
		} else if s.settle > 0 {
			if err := s.page.WaitIdle(ctx, s.settle); err != nil {
				return Sample{}, err
			}
		}
	}
	return s.read(ctx)
}

// read takes a raw reading without GC stabilization. Used by the monitor's
// in-flight sampling loop, where forcing collection would distort the very
// allocations under observation.
func (s *Sampler) read(ctx context.Context) (Sample, error) {
	var counters heapCounters
	if err := s.page.Evaluate(ctx, heapCountersJS, &counters); err != nil {
		return Sample{}, fmt.Errorf("failed to read heap counters: %w", err)
	}

	return Sample{
		UsedBytes:  counters.UsedJSHeapSize,
		TotalBytes: counters.TotalJSHeapSize,
		LimitBytes: counters.JSHeapSizeLimit,
		CapturedAt: s.nowFunc(),
	}, nil
}
