// File: internal/browser/instrumentation.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/heapprofiler"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Instrumentation is the low-level heap channel of a Session. It exposes the
// one capability the samplers need beyond page script: a best-effort forced
// garbage collection. Availability depends on the browser build; callers must
// treat a missing channel as degraded, not fatal.
type Instrumentation struct {
	sess   *Session
	logger *zap.Logger
}

// AttachInstrumentation enables the HeapProfiler domain on the session tab.
func (s *Session) AttachInstrumentation(ctx context.Context) (*Instrumentation, error) {
	attachCtx, cancel := s.operationContext(ctx, 0)
	defer cancel()

	err := chromedp.Run(attachCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return heapprofiler.Enable().Do(ctx)
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInstrumentationUnavailable, err)
	}

	s.logger.Debug("Heap instrumentation attached.")
	return &Instrumentation{sess: s, logger: s.logger.Named("instrumentation")}, nil
}

// ForceGC requests a garbage collection in the page. Best effort: an error
// here means the caller samples with noisier numbers, nothing more.
func (i *Instrumentation) ForceGC(ctx context.Context) error {
	gcCtx, cancel := i.sess.operationContext(ctx, 0)
	defer cancel()

	err := chromedp.Run(gcCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return heapprofiler.CollectGarbage().Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("collect garbage request failed: %w", err)
	}
	return nil
}

// Detach disables the HeapProfiler domain. Safe to call after a failed
// scenario; errors are reported but the session remains usable.
func (i *Instrumentation) Detach(ctx context.Context) error {
	detachCtx, cancel := i.sess.operationContext(ctx, 0)
	defer cancel()

	err := chromedp.Run(detachCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return heapprofiler.Disable().Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to disable heap profiler: %w", err)
	}
	return nil
}
