// File: cmd/scenario.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/voidhawk9x/leakhound/internal/browser"
	"github.com/voidhawk9x/leakhound/internal/history"
	"github.com/voidhawk9x/leakhound/internal/memory"
)

// measurementSession bundles the browser session with its sampling chain so
// every command wires and releases them the same way.
type measurementSession struct {
	Session *browser.Session
	Sampler *memory.Sampler

	instr  *browser.Instrumentation
	logger *zap.Logger
}

// startMeasurementSession launches a browser and attaches the heap sampling
// chain. An unavailable instrumentation channel degrades to sampling without
// forced GC; only a launch failure is fatal.
func startMeasurementSession(ctx context.Context, logger *zap.Logger) (*measurementSession, error) {
	sess, err := browser.Launch(ctx, appCfg.Browser, logger)
	if err != nil {
		return nil, err
	}

	ms := &measurementSession{Session: sess, logger: logger}

	var collector memory.Collector
	if appCfg.Sampling.EnableGC {
		instr, err := sess.AttachInstrumentation(ctx)
		if err != nil {
			if !errors.Is(err, browser.ErrInstrumentationUnavailable) {
				_ = sess.Close(ctx)
				return nil, err
			}
			logger.Warn("Heap instrumentation unavailable, sampling without forced GC.", zap.Error(err))
		} else {
			ms.instr = instr
			collector = instr
		}
	}

	ms.Sampler = memory.NewSampler(sess, collector, appCfg.Sampling.SettleDelay, logger)
	return ms, nil
}

// Shutdown releases the instrumentation channel and the browser process. Safe
// to call on every exit path.
func (ms *measurementSession) Shutdown(ctx context.Context) {
	// Bounded so a wedged browser cannot hold the process open.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if ms.instr != nil {
		if err := ms.instr.Detach(shutdownCtx); err != nil {
			ms.logger.Debug("Instrumentation detach failed during shutdown.", zap.Error(err))
		}
	}
	if err := ms.Session.Close(shutdownCtx); err != nil {
		ms.logger.Warn("Browser session close failed.", zap.Error(err))
	}
}

// recordHistory persists the run summary and logs the delta against the
// previous run of the same scenario. Best effort: history never fails a run.
func recordHistory(ctx context.Context, logger *zap.Logger, run history.Run) {
	if !appCfg.History.Enabled {
		return
	}

	pool, err := pgxpool.New(ctx, appCfg.History.DatabaseURL)
	if err != nil {
		logger.Warn("History store unreachable, skipping run recording.", zap.Error(err))
		return
	}
	defer pool.Close()

	store, err := history.New(ctx, pool, logger)
	if err != nil {
		logger.Warn("History store unreachable, skipping run recording.", zap.Error(err))
		return
	}
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Warn("History schema setup failed, skipping run recording.", zap.Error(err))
		return
	}
	if err := store.SaveRun(ctx, run); err != nil {
		logger.Warn("Failed to record run.", zap.Error(err))
		return
	}

	delta, err := store.CompareToBaseline(ctx, run)
	if err != nil {
		if !errors.Is(err, history.ErrNoRuns) {
			logger.Warn("Baseline comparison failed.", zap.Error(err))
		}
		return
	}
	logger.Info("Compared against previous run.",
		zap.String("baseline", delta.Baseline.ID),
		zap.Float64("growthDeltaMB", delta.GrowthDeltaMB),
		zap.Float64("scoreDelta", delta.ScoreDelta),
		zap.Bool("regressed", delta.Regressed),
	)
}

// resolveRoutes turns route paths into absolute URLs against the base.
// Absolute routes pass through untouched.
func resolveRoutes(base string, routes []string) ([]string, error) {
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme == "" {
		return nil, fmt.Errorf("invalid base URL %q", base)
	}

	resolved := make([]string, 0, len(routes))
	for _, r := range routes {
		ref, err := url.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("invalid route %q: %w", r, err)
		}
		resolved = append(resolved, baseURL.ResolveReference(ref).String())
	}
	return resolved, nil
}
