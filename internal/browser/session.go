// File: internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voidhawk9x/leakhound/internal/config"
)

var (
	// ErrLaunch indicates the browser process could not be started or did not
	// respond. Fatal: no measurement can be taken without a browser.
	ErrLaunch = errors.New("browser launch failed")

	// ErrInstrumentationUnavailable indicates the heap instrumentation channel
	// could not be enabled. Callers degrade to sampling without forced GC.
	ErrInstrumentationUnavailable = errors.New("heap instrumentation unavailable")
)

// Session owns one headless Chrome process and one isolated tab. Heap
// measurements from one scenario must not share a process with another, so a
// Session is used sequentially by exactly one scenario and released on every
// exit path.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the browser process; tabCtx is the single tab
	// derived from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	tabCtx          context.Context
	tabCancel       context.CancelFunc

	isClosed bool
	mu       sync.Mutex
}

// Launch starts the browser process, opens one tab, and verifies it responds.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	s := &Session{
		id:     uuid.New().String(),
		cfg:    cfg,
		logger: logger.Named("browser").With(zap.String("session_id", uuid.NewString()[:8])),
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, buildAllocatorOptions(cfg)...)
	s.allocatorCtx = allocCtx
	s.allocatorCancel = allocCancel

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel

	launchTimeout := cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}

	// Run a trivial task to confirm the process started and the tab responds.
	probeCtx, cancelProbe := context.WithTimeout(tabCtx, launchTimeout)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	s.logger.Info("Browser launched and responsive.")
	return s, nil
}

// chromeFlag is one command-line flag for the browser process, kept as a
// name/value pair so the assembled set stays inspectable in tests.
type chromeFlag struct {
	name  string
	value any
}

// measurementFlags assembles the Chrome flags for a deterministic measurement
// environment. The expose-gc and precise-memory-info flags give the
// instrumentation channel its forcing hook and byte-accurate counters.
func measurementFlags(cfg config.BrowserConfig) []chromeFlag {
	flags := []chromeFlag{
		{"headless", cfg.Headless},
		{"disable-gpu", cfg.Headless},
		{"ignore-certificate-errors", cfg.IgnoreTLSErrors},
		{"disable-extensions", true},
		{"js-flags", "--expose-gc"},
		{"enable-precise-memory-info", true},
	}

	// Custom arguments from config, "--name=value" or "--name".
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			flags = append(flags, chromeFlag{flagName, parts[1]})
		} else {
			flags = append(flags, chromeFlag{flagName, true})
		}
	}

	// Flags required when running inside containers.
	if runtime.GOOS == "linux" {
		flags = append(flags,
			chromeFlag{"no-sandbox", true},
			chromeFlag{"disable-dev-shm-usage", true},
		)
	}

	return flags
}

func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range measurementFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// ID returns the unique identifier for this session.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads a URL in the session tab and waits for the document plus the
// configured post-load settle time.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))

	navTimeout := s.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	navCtx, cancel := s.operationContext(ctx, navTimeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.PostLoadWait),
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page and unmarshals the result
// into out. Pass nil to discard the result.
func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	evalCtx, cancel := s.operationContext(ctx, 0)
	defer cancel()

	if err := chromedp.Run(evalCtx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// WaitIdle waits a fixed settle duration, respecting both the caller's
// deadline and the session lifecycle.
func (s *Session) WaitIdle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = s.cfg.PostLoadWait
	}
	idleCtx, cancel := s.operationContext(ctx, 0)
	defer cancel()

	select {
	case <-time.After(d):
		return nil
	case <-idleCtx.Done():
		return idleCtx.Err()
	}
}

// operationContext derives a context from the tab that is also canceled when
// the caller's context ends, optionally bounded by a timeout.
func (s *Session) operationContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	combined, cancel := combineContext(s.tabCtx, ctx)
	if timeout <= 0 {
		return combined, cancel
	}
	timed, timedCancel := context.WithTimeout(combined, timeout)
	return timed, func() {
		timedCancel()
		cancel()
	}
}

// Close terminates the tab and the browser process. Idempotent and tolerant
// of partial initialization.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	tabCtx := s.tabCtx
	tabCancel := s.tabCancel
	allocCancel := s.allocatorCancel
	s.mu.Unlock()

	if tabCancel != nil {
		tabCancel()
	}

	if tabCtx != nil {
		waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
		defer cancelWait()
		select {
		case <-tabCtx.Done():
			s.logger.Debug("Browser tab closed gracefully.")
		case <-waitCtx.Done():
			s.logger.Warn("Deadline exceeded waiting for browser tab to close.", zap.Error(waitCtx.Err()))
		}
	}

	if allocCancel != nil {
		allocCancel()
	}
	s.logger.Info("Browser session closed.")
	return nil
}

// combineContext creates a context canceled when either parent is canceled.
func combineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
