// File: internal/audit/auditor.go
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ErrAudit indicates the external audit engine failed or returned an unusable
// report. Fatal to the current scenario, but isolated: other scenarios'
// artifacts are unaffected.
var ErrAudit = errors.New("performance audit failed")

// coreWebVitalAudits names the timing audits surfaced as core web vitals.
var coreWebVitalAudits = []string{
	"first-contentful-paint",
	"largest-contentful-paint",
	"total-blocking-time",
	"cumulative-layout-shift",
	"speed-index",
	"interactive",
}

// maxOpportunities caps the ranked optimization findings in a result.
const maxOpportunities = 5

// Page is the page-handle capability a pre-audit script receives. Kept
// abstract so scripts stay portable across automation layers.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, expr string, out any) error
	WaitIdle(ctx context.Context, d time.Duration) error
}

// Metric is one named core-web-vital reading.
type Metric struct {
	DisplayValue string  `json:"value"`
	NumericValue float64 `json:"numericValue"`
	Score        float64 `json:"score"`
}

// Opportunity is one optimization finding, ranked by estimated savings.
type Opportunity struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	SavingsDisplay string  `json:"savingsDisplay"`
	SavingsMs      float64 `json:"savingsMs"`
	Score          float64 `json:"score"`
}

// Result is the outcome of one performance audit run. Immutable once built.
type Result struct {
	URL            string             `json:"url"`
	CategoryScores map[string]float64 `json:"categoryScores"`
	CoreWebVitals  map[string]Metric  `json:"coreWebVitals"`
	Opportunities  []Opportunity      `json:"opportunities"`
	Thresholds     map[string]float64 `json:"thresholds,omitempty"`
	Verdicts       []Verdict          `json:"verdicts,omitempty"`
	Passed         bool               `json:"passed"`
	GeneratedAt    time.Time          `json:"generatedAt"`

	RawJSON    json.RawMessage `json:"-"`
	ReportHTML []byte          `json:"-"`
}

// RunOptions configures one audit run.
type RunOptions struct {
	// PreAudit, when set, is replayed against the session page before the
	// engine runs: the audit then measures the post-interaction state. The
	// auditor sequences the script, it never interprets it.
	PreAudit func(ctx context.Context, page Page) error
	// Settings are passed through to the engine.
	Settings Settings
	// Thresholds, when non-empty, gate the run's pass/fail.
	Thresholds map[string]float64
}

// Auditor produces category scores and core timing metrics for a URL.
type Auditor struct {
	engine Engine
	page   Page // may be nil when no pre-audit interaction is needed
	logger *zap.Logger
}

// New builds an Auditor. page may be nil; runs with a PreAudit script then
// fail fast.
func New(engine Engine, page Page, logger *zap.Logger) *Auditor {
	return &Auditor{engine: engine, page: page, logger: logger.Named("auditor")}
}

// Run audits the URL, optionally replaying a pre-audit interaction first.
func (a *Auditor) Run(ctx context.Context, url string, opts RunOptions) (*Result, error) {
	if opts.PreAudit != nil {
		if a.page == nil {
			return nil, fmt.Errorf("%w: pre-audit script supplied without a page", ErrAudit)
		}
		if err := a.page.Navigate(ctx, url); err != nil {
			return nil, fmt.Errorf("%w: pre-audit navigation: %v", ErrAudit, err)
		}
		if err := opts.PreAudit(ctx, a.page); err != nil {
			return nil, fmt.Errorf("%w: pre-audit script: %v", ErrAudit, err)
		}
		if err := a.page.WaitIdle(ctx, 0); err != nil {
			return nil, fmt.Errorf("%w: pre-audit settle: %v", ErrAudit, err)
		}
	}

	report, err := a.engine.Audit(ctx, url, opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAudit, err)
	}
	if len(report.Categories) == 0 {
		return nil, fmt.Errorf("%w: engine returned no categories for %s", ErrAudit, url)
	}

	result := a.buildResult(url, report, opts.Thresholds)

	a.logger.Info("Audit complete.",
		zap.String("url", url),
		zap.Any("scores", result.CategoryScores),
		zap.Bool("passed", result.Passed),
	)
	return result, nil
}

func (a *Auditor) buildResult(url string, report *RawReport, thresholds map[string]float64) *Result {
	scores := make(map[string]float64, len(report.Categories))
	for id, cat := range report.Categories {
		scores[id] = cat.Score * 100
	}

	vitals := make(map[string]Metric)
	for _, id := range coreWebVitalAudits {
		item, ok := report.Audits[id]
		if !ok {
			continue
		}
		score := 0.0
		if item.Score != nil {
			score = *item.Score
		}
		vitals[id] = Metric{
			DisplayValue: item.DisplayValue,
			NumericValue: item.NumericValue,
			Score:        score,
		}
	}

	opportunities := rankOpportunities(report.Audits)

	result := &Result{
		URL:            url,
		CategoryScores: scores,
		CoreWebVitals:  vitals,
		Opportunities:  opportunities,
		Thresholds:     thresholds,
		Passed:         true,
		GeneratedAt:    time.Now().UTC(),
		RawJSON:        report.RawJSON,
		ReportHTML:     report.ReportHTML,
	}
	if len(thresholds) > 0 {
		result.Verdicts, result.Passed = CheckThresholds(scores, thresholds)
	}
	return result
}

// rankOpportunities picks the audits flagged as opportunities with nonzero
// potential savings, sorted descending, truncated to the top five.
func rankOpportunities(audits map[string]AuditItem) []Opportunity {
	var found []Opportunity
	for _, item := range audits {
		if item.Details == nil || item.Details.Type != "opportunity" || item.Details.OverallSavingsMs <= 0 {
			continue
		}
		score := 0.0
		if item.Score != nil {
			score = *item.Score
		}
		found = append(found, Opportunity{
			Title:          item.Title,
			Description:    item.Description,
			SavingsDisplay: item.DisplayValue,
			SavingsMs:      item.Details.OverallSavingsMs,
			Score:          score,
		})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].SavingsMs != found[j].SavingsMs {
			return found[i].SavingsMs > found[j].SavingsMs
		}
		return found[i].Title < found[j].Title
	})
	if len(found) > maxOpportunities {
		found = found[:maxOpportunities]
	}
	return found
}
