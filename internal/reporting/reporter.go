// File: internal/reporting/reporter.go

// Package reporting persists run results as timestamped artifacts: a full
// raw-data document, a compact summary, and the engine's HTML report when one
// exists. Artifact writes are best effort; a failed write never invalidates
// the in-memory result.
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/voidhawk9x/leakhound/internal/audit"
	"github.com/voidhawk9x/leakhound/internal/memory"
)

var artifactJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Artifacts holds the paths Generate derives for one run. A path is always
// populated even when its write failed; callers treat the files as advisory.
type Artifacts struct {
	FullReportPath string `json:"fullReportPath"`
	RawDataPath    string `json:"rawDataPath"`
	SummaryPath    string `json:"summaryPath"`
}

// MemorySummary condenses a leak or monitor result for the summary artifact.
type MemorySummary struct {
	BaselineMB            float64         `json:"baselineMB"`
	FinalMB               float64         `json:"finalMB"`
	TotalGrowthMB         float64         `json:"totalGrowthMB"`
	InterIterationMB      float64         `json:"growthBetweenIterationsMB,omitempty"`
	PeakMB                float64         `json:"peakMB,omitempty"`
	Severity              memory.Severity `json:"severityLevel,omitempty"`
	Iterations            int             `json:"iterations,omitempty"`
	RoutesTested          []string        `json:"routesTested,omitempty"`
	AvgMemoryPerIteration []float64       `json:"avgMemoryPerIteration,omitempty"`
}

// Summary is the compact, human-diffable artifact written next to the raw
// data. Only the sections relevant to the run kind are populated.
type Summary struct {
	Kind        string    `json:"kind"`
	RunID       string    `json:"runId,omitempty"`
	URL         string    `json:"url,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
	Passed      bool      `json:"passed"`

	CategoryScores map[string]float64      `json:"categoryScores,omitempty"`
	CoreWebVitals  map[string]audit.Metric `json:"coreWebVitals,omitempty"`
	Opportunities  []audit.Opportunity     `json:"opportunities,omitempty"`
	Verdicts       []audit.Verdict         `json:"verdicts,omitempty"`

	Memory *MemorySummary `json:"memory,omitempty"`
}

// Report pairs a summary with the full raw document and optional HTML.
type Report struct {
	Summary Summary
	// Raw is the complete result document. When nil, Generate marshals the
	// summary in its place so the raw artifact is never empty.
	Raw any
	// HTML is the rendered report; written only when non-empty.
	HTML []byte
}

// BuildAuditReport shapes an audit result into a persistable report.
func BuildAuditReport(result *audit.Result, runID string) *Report {
	rep := &Report{
		Summary: Summary{
			Kind:           "audit",
			RunID:          runID,
			URL:            result.URL,
			GeneratedAt:    result.GeneratedAt,
			Passed:         result.Passed,
			CategoryScores: result.CategoryScores,
			CoreWebVitals:  result.CoreWebVitals,
			Opportunities:  result.Opportunities,
			Verdicts:       result.Verdicts,
		},
		Raw:  result,
		HTML: result.ReportHTML,
	}
	if len(result.RawJSON) > 0 {
		rep.Raw = result.RawJSON
	}
	return rep
}

// BuildLeakReport shapes a navigation-sweep result into a persistable report.
func BuildLeakReport(result *memory.LeakResult, url, runID string, generatedAt time.Time) *Report {
	return &Report{
		Summary: Summary{
			Kind:        "leakcheck",
			RunID:       runID,
			URL:         url,
			GeneratedAt: generatedAt,
			Passed:      result.Passed,
			Memory: &MemorySummary{
				BaselineMB:            result.BaselineMemoryMB,
				FinalMB:               result.FinalMemoryMB,
				TotalGrowthMB:         result.TotalGrowthMB,
				InterIterationMB:      result.GrowthBetweenIterationsMB,
				Severity:              result.Severity,
				Iterations:            result.Iterations,
				RoutesTested:          result.RoutesTested,
				AvgMemoryPerIteration: result.AvgMemoryPerIteration,
			},
		},
		Raw: result,
	}
}

// BuildMonitorReport shapes a monitored-action result into a persistable
// report. The action's own error, if any, travels separately to the caller.
func BuildMonitorReport(result *memory.ActionResult, url, runID string, generatedAt time.Time) *Report {
	return &Report{
		Summary: Summary{
			Kind:        "monitor",
			RunID:       runID,
			URL:         url,
			GeneratedAt: generatedAt,
			Passed:      result.ActionErr == nil,
			Memory: &MemorySummary{
				BaselineMB:    result.InitialMemoryMB,
				FinalMB:       result.FinalMemoryMB,
				TotalGrowthMB: result.MemoryGrowthMB,
				PeakMB:        result.PeakMemoryMB,
			},
		},
		Raw: result,
	}
}

// Writer generates artifact files under a single reports directory.
type Writer struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewWriter builds a Writer rooted at dir. The directory is created on first
// Generate, not here, so constructing a Writer never touches the filesystem.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	return &Writer{
		dir:    dir,
		logger: logger.Named("reporting"),
		now:    time.Now,
	}
}

// Generate writes the report's artifacts and returns their paths. Every write
// is independent and best effort: a failure is logged at Warn and the
// remaining artifacts are still attempted.
func (w *Writer) Generate(rep *Report, baseName string) Artifacts {
	ts := strings.ReplaceAll(w.now().UTC().Format(time.RFC3339), ":", "-")
	base := filepath.Join(w.dir, fmt.Sprintf("%s-%s", baseName, ts))

	artifacts := Artifacts{
		FullReportPath: base + ".html",
		RawDataPath:    base + ".json",
		SummaryPath:    base + "-summary.json",
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.logger.Warn("Failed to create reports directory, skipping artifacts.",
			zap.String("dir", w.dir), zap.Error(err))
		return artifacts
	}

	raw := rep.Raw
	if raw == nil {
		raw = rep.Summary
	}
	w.writeJSON(artifacts.RawDataPath, raw)
	w.writeJSON(artifacts.SummaryPath, rep.Summary)

	if len(rep.HTML) > 0 {
		if err := os.WriteFile(artifacts.FullReportPath, rep.HTML, 0o644); err != nil {
			w.logger.Warn("Failed to write HTML report.",
				zap.String("path", artifacts.FullReportPath), zap.Error(err))
		}
	}

	w.logger.Info("Report artifacts generated.",
		zap.String("summary", artifacts.SummaryPath),
		zap.Bool("html", len(rep.HTML) > 0),
	)
	return artifacts
}

func (w *Writer) writeJSON(path string, v any) {
	data, err := artifactJSON.MarshalIndent(v, "", "  ")
	if err != nil {
		w.logger.Warn("Failed to marshal artifact.", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		w.logger.Warn("Failed to write artifact.", zap.String("path", path), zap.Error(err))
	}
}
