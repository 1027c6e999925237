// File: internal/audit/lighthouse.go
package audit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var lhrJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// CLIEngine runs audits through the Lighthouse command-line tool. Lighthouse
// drives its own Chrome instance, so the engine is independent of the
// measurement Session and its heap state.
type CLIEngine struct {
	path   string
	logger *zap.Logger
}

// NewCLIEngine builds an engine around the lighthouse binary at path
// ("lighthouse" resolves via $PATH).
func NewCLIEngine(path string, logger *zap.Logger) *CLIEngine {
	if path == "" {
		path = "lighthouse"
	}
	return &CLIEngine{path: path, logger: logger.Named("lighthouse")}
}

// lhrDocument is the slice of the Lighthouse result document the harness
// consumes; everything else rides along in RawJSON untouched.
type lhrDocument struct {
	RequestedURL      string `json:"requestedUrl"`
	FinalDisplayedURL string `json:"finalDisplayedUrl"`
	Categories        map[string]struct {
		ID    string   `json:"id"`
		Title string   `json:"title"`
		Score *float64 `json:"score"`
	} `json:"categories"`
	Audits       map[string]AuditItem `json:"audits"`
	RuntimeError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"runtimeError,omitempty"`
}

// Audit runs lighthouse against the URL and parses its JSON report. The HTML
// report is collected alongside for artifact persistence.
func (e *CLIEngine) Audit(ctx context.Context, url string, settings Settings) (*RawReport, error) {
	outDir, err := os.MkdirTemp("", "leakhound-lhr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create audit output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	base := filepath.Join(outDir, "report")
	args := e.buildArgs(url, base, settings)

	e.logger.Debug("Running lighthouse.", zap.String("url", url), zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, e.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("lighthouse run failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	// With multiple --output values lighthouse appends ".report.<ext>".
	rawJSON, err := os.ReadFile(base + ".report.json")
	if err != nil {
		return nil, fmt.Errorf("lighthouse produced no JSON report: %w", err)
	}
	reportHTML, err := os.ReadFile(base + ".report.html")
	if err != nil {
		e.logger.Warn("Lighthouse produced no HTML report.", zap.Error(err))
		reportHTML = nil
	}

	return parseLHR(rawJSON, reportHTML)
}

func (e *CLIEngine) buildArgs(url, outputBase string, settings Settings) []string {
	args := []string{
		url,
		"--output=json",
		"--output=html",
		"--output-path=" + outputBase,
		"--quiet",
		"--chrome-flags=--headless=new --no-sandbox --disable-gpu",
	}
	if settings.FormFactor != "" {
		args = append(args, "--form-factor="+settings.FormFactor)
	}
	if settings.ThrottlingMethod != "" {
		args = append(args, "--throttling-method="+settings.ThrottlingMethod)
	}
	if settings.ScreenWidth > 0 && settings.ScreenHeight > 0 {
		args = append(args,
			fmt.Sprintf("--screenEmulation.width=%d", settings.ScreenWidth),
			fmt.Sprintf("--screenEmulation.height=%d", settings.ScreenHeight),
			"--screenEmulation.mobile="+fmt.Sprint(settings.FormFactor == "mobile"),
		)
	}
	if len(settings.Categories) > 0 {
		args = append(args, "--only-categories="+strings.Join(settings.Categories, ","))
	}
	return args
}

// parseLHR converts a raw Lighthouse document into a RawReport.
func parseLHR(rawJSON []byte, reportHTML []byte) (*RawReport, error) {
	var doc lhrDocument
	if err := lhrJSON.Unmarshal(rawJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse lighthouse report: %w", err)
	}
	if doc.RuntimeError != nil && doc.RuntimeError.Code != "" && doc.RuntimeError.Code != "NO_ERROR" {
		return nil, fmt.Errorf("lighthouse runtime error %s: %s", doc.RuntimeError.Code, doc.RuntimeError.Message)
	}

	report := &RawReport{
		RequestedURL: doc.RequestedURL,
		Categories:   make(map[string]Category, len(doc.Categories)),
		Audits:       doc.Audits,
		RawJSON:      rawJSON,
		ReportHTML:   reportHTML,
	}
	if report.RequestedURL == "" {
		report.RequestedURL = doc.FinalDisplayedURL
	}
	for id, cat := range doc.Categories {
		score := 0.0
		if cat.Score != nil {
			score = *cat.Score
		}
		report.Categories[id] = Category{ID: cat.ID, Title: cat.Title, Score: score}
	}

	return report, nil
}
