// File: internal/audit/engine.go
package audit

import (
	"context"
	"encoding/json"
)

// Settings is the knob set handed to the external audit engine.
type Settings struct {
	FormFactor       string   `json:"formFactor"`
	ThrottlingMethod string   `json:"throttlingMethod"`
	ScreenWidth      int      `json:"screenWidth"`
	ScreenHeight     int      `json:"screenHeight"`
	Categories       []string `json:"categories"`
}

// Category is one scored category as reported by the engine, score in 0..1.
type Category struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// AuditItem is one named audit from the engine's report.
type AuditItem struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Score        *float64      `json:"score"`
	NumericValue float64       `json:"numericValue"`
	DisplayValue string        `json:"displayValue"`
	Details      *AuditDetails `json:"details,omitempty"`
}

// AuditDetails carries the subset of audit detail fields the harness reads.
type AuditDetails struct {
	Type             string  `json:"type"`
	OverallSavingsMs float64 `json:"overallSavingsMs"`
}

// RawReport is the engine's output: the parsed categories and audits plus the
// untouched report documents for artifact persistence.
type RawReport struct {
	RequestedURL string               `json:"requestedUrl"`
	Categories   map[string]Category  `json:"categories"`
	Audits       map[string]AuditItem `json:"audits"`

	// RawJSON is the full engine output, passed through verbatim.
	RawJSON json.RawMessage `json:"-"`
	// ReportHTML is the engine's rendered report when one was produced.
	ReportHTML []byte `json:"-"`
}

// Engine is the external web-performance audit collaborator. The harness
// orchestrates it; it never implements scoring itself.
type Engine interface {
	Audit(ctx context.Context, url string, settings Settings) (*RawReport, error)
}
