// File: cmd/audit.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/voidhawk9x/leakhound/internal/audit"
	"github.com/voidhawk9x/leakhound/internal/history"
	"github.com/voidhawk9x/leakhound/internal/observability"
	"github.com/voidhawk9x/leakhound/internal/reporting"
)

// newAuditCmd creates and configures the `audit` command.
func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit <url>",
		Short: "Runs a Lighthouse performance audit and evaluates score thresholds",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("audit.form_factor", cmd.Flags().Lookup("form-factor")); err != nil {
				return err
			}
			if err := viper.BindPFlag("audit.categories", cmd.Flags().Lookup("category")); err != nil {
				return err
			}
			if err := viper.BindPFlag("reports.dir", cmd.Flags().Lookup("output")); err != nil {
				return err
			}
			return viper.Unmarshal(&appCfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			targetURL := args[0]
			thresholds, err := thresholdFlags(cmd)
			if err != nil {
				return err
			}
			if len(thresholds) == 0 {
				thresholds = appCfg.Audit.Thresholds
			}

			scriptPath, _ := cmd.Flags().GetString("script")
			preAudit, err := loadPreAuditScript(scriptPath)
			if err != nil {
				return err
			}

			runID := uuid.New().String()
			logger.Info("Starting performance audit",
				zap.String("runID", runID),
				zap.String("url", targetURL),
				zap.String("formFactor", appCfg.Audit.FormFactor),
				zap.Any("thresholds", thresholds),
			)

			// Lighthouse drives its own browser; a measurement session is only
			// needed to replay a pre-audit interaction.
			var page audit.Page
			if preAudit != nil {
				ms, err := startMeasurementSession(ctx, logger)
				if err != nil {
					return fmt.Errorf("failed to start measurement session: %w", err)
				}
				defer ms.Shutdown(ctx)
				page = ms.Session
			}

			engine := audit.NewCLIEngine(appCfg.Audit.LighthousePath, logger)
			auditor := audit.New(engine, page, logger)

			auditCtx := ctx
			if appCfg.Audit.Timeout > 0 {
				var cancel context.CancelFunc
				auditCtx, cancel = context.WithTimeout(ctx, appCfg.Audit.Timeout)
				defer cancel()
			}

			result, err := auditor.Run(auditCtx, targetURL, audit.RunOptions{
				PreAudit: preAudit,
				Settings: audit.Settings{
					FormFactor:       appCfg.Audit.FormFactor,
					ThrottlingMethod: appCfg.Audit.ThrottlingMethod,
					ScreenWidth:      appCfg.Audit.ScreenWidth,
					ScreenHeight:     appCfg.Audit.ScreenHeight,
					Categories:       appCfg.Audit.Categories,
				},
				Thresholds: thresholds,
			})
			if err != nil {
				return err
			}

			writer := reporting.NewWriter(appCfg.Reports.Dir, logger)
			rep := reporting.BuildAuditReport(result, runID)
			artifacts := writer.Generate(rep, "audit")

			summaryJSON, _ := json.Marshal(rep.Summary)
			recordHistory(ctx, logger, history.Run{
				ID:               runID,
				Scenario:         "audit:" + targetURL,
				Kind:             "audit",
				URL:              targetURL,
				Passed:           result.Passed,
				PerformanceScore: result.CategoryScores["performance"],
				Summary:          summaryJSON,
				CreatedAt:        time.Now().UTC(),
			})

			logger.Info("Audit complete",
				zap.Any("scores", result.CategoryScores),
				zap.Bool("passed", result.Passed),
				zap.String("report", artifacts.FullReportPath),
			)

			if !result.Passed {
				for _, v := range result.Verdicts {
					if !v.Passed {
						logger.Warn("Category under threshold",
							zap.String("category", v.Category),
							zap.Float64("score", v.Score),
							zap.Float64("threshold", v.Threshold),
						)
					}
				}
				return fmt.Errorf("audit thresholds not met for %s", targetURL)
			}
			return nil
		},
	}

	auditCmd.Flags().StringSlice("category", nil, "audit category to run (repeatable)")
	auditCmd.Flags().String("form-factor", "desktop", "emulated form factor: desktop or mobile")
	auditCmd.Flags().StringToString("threshold", nil, "minimum category score, e.g. performance=70 (repeatable)")
	auditCmd.Flags().String("script", "", "JavaScript file replayed against the page before the audit")
	auditCmd.Flags().StringP("output", "o", "reports", "directory for report artifacts")

	return auditCmd
}

// thresholdFlags parses --threshold pairs into category score minimums.
func thresholdFlags(cmd *cobra.Command) (map[string]float64, error) {
	pairs, _ := cmd.Flags().GetStringToString("threshold")
	if len(pairs) == 0 {
		return nil, nil
	}

	thresholds := make(map[string]float64, len(pairs))
	for category, raw := range pairs {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold for %s: %q is not a number", category, raw)
		}
		thresholds[category] = score
	}
	return thresholds, nil
}

// loadPreAuditScript reads a JavaScript file and wraps it as a pre-audit
// callback. An empty path means no pre-audit interaction.
func loadPreAuditScript(path string) (func(context.Context, audit.Page) error, error) {
	if path == "" {
		return nil, nil
	}
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pre-audit script: %w", err)
	}

	return func(ctx context.Context, page audit.Page) error {
		return page.Evaluate(ctx, string(script), nil)
	}, nil
}
