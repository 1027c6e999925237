// File: cmd/leakcheck.go
package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/voidhawk9x/leakhound/internal/history"
	"github.com/voidhawk9x/leakhound/internal/memory"
	"github.com/voidhawk9x/leakhound/internal/observability"
	"github.com/voidhawk9x/leakhound/internal/reporting"
)

// newLeakcheckCmd creates and configures the `leakcheck` command.
func newLeakcheckCmd() *cobra.Command {
	leakcheckCmd := &cobra.Command{
		Use:   "leakcheck <url>",
		Short: "Detects memory leaks by navigating routes repeatedly and tracking heap growth",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so flags override file and env.
			if err := viper.BindPFlag("leakcheck.iterations", cmd.Flags().Lookup("iterations")); err != nil {
				return err
			}
			if err := viper.BindPFlag("leakcheck.max_allowed_growth_mb", cmd.Flags().Lookup("max-growth-mb")); err != nil {
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

			baseURL := args[0]
			routeFlags, _ := cmd.Flags().GetStringSlice("route")
			routes, err := resolveRoutes(baseURL, routeFlags)
			if err != nil {
				return err
			}

			runID := uuid.New().String()
			logger.Info("Starting leak check",
				zap.String("runID", runID),
				zap.String("url", baseURL),
				zap.Strings("routes", routes),
				zap.Int("iterations", appCfg.Leakcheck.Iterations),
				zap.Float64("budgetMB", appCfg.Leakcheck.MaxAllowedGrowthMB),
			)

			ms, err := startMeasurementSession(ctx, logger)
			if err != nil {
				return fmt.Errorf("failed to start measurement session: %w", err)
			}
			defer ms.Shutdown(ctx)

			detector := memory.NewLeakDetector(ms.Session, ms.Sampler, memory.LeakOptions{
				Iterations:             appCfg.Leakcheck.Iterations,
				WaitBetweenNavigations: appCfg.Leakcheck.WaitBetweenNavigations,
				EnableGC:               appCfg.Sampling.EnableGC,
				MaxAllowedGrowthMB:     appCfg.Leakcheck.MaxAllowedGrowthMB,
			}, logger)

			result, err := detector.Run(ctx, routes)
			if err != nil {
				return fmt.Errorf("leak check failed to complete: %w", err)
			}

			writer := reporting.NewWriter(appCfg.Reports.Dir, logger)
			rep := reporting.BuildLeakReport(result, baseURL, runID, time.Now().UTC())
			artifacts := writer.Generate(rep, "leakcheck")

			summaryJSON, _ := json.Marshal(rep.Summary)
			recordHistory(ctx, logger, history.Run{
				ID:        runID,
				Scenario:  "leakcheck:" + baseURL,
				Kind:      "leakcheck",
				URL:       baseURL,
				Passed:    result.Passed,
				GrowthMB:  result.TotalGrowthMB,
				Summary:   summaryJSON,
				CreatedAt: time.Now().UTC(),
			})

			logger.Info("Leak check complete",
				zap.Float64("totalGrowthMB", result.TotalGrowthMB),
				zap.String("severity", string(result.Severity)),
				zap.Bool("passed", result.Passed),
				zap.String("summary", artifacts.SummaryPath),
			)

			if !result.Passed {
				return fmt.Errorf("memory leak detected: %.2f MB growth exceeds the %.2f MB budget (severity %s)",
					result.TotalGrowthMB, appCfg.Leakcheck.MaxAllowedGrowthMB, result.Severity)
			}
			return nil
		},
	}

	leakcheckCmd.Flags().StringSlice("route", []string{"/"}, "route to navigate, relative to the url (repeatable)")
	leakcheckCmd.Flags().Int("iterations", 3, "number of passes over the route list")
	leakcheckCmd.Flags().Float64("max-growth-mb", 50.0, "total heap growth budget in MB")
	leakcheckCmd.Flags().StringP("output", "o", "reports", "directory for report artifacts")

	return leakcheckCmd
}
