// File: cmd/monitor.go
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
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

// newMonitorCmd creates and configures the `monitor` command.
func newMonitorCmd() *cobra.Command {
	monitorCmd := &cobra.Command{
		Use:   "monitor <url>",
		Short: "Monitors heap usage while a scripted action runs against the page",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("sampling.sample_interval", cmd.Flags().Lookup("interval")); err != nil {
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
			scriptPath, _ := cmd.Flags().GetString("script")
			script, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("failed to read action script: %w", err)
			}

			runID := uuid.New().String()
			logger.Info("Starting action monitor",
				zap.String("runID", runID),
				zap.String("url", targetURL),
				zap.String("script", scriptPath),
			)

			ms, err := startMeasurementSession(ctx, logger)
			if err != nil {
				return fmt.Errorf("failed to start measurement session: %w", err)
			}
			defer ms.Shutdown(ctx)

			if err := ms.Session.Navigate(ctx, targetURL); err != nil {
				return err
			}

			monitor := memory.NewMonitor(ms.Sampler, memory.MonitorOptions{
				EnableGC:       appCfg.Sampling.EnableGC,
				SampleInterval: appCfg.Sampling.SampleInterval,
				MaxSamples:     appCfg.Sampling.MaxSamples,
				GraceDelay:     appCfg.Sampling.GraceDelay,
			}, logger)

			result, actionErr := monitor.MonitorAction(ctx, func(ctx context.Context) error {
				return ms.Session.Evaluate(ctx, string(script), nil)
			})
			if result == nil {
				return fmt.Errorf("action monitoring failed to produce a result: %w", actionErr)
			}

			writer := reporting.NewWriter(appCfg.Reports.Dir, logger)
			rep := reporting.BuildMonitorReport(result, targetURL, runID, time.Now().UTC())
			artifacts := writer.Generate(rep, "monitor")

			summaryJSON, _ := json.Marshal(rep.Summary)
			recordHistory(ctx, logger, history.Run{
				ID:        runID,
				Scenario:  "monitor:" + targetURL + ":" + scriptPath,
				Kind:      "monitor",
				URL:       targetURL,
				Passed:    actionErr == nil,
				GrowthMB:  result.MemoryGrowthMB,
				Summary:   summaryJSON,
				CreatedAt: time.Now().UTC(),
			})

			logger.Info("Action monitoring complete",
				zap.String("summary", result.Summary),
				zap.Float64("peakMB", result.PeakMemoryMB),
				zap.String("artifacts", artifacts.SummaryPath),
			)

			if actionErr != nil && !errors.Is(actionErr, context.Canceled) {
				return fmt.Errorf("monitored action failed: %w", actionErr)
			}
			return nil
		},
	}

	monitorCmd.Flags().String("script", "", "JavaScript file executed as the monitored action")
	monitorCmd.Flags().Duration("interval", 500*time.Millisecond, "in-flight sampling cadence")
	monitorCmd.Flags().StringP("output", "o", "reports", "directory for report artifacts")
	_ = monitorCmd.MarkFlagRequired("script")

	return monitorCmd
}
