package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BarkinBalci/viewer-analytics-service/internal/dto"
	"github.com/BarkinBalci/viewer-analytics-service/internal/service"
)

// NewQueryCommands returns one command per analytics query
func NewQueryCommands() []*cobra.Command {
	return []*cobra.Command{
		newQueryCommand("kpis", "Active viewers, events per second and average dwell", service.AnalyticsServicer.KPIs),
		newQueryCommand("concurrency", "Rolling concurrent viewers", service.AnalyticsServicer.Concurrency),
		newQueryCommand("events-per-second", "Events per second series", service.AnalyticsServicer.EventsPerSecond),
		newQueryCommand("countries", "Top countries by active viewers", service.AnalyticsServicer.Countries),
		newQueryCommand("sessions", "Reconstructed viewing sessions", service.AnalyticsServicer.Sessions),
		newQueryCommand("survival", "Kaplan-Meier audience retention", service.AnalyticsServicer.Survival),
		newQueryCommand("starts-per-minute", "View starts per minute with forecast", service.AnalyticsServicer.StartsPerMinute),
		newQueryCommand("overview", "All dashboard panels in one snapshot", service.AnalyticsServicer.Overview),
	}
}

func newQueryCommand[T any](use, short string, fn func(service.AnalyticsServicer, context.Context, *dto.AnalyticsQuery) (T, error)) *cobra.Command {
	var req dto.AnalyticsQuery

	command := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			svc, closeFn, err := openAnalytics(ctx)
			if err != nil {
				return fmt.Errorf("failed to open event log: %w", err)
			}
			defer func() { _ = closeFn() }()

			result, err := fn(svc, ctx, &req)
			if err != nil {
				return fmt.Errorf("%s query failed: %w", use, err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	command.Flags().StringVar(&req.Now, "now", "", "Reference instant (RFC3339), defaults to the current time")
	command.Flags().StringVar(&req.Window, "window", "", "Lookback window, e.g. 15m")
	command.Flags().StringVar(&req.Step, "step", "", "Sampling step of the concurrency series, e.g. 1s")
	command.Flags().StringVar(&req.Horizon, "horizon", "", "Concurrency horizon, e.g. 60s")
	command.Flags().IntVar(&req.K, "k", 0, "Number of countries to return")
	command.Flags().IntVar(&req.Periods, "periods", 0, "Forecast minutes")
	return command
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
