// Package batch implements the batch command: run a full measurement batch
// (or a single-run one) for one site from the terminal.
package batch

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/storepulse/cmd/common"
	"github.com/jonesrussell/storepulse/internal/domain"
)

// Command returns the batch command.
func Command() *cobra.Command {
	var (
		simple bool
		device string
	)

	cmd := &cobra.Command{
		Use:   "batch <site-id>",
		Short: "Run a measurement batch for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], simple, device)
		},
	}

	cmd.Flags().BoolVar(&simple, "simple", false, "single homepage run recorded as a one-run batch")
	cmd.Flags().StringVar(&device, "device", string(domain.DeviceTypeMobile), "device for --simple (mobile or desktop)")

	return cmd
}

func run(ctx context.Context, siteID string, simple bool, device string) error {
	deps, err := common.Init(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	if simple {
		return runSimple(ctx, deps, siteID, device)
	}

	job, err := deps.Orchestrator.StartBatch(ctx, siteID)
	if err != nil {
		return fmt.Errorf("failed to queue batch: %w", err)
	}

	fmt.Printf("Job %s queued (batch %s)\n", job.ID, job.BatchID)

	if err := deps.Orchestrator.RunBatch(ctx, siteID, job.ID); err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	fmt.Println("Batch completed")
	return nil
}

func runSimple(ctx context.Context, deps *common.Deps, siteID, device string) error {
	deviceType := domain.DeviceType(device)
	if deviceType != domain.DeviceTypeMobile && deviceType != domain.DeviceTypeDesktop {
		return fmt.Errorf("invalid device %q: must be mobile or desktop", device)
	}

	result, err := deps.Orchestrator.RunSimple(ctx, siteID, deviceType)
	if err != nil {
		return fmt.Errorf("measurement failed: %w", err)
	}

	printMetric := func(name string, value *float64) {
		if value == nil {
			fmt.Printf("%-14s -\n", name)
			return
		}
		fmt.Printf("%-14s %.2f\n", name, *value)
	}

	printMetric("performance", result.Metrics.Performance)
	printMetric("fcp", result.Metrics.FCP)
	printMetric("lcp", result.Metrics.LCP)
	printMetric("cls", result.Metrics.CLS)
	printMetric("tbt", result.Metrics.TBT)
	printMetric("tti", result.Metrics.TTI)
	printMetric("ttfb", result.Metrics.TTFB)
	printMetric("speed_index", result.Metrics.SpeedIndex)
	printMetric("page_weight", result.Metrics.PageWeight)
	printMetric("request_count", result.Metrics.RequestCount)

	return nil
}
