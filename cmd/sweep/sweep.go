// Package sweep implements the sweep command: a single stuck-job sweep pass,
// for cron-style out-of-band invocation.
package sweep

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/storepulse/cmd/common"
)

// Command returns the sweep command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Force-fail jobs stuck past the staleness threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	deps, err := common.Init(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	swept, err := deps.Tracker.SweepStuck(ctx, deps.Config.Measure.StaleAfter)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("Swept %d stuck job(s)\n", swept)
	return nil
}
