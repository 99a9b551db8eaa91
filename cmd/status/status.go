// Package status implements the status command: a table of per-site
// measurement activity, with an adaptive watch mode against a running
// service.
package status

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/storepulse/cmd/common"
	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/poller"
)

// Command returns the status command.
func Command() *cobra.Command {
	var (
		watch     bool
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-site measurement activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				return runWatch(cmd.Context(), serverURL)
			}
			return runOnce(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "poll the service and re-render on each update")
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "service base URL for --watch")

	return cmd
}

func runOnce(ctx context.Context) error {
	deps, err := common.Init(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	statuses, err := deps.Tracker.ActiveStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to load status: %w", err)
	}

	renderTable(statuses)
	return nil
}

// runWatch polls the status endpoint of a running service. The poller backs
// off when the service answers 429 and recovers on the next success.
func runWatch(ctx context.Context, serverURL string) error {
	deps, err := common.Init(ctx)
	if err != nil {
		return err
	}
	defer deps.Close()

	source := poller.NewHTTPSource(serverURL)
	p := poller.New(
		source,
		deps.Config.Poller.MinInterval,
		deps.Config.Poller.MaxInterval,
		deps.Logger,
	)

	err = p.Poll(ctx, func(statuses []domain.SiteStatus) {
		fmt.Print("\033[H\033[2J") // clear screen between renders
		renderTable(statuses)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func renderTable(statuses []domain.SiteStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Site", "URL", "Status", "Progress", "Active Jobs"})

	for _, s := range statuses {
		progress := "-"
		if s.Status == domain.SiteActivityTesting {
			progress = fmt.Sprintf("%d%%", s.Progress)
		}

		t.AppendRow(table.Row{
			s.SiteName,
			s.SiteURL,
			s.Status,
			progress,
			s.JobCount,
		})
	}

	t.Render()
}
