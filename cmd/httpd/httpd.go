// Package httpd implements the HTTP server command. It runs the API, the
// per-site cron scheduler, and the stuck-job sweep in one process.
package httpd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/storepulse/cmd/common"
	"github.com/jonesrussell/storepulse/internal/api"
	"github.com/jonesrussell/storepulse/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

// Command returns the httpd command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "httpd",
		Short: "Start the measurement service",
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

	log := deps.Logger

	sched := scheduler.New(
		log,
		deps.Sites,
		deps.Orchestrator,
		deps.Tracker,
		deps.Config.Measure.StaleAfter,
		deps.Config.Measure.SweepInterval,
	)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	server := api.NewServer(api.Params{
		Config:  deps.Config.Server,
		Logger:  log,
		Batches: deps.Orchestrator,
		Status:  deps.Tracker,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	return nil
}
