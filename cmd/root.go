// Package cmd implements the command-line interface for StorePulse.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/storepulse/cmd/batch"
	"github.com/jonesrussell/storepulse/cmd/httpd"
	cmdstatus "github.com/jonesrussell/storepulse/cmd/status"
	"github.com/jonesrussell/storepulse/cmd/sweep"
)

var (
	debug bool

	rootCmd = &cobra.Command{
		Use:   "storepulse",
		Short: "Shopify storefront performance monitoring",
		Long: `StorePulse runs repeated synthetic page-speed measurements against
Shopify storefronts and reduces them to stable per-page medians.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cobra.OnInitialize(func() {
		if debug {
			viper.Set("app.debug", true)
		}
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("storepulse version %s\n", "1.0.0")
		},
	})

	rootCmd.AddCommand(httpd.Command())
	rootCmd.AddCommand(batch.Command())
	rootCmd.AddCommand(cmdstatus.Command())
	rootCmd.AddCommand(sweep.Command())
}
