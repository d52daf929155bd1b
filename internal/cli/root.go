// Package cli defines the propscout command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/propscout/propscout/internal/app"
	"github.com/propscout/propscout/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "propscout",
	Short: "Acquire property listings from Portuguese real-estate portals",
	Long: `propscout fetches listing pages from supported Portuguese property
portals, rides out anti-bot challenges, and extracts structured records.

Static HTTP fetching is tried first; pages that come back blocked are
escalated to a headless browser and, when a CAPTCHA is present, solved
through a configured provider.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		setApp(a)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if a := getApp(); a != nil {
			a.Close(context.Background())
		}
	},
}

func init() {
	config.RegisterFlags(rootCmd)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(statsCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
