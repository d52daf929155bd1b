package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/propscout/propscout/internal/config"
	"github.com/propscout/propscout/internal/ui"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect and configure CAPTCHA solving providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show provider configuration and which one is active",
	Run: func(cmd *cobra.Command, args []string) {
		stats := getApp().Solver.Stats()
		fmt.Fprintln(os.Stdout, ui.Header("CAPTCHA providers"))
		for _, name := range stats.Available {
			status := ui.Dim("not configured")
			if slices.Contains(stats.Configured, name) {
				status = ui.Success("configured")
			}
			marker := " "
			if name == stats.Current {
				marker = ui.Bold("*")
			}
			fmt.Fprintf(os.Stdout, " %s %-12s %s\n", marker, name, status)
		}
		if len(stats.Configured) == 0 {
			fmt.Fprintln(os.Stderr, ui.Warn("no provider configured; CAPTCHA challenges cannot be solved"))
		}
	},
}

var providersSetKeyCmd = &cobra.Command{
	Use:   "set-key <provider> <api-key>",
	Short: "Store a provider API key in the OS keychain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := credentialName(args[0])
		if err != nil {
			return err
		}
		if err := config.SetProviderKey(name, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s key for %s stored\n", ui.Success("ok:"), name)
		return nil
	},
}

var providersDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key <provider>",
	Short: "Remove a stored provider API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := credentialName(args[0])
		if err != nil {
			return err
		}
		if err := config.DeleteProviderKey(name); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s key for %s removed\n", ui.Success("ok:"), name)
		return nil
	},
}

func credentialName(arg string) (string, error) {
	switch arg {
	case config.TwoCaptchaCredential:
		return config.TwoCaptchaCredential, nil
	case config.AntiCaptchaCredential:
		return config.AntiCaptchaCredential, nil
	}
	return "", fmt.Errorf("unknown provider %q (want %s or %s)",
		arg, config.TwoCaptchaCredential, config.AntiCaptchaCredential)
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersSetKeyCmd)
	providersCmd.AddCommand(providersDeleteKeyCmd)
}
