package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/propscout/propscout/internal/output"
	"github.com/propscout/propscout/internal/ui"
	"github.com/propscout/propscout/pkg/models"
)

var (
	getMode     string
	getMarkdown bool
	getOutput   string
)

var getCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Acquire a single listing and print the extracted record",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().StringVar(&getMode, "mode", "auto", "Fetch mode: auto, static or browser")
	getCmd.Flags().BoolVar(&getMarkdown, "markdown", false, "Render the record as Markdown instead of JSON")
	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "Write the record to a file instead of stdout")
}

func runGet(cmd *cobra.Command, args []string) error {
	a := getApp()
	mode, err := parseMode(getMode)
	if err != nil {
		return err
	}

	start := time.Now()
	rec, err := a.Controller.Acquire(cmd.Context(), args[0], mode)
	if err != nil {
		return err
	}

	if rec.Placeholder {
		fmt.Fprintln(os.Stderr, ui.Warn("extraction failed, returning placeholder record"))
	}

	if getOutput != "" {
		if getMarkdown {
			err = output.SaveMarkdown(getOutput, rec)
		} else {
			err = output.SaveJSON(getOutput, rec)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s %s (%s)\n",
			ui.Success("saved"), getOutput, time.Since(start).Round(time.Millisecond))
		return nil
	}

	if getMarkdown {
		return output.WriteMarkdown(os.Stdout, rec)
	}
	return output.WriteJSON(os.Stdout, rec)
}

func parseMode(s string) (models.FetchMode, error) {
	switch models.FetchMode(s) {
	case models.ModeAuto, models.ModeStatic, models.ModeBrowser:
		return models.FetchMode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want auto, static or browser)", s)
}
