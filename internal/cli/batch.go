package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/propscout/propscout/internal/output"
	"github.com/propscout/propscout/internal/ui"
	"github.com/propscout/propscout/pkg/models"
)

var (
	batchMode     string
	batchOutDir   string
	batchMarkdown bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Acquire every listing URL in a file, one per line",
	Long: `Reads URLs from the given file (one per line, # starts a comment)
and acquires them sequentially. Rate limiting is shared across the run,
so the per-site pacing the portals expect is preserved.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchMode, "mode", "auto", "Fetch mode: auto, static or browser")
	batchCmd.Flags().StringVarP(&batchOutDir, "output-dir", "d", "", "Directory to write one record file per URL")
	batchCmd.Flags().BoolVar(&batchMarkdown, "markdown", false, "Write Markdown files instead of JSON")
}

func runBatch(cmd *cobra.Command, args []string) error {
	a := getApp()
	mode, err := parseMode(batchMode)
	if err != nil {
		return err
	}

	urls, err := readURLList(args[0])
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs found in %s", args[0])
	}

	if batchOutDir != "" {
		if err := os.MkdirAll(batchOutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	bar := progressbar.NewOptions(len(urls),
		progressbar.OptionSetDescription("acquiring"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var ok, failed int
	for i, u := range urls {
		rec, err := a.Controller.Acquire(cmd.Context(), u, mode)
		bar.Add(1)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.Error("failed"), u, err)
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			continue
		}
		ok++

		if batchOutDir != "" {
			if err := saveBatchRecord(batchOutDir, i+1, rec); err != nil {
				return err
			}
			continue
		}
		if err := output.WriteJSON(os.Stdout, rec); err != nil {
			return err
		}
	}

	fmt.Fprintf(os.Stderr, "\n%s %d acquired, %d failed of %d\n",
		ui.Bold("done:"), ok, failed, len(urls))
	return nil
}

func saveBatchRecord(dir string, n int, rec *models.PropertyRecord) error {
	name := rec.PropertyID
	if name == "" {
		name = fmt.Sprintf("listing-%03d", n)
	}
	if batchMarkdown {
		return output.SaveMarkdown(filepath.Join(dir, name+".md"), rec)
	}
	return output.SaveJSON(filepath.Join(dir, name+".json"), rec)
}

// readURLList parses a URL-per-line file, skipping blanks and # comments.
func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open url list: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}
