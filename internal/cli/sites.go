package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/propscout/propscout/internal/sites"
	"github.com/propscout/propscout/internal/ui"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the supported property portals",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stdout, ui.Header("Supported portals"))
		for _, s := range sites.Supported() {
			fmt.Fprintf(os.Stdout, "  %s\n", s)
		}
	},
}
