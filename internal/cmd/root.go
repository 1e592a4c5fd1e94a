// Package cmd implements the drover CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/errs"
	"github.com/droverhq/drover/internal/logger"
	"github.com/droverhq/drover/internal/paths"
)

// Command groups shown in help output.
const (
	GroupSession = "session"
	GroupData    = "data"
	GroupFleet   = "fleet"
	GroupDiag    = "diag"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Drive Jules agent sessions from the command line",
	Long: `drover talks to the Jules code-agent API: create sessions, follow
their activity, sync a local cache you can query offline, and land a
fleet's pull requests.

State lives under <root>/.jules (root resolution: JULES_HOME, then a
project directory, then your home directory).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupSession, Title: "Session commands:"},
		&cobra.Group{ID: GroupData, Title: "Local data commands:"},
		&cobra.Group{ID: GroupFleet, Title: "Fleet commands:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root := paths.Resolve()
	if err := os.MkdirAll(paths.LogsDir(root), 0755); err == nil {
		_ = logger.Init(paths.LogFile(root))
	}
	defer logger.Close()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errs.GetHint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		return 1
	}
	return 0
}
