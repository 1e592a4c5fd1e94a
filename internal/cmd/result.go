package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/style"
)

var (
	resultJSON    bool
	resultPatch   bool
	resultFiles   bool
	resultTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(resultCmd)

	resultCmd.Flags().BoolVar(&resultJSON, "json", false, "Output as JSON")
	resultCmd.Flags().BoolVar(&resultPatch, "patch", false, "Print the raw unified diff")
	resultCmd.Flags().BoolVar(&resultFiles, "files", false, "Print per-file change summaries")
	resultCmd.Flags().DurationVar(&resultTimeout, "timeout", 0, "Give up after this long (0 = wait forever)")
}

var resultCmd = &cobra.Command{
	Use:     "result <session-id>",
	GroupID: GroupSession,
	Short:   "Wait for a session to finish and print its outputs",
	Long: `Block until the session is terminal, then print its pull request
and change set. A failed session is an error carrying whatever reason
the server attached.

Examples:
  drover result abc123
  drover result abc123 --patch > change.diff
  drover result abc123 --files`,
	Args: cobra.ExactArgs(1),
	RunE: runResult,
}

func runResult(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.engine.Result(cmd.Context(), args[0], resultTimeout)
	if err != nil {
		return err
	}

	switch {
	case resultPatch:
		fmt.Print(out.ChangeSet())
	case resultFiles:
		for _, f := range out.GeneratedFiles() {
			fmt.Printf("%s  +%d -%d\n", f.Path, f.Additions, f.Deletions)
		}
	case resultJSON:
		return outputJSON(map[string]any{
			"sessionId":   out.SessionID,
			"title":       out.Title,
			"state":       out.State,
			"pullRequest": out.PullRequest,
			"files":       out.GeneratedFiles(),
		})
	default:
		fmt.Printf("%s %s\n", style.Success.Render("✓"), out.Title)
		if out.PullRequest != nil {
			fmt.Printf("  pr  %s\n", out.PullRequest.URL)
		}
		files := out.GeneratedFiles()
		if len(files) > 0 {
			fmt.Printf("  %d file(s) changed\n", len(files))
		}
	}
	return nil
}
