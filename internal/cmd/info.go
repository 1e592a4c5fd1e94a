package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/style"
)

var infoJSON bool

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Output as JSON")
}

var infoCmd = &cobra.Command{
	Use:     "info <session-id>",
	GroupID: GroupSession,
	Short:   "Show a session's current state",
	Long: `Show a session's state, prompt, source, and outputs.

Served from the local cache when fresh, otherwise fetched.

Examples:
  drover info abc123
  drover info abc123 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.engine.Info(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if infoJSON {
		return outputJSON(sess)
	}

	title := sess.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Printf("%s  %s\n", style.Bold.Render(title), style.State(string(sess.State)).Render(string(sess.State)))
	fmt.Printf("  id       %s\n", sess.ID)
	if sess.SourceContext != nil {
		src := sess.SourceContext.Source
		if sess.SourceContext.StartingBranch != "" {
			src += " @ " + sess.SourceContext.StartingBranch
		}
		fmt.Printf("  source   %s\n", src)
	}
	fmt.Printf("  created  %s\n", formatAge(sess.CreateTime))
	fmt.Printf("  updated  %s\n", formatAge(sess.UpdateTime))
	if sess.URL != "" {
		fmt.Printf("  url      %s\n", style.Dim.Render(sess.URL))
	}
	for _, out := range sess.Outputs {
		if out.PullRequest != nil {
			fmt.Printf("  pr       %s\n", out.PullRequest.URL)
		}
		if out.ChangeSet != nil {
			fmt.Printf("  patch    available (drover result %s --patch)\n", sess.ID)
		}
	}
	if sess.Prompt != "" {
		fmt.Printf("\n%s\n", style.Dim.Render(sess.Prompt))
	}
	return nil
}
