package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/snapshot"
)

var (
	snapshotJSON     bool
	snapshotMarkdown bool
)

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "Output as JSON")
	snapshotCmd.Flags().BoolVar(&snapshotMarkdown, "markdown", false, "Output as Markdown")
	snapshotCmd.MarkFlagsMutuallyExclusive("json", "markdown")
}

var snapshotCmd = &cobra.Command{
	Use:     "snapshot <session-id>",
	GroupID: GroupData,
	Short:   "Build a full report of a session",
	Long: `Fetch the session and its complete activity history and render an
aggregate report: overview, insights, timeline, and activity counts.

Examples:
  drover snapshot abc123 --markdown > report.md
  drover snapshot abc123 --json | jq .insights`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshot,
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := snapshot.Build(cmd.Context(), a.engine, a.activities, args[0])
	if err != nil {
		return err
	}
	if snapshotJSON {
		raw, err := snap.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}
	fmt.Print(snap.ToMarkdown())
	return nil
}
