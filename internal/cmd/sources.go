package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/style"
)

var sourcesJSON bool

func init() {
	rootCmd.AddCommand(sourcesCmd)

	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "Output as JSON")
}

var sourcesCmd = &cobra.Command{
	Use:     "sources",
	GroupID: GroupData,
	Short:   "List repositories connected to the service",
	Long: `List the sources the agent can run against. Walks every page.

Examples:
  drover sources
  drover sources --json`,
	RunE: runSources,
}

func runSources(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var all []api.Source
	token := ""
	for {
		page, next, err := a.api.ListSources(cmd.Context(), 0, token)
		if err != nil {
			return err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		token = next
	}

	if sourcesJSON {
		if all == nil {
			all = []api.Source{}
		}
		return outputJSON(all)
	}
	if len(all) == 0 {
		fmt.Println("No connected sources.")
		return nil
	}
	for _, s := range all {
		label := s.Name
		if s.Owner != "" && s.Repo != "" {
			label = s.Owner + "/" + s.Repo
		}
		fmt.Printf("%s  %s\n", label, style.Dim.Render(s.ID))
	}
	return nil
}
