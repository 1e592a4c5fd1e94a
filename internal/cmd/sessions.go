package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/cachestore"
	"github.com/droverhq/drover/internal/style"
)

var (
	sessionsState string
	sessionsLimit int
	sessionsJSON  bool
)

func init() {
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.Flags().StringVar(&sessionsState, "state", "", "Keep only sessions in this state")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 0, "Cap the number of rows (0 = all)")
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	GroupID: GroupData,
	Short:   "List locally cached sessions",
	Long: `List the sessions in the local cache, newest first. Purely local:
run 'drover sync' first to pull fresh state.

Examples:
  drover sessions
  drover sessions --state inProgress
  drover sessions --json | jq '.[].id'`,
	RunE: runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	a, err := newLocalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.store.ScanIndex()
	if err != nil {
		return err
	}

	var rows []cachestore.IndexEntry
	for _, e := range entries {
		if sessionsState != "" && string(e.State) != sessionsState {
			continue
		}
		rows = append(rows, e)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreateTime.Equal(rows[j].CreateTime) {
			return rows[i].CreateTime.After(rows[j].CreateTime)
		}
		return rows[i].ID > rows[j].ID
	})
	if sessionsLimit > 0 && len(rows) > sessionsLimit {
		rows = rows[:sessionsLimit]
	}

	if sessionsJSON {
		if rows == nil {
			rows = []cachestore.IndexEntry{}
		}
		return outputJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Println("No cached sessions. Run 'drover sync' first.")
		return nil
	}

	t := style.NewTable(
		style.Column{Name: "ID", Width: 14},
		style.Column{Name: "STATE", Width: 22},
		style.Column{Name: "TITLE", Width: 40},
		style.Column{Name: "SOURCE", Width: 24},
		style.Column{Name: "CREATED", Width: 16},
	)
	for _, e := range rows {
		t.AddRow(
			e.ID,
			style.State(string(e.State)).Render(string(e.State)),
			e.Title,
			e.Source,
			formatAge(e.CreateTime),
		)
	}
	fmt.Print(t.Render())
	return nil
}
