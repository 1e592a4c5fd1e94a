package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/tui/watch"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:     "watch <session-id>",
	GroupID: GroupSession,
	Short:   "Watch a session live",
	Long: `Open a live view of the session: state up top, activity stream
below. Exits when the session finishes. Quit with q.

Needs a terminal; in a pipe, use 'drover activities --follow' instead.

Examples:
  drover watch abc123`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !stdoutIsTerminal() {
		return fmt.Errorf("watch needs a terminal; use 'drover activities %s --follow'", args[0])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stream, errFn := a.activities.Stream(ctx, args[0])

	m := watch.New(args[0], a.engine, stream, cancel)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	if err := m.Err(); err != nil {
		return err
	}
	if err := errFn(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
