package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/style"
)

var (
	waitFor     string
	waitTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(waitCmd)

	waitCmd.Flags().StringVar(&waitFor, "for", string(api.StateCompleted), "State to wait for")
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "Give up after this long (0 = wait forever)")
}

var waitCmd = &cobra.Command{
	Use:     "wait <session-id>",
	GroupID: GroupSession,
	Short:   "Block until a session reaches a state",
	Long: `Poll until the session reaches the target state. Terminal states
(completed, failed) satisfy every wait so a finished session never
blocks forever.

Examples:
  drover wait abc123
  drover wait abc123 --for awaitingPlanApproval --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runWait,
}

func runWait(cmd *cobra.Command, args []string) error {
	target, err := parseState(waitFor)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.engine.WaitFor(cmd.Context(), args[0], target, waitTimeout)
	if err != nil {
		return err
	}
	fmt.Println(style.State(string(sess.State)).Render(string(sess.State)))
	return nil
}

var waitableStates = []api.State{
	api.StateQueued,
	api.StatePlanning,
	api.StateAwaitingPlanApproval,
	api.StateAwaitingUserFeedback,
	api.StateInProgress,
	api.StatePaused,
	api.StateCompleted,
	api.StateFailed,
}

func parseState(s string) (api.State, error) {
	for _, st := range waitableStates {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown state %q (one of: %s)", s, statesList())
}

func statesList() string {
	out := ""
	for i, st := range waitableStates {
		if i > 0 {
			out += ", "
		}
		out += string(st)
	}
	return out
}
