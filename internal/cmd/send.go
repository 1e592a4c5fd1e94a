package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(approveCmd)
}

var sendCmd = &cobra.Command{
	Use:     "send <session-id> <message...>",
	GroupID: GroupSession,
	Short:   "Send a message to a running session",
	Long: `Send a user message to the agent. Fire and forget: the command
returns once the server accepts the message. Use 'drover ask' to wait
for the reply.

Examples:
  drover send abc123 also update the changelog`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.engine.Send(cmd.Context(), args[0], strings.Join(args[1:], " "))
}

var approveCmd = &cobra.Command{
	Use:     "approve <session-id>",
	GroupID: GroupSession,
	Short:   "Approve a session's pending plan",
	Long: `Approve the plan of a session waiting in awaitingPlanApproval.
The server rejects the call if the session is not awaiting approval.

Examples:
  drover approve abc123`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Approve(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Println("Plan approved.")
	return nil
}
