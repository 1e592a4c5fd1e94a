package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:     "ask <session-id> <question...>",
	GroupID: GroupSession,
	Short:   "Ask the agent a question and wait for its reply",
	Long: `Send a message and block until the agent answers. The reply is
the first agent message created after the send. Interrupt with Ctrl-C
to stop waiting; the message stays delivered.

Examples:
  drover ask abc123 why did you pick a linked list here`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	reply, err := a.engine.Ask(cmd.Context(), a.activities, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if reply.AgentMessaged != nil {
		fmt.Println(reply.AgentMessaged.Message)
		return nil
	}
	fmt.Println(reply.Summary())
	return nil
}
