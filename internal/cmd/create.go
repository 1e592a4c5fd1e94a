package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/session"
)

var (
	createPrompt          string
	createRepo            string
	createBranch          string
	createTitle           string
	createNoPR            bool
	createRequireApproval bool
)

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createPrompt, "prompt", "p", "", "Task for the agent (required)")
	createCmd.Flags().StringVar(&createRepo, "repo", "", "Repository as owner/repo")
	createCmd.Flags().StringVar(&createBranch, "branch", "", "Starting branch")
	createCmd.Flags().StringVar(&createTitle, "title", "", "Session title")
	createCmd.Flags().BoolVar(&createNoPR, "no-pr", false, "Do not open a pull request on completion")
	createCmd.Flags().BoolVar(&createRequireApproval, "require-approval", false, "Pause for plan approval before the agent works")
	_ = createCmd.MarkFlagRequired("prompt")
}

var createCmd = &cobra.Command{
	Use:     "create",
	GroupID: GroupSession,
	Short:   "Create a new agent session",
	Long: `Create a session and print its id.

By default the session runs unattended and opens a pull request when it
finishes. Use --require-approval to review the agent's plan first, and
--no-pr to collect the change set without a pull request.

Examples:
  drover create -p "fix the login flake" --repo acme/widgets
  drover create -p "add retries" --repo acme/widgets --branch main --require-approval`,
	RunE: runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	autoPR := !createNoPR
	requireApproval := createRequireApproval
	id, err := a.engine.Create(cmd.Context(), session.CreateConfig{
		Prompt:              createPrompt,
		Title:               createTitle,
		Source:              createRepo,
		Branch:              createBranch,
		RequirePlanApproval: &requireApproval,
		AutoPR:              &autoPR,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}
