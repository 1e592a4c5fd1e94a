package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/activity"
	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/style"
)

var (
	activitiesType   string
	activitiesLimit  int
	activitiesFollow bool
	activitiesJSON   bool
)

func init() {
	rootCmd.AddCommand(activitiesCmd)

	activitiesCmd.Flags().StringVar(&activitiesType, "type", "", "Keep only activities of this type")
	activitiesCmd.Flags().IntVar(&activitiesLimit, "limit", 0, "Cap the number of rows (0 = all)")
	activitiesCmd.Flags().BoolVar(&activitiesFollow, "follow", false, "Keep polling for new activities after the backlog")
	activitiesCmd.Flags().BoolVar(&activitiesJSON, "json", false, "Output as JSON")
}

var activitiesCmd = &cobra.Command{
	Use:     "activities <session-id>",
	GroupID: GroupData,
	Short:   "Show a session's activity log",
	Long: `Print the session's activities in order. Without --follow the
local log is read as-is; with --follow the backlog is hydrated first
and new activities stream in until interrupted.

Examples:
  drover activities abc123
  drover activities abc123 --type agentMessaged --limit 20
  drover activities abc123 --follow`,
	Args: cobra.ExactArgs(1),
	RunE: runActivities,
}

func runActivities(cmd *cobra.Command, args []string) error {
	id := args[0]

	if activitiesFollow {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return followActivities(cmd, a, id)
	}

	a, err := newLocalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	local := activity.NewClient(activity.ClientConfig{Logs: a.logs})
	acts, err := local.Select(id, activity.SelectOpts{
		Type:  api.ActivityType(activitiesType),
		Limit: activitiesLimit,
	})
	if err != nil {
		return err
	}
	if activitiesJSON {
		if acts == nil {
			acts = []api.Activity{}
		}
		return outputJSON(acts)
	}
	for i := range acts {
		printActivity(&acts[i])
	}
	return nil
}

func followActivities(cmd *cobra.Command, a *app, id string) error {
	stream, errFn := a.activities.Stream(cmd.Context(), id)
	for act := range stream {
		if activitiesType != "" && string(act.Type()) != activitiesType {
			continue
		}
		printActivity(&act)
		if act.Terminal() {
			break
		}
	}
	return errFn()
}

func printActivity(a *api.Activity) {
	ts := a.CreateTime.Local().Format("15:04:05")
	fmt.Printf("%s  %s  %s\n",
		style.Dim.Render(ts),
		style.Accent.Render(fmt.Sprintf("%-16s", string(a.Type()))),
		a.Summary())
}
