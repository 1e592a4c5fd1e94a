package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/events"
	"github.com/droverhq/drover/internal/style"
)

var (
	eventsSince time.Duration
	eventsJSON  bool
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().DurationVar(&eventsSince, "since", time.Hour, "Show events newer than this")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Output as JSON")
}

var eventsCmd = &cobra.Command{
	Use:     "events",
	GroupID: GroupDiag,
	Short:   "Show recent activity from the shared event feed",
	Long: `Show what drover processes on this machine have been doing:
session creations, sync runs, merges, redispatches. The feed is a
shared append-only file under <root>/.jules.

Examples:
  drover events
  drover events --since 24h --json`,
	RunE: runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	a, err := newLocalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	evts, err := a.feed.Recent(eventsSince)
	if err != nil {
		return err
	}
	if eventsJSON {
		if evts == nil {
			evts = []events.Event{}
		}
		return outputJSON(evts)
	}
	if len(evts) == 0 {
		fmt.Printf("No events in the last %v.\n", eventsSince)
		return nil
	}
	for _, e := range evts {
		session := ""
		if e.SessionID != "" {
			session = " " + style.Dim.Render(e.SessionID)
		}
		fmt.Printf("%s  %-18s %s%s\n",
			style.Dim.Render(e.Timestamp),
			style.Accent.Render(e.Type),
			e.Summary,
			session)
	}
	return nil
}
