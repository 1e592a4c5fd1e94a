package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/droverhq/drover/internal/syncer"
)

var (
	syncSession     string
	syncLimit       int
	syncDepth       string
	syncFull        bool
	syncConcurrency int
	syncCheckpoint  bool
	syncJSON        bool
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncSession, "session", "", "Sync exactly one session")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "Cap the number of sessions considered")
	syncCmd.Flags().StringVar(&syncDepth, "depth", string(syncer.DepthActivities), "metadata or activities")
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "Walk the whole remote list instead of stopping at the local high-water mark")
	syncCmd.Flags().IntVar(&syncConcurrency, "concurrency", 0, "Parallel activity hydrations")
	syncCmd.Flags().BoolVar(&syncCheckpoint, "checkpoint", false, "Persist progress and resume an interrupted sync")
	syncCmd.Flags().BoolVar(&syncJSON, "json", false, "Output stats as JSON")
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: GroupData,
	Short:   "Reconcile the local cache with the remote service",
	Long: `Pull remote sessions (and, at the default depth, their activity
logs) into the local cache. Incremental by default: the list walk stops
at the newest locally known session. One sync runs at a time.

Examples:
  drover sync
  drover sync --full --limit 500 --checkpoint
  drover sync --session abc123`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s := syncer.New(syncer.Config{
		API:        a.api,
		Store:      a.store,
		Activities: a.activities,
		Reporter:   a.feed,
	})

	opts := syncer.Options{
		SessionID:   syncSession,
		Limit:       syncLimit,
		Depth:       syncer.Depth(syncDepth),
		Concurrency: syncConcurrency,
		Checkpoint:  syncCheckpoint,
	}
	if syncFull {
		incremental := false
		opts.Incremental = &incremental
	}

	p := message.NewPrinter(language.English)
	live := stdoutIsTerminal() && !syncJSON
	if live {
		opts.OnProgress = func(pr syncer.Progress) {
			if line := syncProgressLine(p, pr); line != "" {
				fmt.Fprintf(os.Stderr, "\r%s", line)
			}
		}
	}

	stats, err := s.Sync(cmd.Context(), opts)
	if live {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	if syncJSON {
		return outputJSON(stats)
	}
	status := "complete"
	if !stats.IsComplete {
		status = "partial"
	}
	p.Printf("Sync %s: %d sessions, %d activities in %v\n",
		status, stats.SessionsIngested, stats.ActivitiesIngested, stats.Duration.Round(time.Millisecond))
	return nil
}

// syncProgressLine renders one live progress update. The list walk
// reports its running count in Current; Total is only known once
// hydration starts.
func syncProgressLine(p *message.Printer, pr syncer.Progress) string {
	switch pr.Phase {
	case syncer.PhaseFetchingList:
		return p.Sprintf("Listing sessions... %d found", pr.Current)
	case syncer.PhaseHydratingRecords:
		return p.Sprintf("Syncing %d/%d (%d activities)   ", pr.Current, pr.Total, pr.ActivityCount)
	}
	return ""
}
