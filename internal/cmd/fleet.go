package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/fleet"
	"github.com/droverhq/drover/internal/githost"
	"github.com/droverhq/drover/internal/session"
	"github.com/droverhq/drover/internal/style"
)

var (
	dispatchFile        string
	dispatchConcurrency int
	dispatchDelay       time.Duration
	dispatchKeepGoing   bool

	mergeOwner      string
	mergeRepo       string
	mergeRunID      string
	mergeBase       string
	mergeReDispatch bool
	mergeAdmin      bool
	mergeMaxCIWait  time.Duration
	mergeMaxRetries int
	mergePollWait   time.Duration

	overlapFile string
	overlapJSON bool
)

func init() {
	rootCmd.AddCommand(fleetCmd)
	fleetCmd.AddCommand(fleetDispatchCmd)
	fleetCmd.AddCommand(fleetMergeCmd)
	fleetCmd.AddCommand(fleetOverlapCmd)

	fleetDispatchCmd.Flags().StringVar(&dispatchFile, "file", "", "TOML file of goals (required)")
	fleetDispatchCmd.Flags().IntVar(&dispatchConcurrency, "concurrency", 0, "Parallel session creations")
	fleetDispatchCmd.Flags().DurationVar(&dispatchDelay, "delay", 0, "Stagger between creations")
	fleetDispatchCmd.Flags().BoolVar(&dispatchKeepGoing, "keep-going", false, "Dispatch remaining goals after a failure")
	_ = fleetDispatchCmd.MarkFlagRequired("file")

	fleetMergeCmd.Flags().StringVar(&mergeOwner, "owner", "", "Repository owner (required)")
	fleetMergeCmd.Flags().StringVar(&mergeRepo, "repo", "", "Repository name (required)")
	fleetMergeCmd.Flags().StringVar(&mergeRunID, "run", "", "Merge only PRs from this fleet run")
	fleetMergeCmd.Flags().StringVar(&mergeBase, "base", "", "Base branch (default main)")
	fleetMergeCmd.Flags().BoolVar(&mergeReDispatch, "re-dispatch", false, "Resolve conflicts by re-dispatching the work")
	fleetMergeCmd.Flags().BoolVar(&mergeAdmin, "admin", false, "Merge with admin privileges")
	fleetMergeCmd.Flags().DurationVar(&mergeMaxCIWait, "max-ci-wait", 0, "Wait this long for checks per PR")
	fleetMergeCmd.Flags().IntVar(&mergeMaxRetries, "max-retries", 0, "Conflict redispatch attempts per PR")
	fleetMergeCmd.Flags().DurationVar(&mergePollWait, "poll-timeout", 0, "Wait this long for a redispatched PR")
	_ = fleetMergeCmd.MarkFlagRequired("owner")
	_ = fleetMergeCmd.MarkFlagRequired("repo")

	fleetOverlapCmd.Flags().StringVar(&overlapFile, "file", "", "JSON file of issues (required)")
	fleetOverlapCmd.Flags().BoolVar(&overlapJSON, "json", false, "Output as JSON")
	_ = fleetOverlapCmd.MarkFlagRequired("file")
}

var fleetCmd = &cobra.Command{
	Use:     "fleet",
	GroupID: GroupFleet,
	Short:   "Dispatch and merge batches of sessions",
	Long: `Fleet commands run many sessions against one repository and land
their pull requests in sequence.`,
}

// goalsFile is the TOML shape fleet dispatch consumes.
type goalsFile struct {
	Repo   string `toml:"repo"`
	Branch string `toml:"branch"`
	Goals  []goal `toml:"goal"`
}

type goal struct {
	Prompt string `toml:"prompt"`
	Title  string `toml:"title"`
	Repo   string `toml:"repo"`
	Branch string `toml:"branch"`
}

var fleetDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Start one session per goal in a TOML file",
	Long: `Create a session for every goal, tagging each title with a shared
run id so 'fleet merge --run' can find the resulting pull requests.

The goals file sets a default repo and branch at the top level; each
[[goal]] needs a prompt and may override them:

  repo = "acme/widgets"

  [[goal]]
  prompt = "add retry to the fetcher"

  [[goal]]
  prompt = "fix flaky TestLogin"
  branch = "release-2.3"

Examples:
  drover fleet dispatch --file goals.toml --concurrency 2`,
	RunE: runFleetDispatch,
}

func runFleetDispatch(cmd *cobra.Command, args []string) error {
	var gf goalsFile
	if _, err := toml.DecodeFile(dispatchFile, &gf); err != nil {
		return fmt.Errorf("reading goals file: %w", err)
	}
	if len(gf.Goals) == 0 {
		return fmt.Errorf("no [[goal]] entries in %s", dispatchFile)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	configs := make([]session.CreateConfig, 0, len(gf.Goals))
	for i, g := range gf.Goals {
		if g.Prompt == "" {
			return fmt.Errorf("goal %d has no prompt", i+1)
		}
		repo := g.Repo
		if repo == "" {
			repo = gf.Repo
		}
		branch := g.Branch
		if branch == "" {
			branch = gf.Branch
		}
		configs = append(configs, session.CreateConfig{
			Prompt:    g.Prompt,
			Title:     g.Title,
			Source:    repo,
			Branch:    branch,
			Automated: true,
		})
	}

	concurrency := dispatchConcurrency
	if concurrency <= 0 {
		concurrency = a.cfg.Fleet.Concurrency
	}

	d := fleet.NewDispatcher(a.engine, a.feed)
	runID, results, err := d.Dispatch(cmd.Context(), configs, fleet.DispatchOpts{
		Concurrency:     concurrency,
		ContinueOnError: dispatchKeepGoing,
		Delay:           dispatchDelay,
	})

	fmt.Printf("Run %s\n", style.Bold.Render(runID))
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("  %s goal %d: %v\n", style.Error.Render("✗"), r.Index+1, r.Err)
			continue
		}
		fmt.Printf("  %s goal %d: %s\n", style.Success.Render("✓"), r.Index+1, r.SessionID)
	}
	return err
}

var fleetMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge fleet pull requests in sequence",
	Long: `Walk the fleet's open pull requests oldest first: rebase each onto
the base branch, wait for checks, and squash-merge. A PR that no longer
applies cleanly aborts the run, or with --re-dispatch is retried as a
fresh session against the updated base.

Requires the gh CLI to be installed and authenticated.

Examples:
  drover fleet merge --owner acme --repo widgets
  drover fleet merge --owner acme --repo widgets --run 4f1c... --re-dispatch`,
	RunE: runFleetMerge,
}

func runFleetMerge(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	host, err := githost.NewGH(mergeOwner, mergeRepo, mergeAdmin)
	if err != nil {
		return err
	}

	mode := githost.ModeLabel
	if mergeRunID != "" {
		mode = githost.ModeFleetRun
	}
	fc := a.cfg.Fleet
	reDispatch := mergeReDispatch
	if !cmd.Flags().Changed("re-dispatch") && fc.ReDispatch != nil {
		reDispatch = *fc.ReDispatch
	}
	base := mergeBase
	if base == "" {
		base = fc.BaseBranch
	}
	maxRetries := mergeMaxRetries
	if maxRetries <= 0 {
		maxRetries = fc.MaxRetries
	}

	ctl := fleet.NewController(host, fleet.NewDispatcher(a.engine, a.feed), a.feed)
	res, err := ctl.Merge(cmd.Context(), fleet.MergeConfig{
		Mode:        mode,
		RunID:       mergeRunID,
		BaseBranch:  base,
		Owner:       mergeOwner,
		Repo:        mergeRepo,
		ReDispatch:  reDispatch,
		MaxCIWait:   orDuration(mergeMaxCIWait, fc.MaxCIWait.Duration(0)),
		MaxRetries:  maxRetries,
		PollTimeout: orDuration(mergePollWait, fc.PollTimeout.Duration(0)),
	})

	for _, n := range res.Merged {
		fmt.Printf("%s merged #%d\n", style.Success.Render("✓"), n)
	}
	for _, n := range res.Skipped {
		fmt.Printf("%s skipped #%d (checks failed or timed out)\n", style.Warning.Render("-"), n)
	}
	for _, rd := range res.Redispatched {
		fmt.Printf("%s re-dispatched #%d as #%d\n", style.Accent.Render("↻"), rd.OldPR, rd.NewPR)
	}
	return err
}

func orDuration(flag, cfg time.Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	return cfg
}

var fleetOverlapCmd = &cobra.Command{
	Use:   "overlap",
	Short: "Find issues whose target files collide",
	Long: `Read issues with their expected target files and report which can
be dispatched in parallel and which share files and must be serialized.

The input is a JSON array:

  [{"number": 1, "targetFiles": ["a.go", "b.go"]},
   {"number": 2, "targetFiles": ["b.go"]}]

Examples:
  drover fleet overlap --file issues.json`,
	RunE: runFleetOverlap,
}

func runFleetOverlap(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(overlapFile)
	if err != nil {
		return err
	}
	var issues []fleet.Issue
	if err := json.Unmarshal(raw, &issues); err != nil {
		return fmt.Errorf("reading issues file: %w", err)
	}
	report := fleet.Overlap(issues)

	if overlapJSON {
		return outputJSON(report)
	}

	if len(report.Clean) > 0 {
		fmt.Printf("%s parallel-safe: %v\n", style.Success.Render("✓"), report.Clean)
	}
	for _, c := range report.Clusters {
		fmt.Printf("%s serialize %v (share %v)\n", style.Warning.Render("!"), c.Issues, c.SharedFiles)
	}
	if len(report.Clusters) == 0 {
		fmt.Println("No overlapping target files.")
	}
	return nil
}
