package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/droverhq/drover/internal/paths"
	"github.com/droverhq/drover/internal/style"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: GroupDiag,
	Short:   "Check the local environment",
	Long: `Run environment checks: state directory, config, credentials, and
the gh CLI needed by fleet merge. Exits non-zero if anything fails.

Examples:
  drover doctor`,
	RunE: runDoctor,
}

// check is one doctor probe. ok=false with fatal=false renders as a
// warning and does not fail the run.
type check struct {
	name  string
	fatal bool
	run   func(a *app) (ok bool, detail string)
}

var doctorChecks = []check{
	{"state directory", true, func(a *app) (bool, string) {
		if err := os.MkdirAll(paths.JulesDir(a.root), 0o755); err != nil {
			return false, err.Error()
		}
		return true, paths.JulesDir(a.root)
	}},
	{"config", true, func(a *app) (bool, string) {
		p := paths.ConfigFile(a.root)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return true, "no config file, using defaults"
		}
		return true, p
	}},
	{"api key", false, func(a *app) (bool, string) {
		if a.cfg.API.Key == "" {
			return false, "not set; run 'drover config set api.key ...' or export JULES_API_KEY"
		}
		return true, "set"
	}},
	{"session cache", false, func(a *app) (bool, string) {
		entries, err := a.store.ScanIndex()
		if err != nil {
			return false, err.Error()
		}
		if len(entries) == 0 {
			return true, "empty; run 'drover sync'"
		}
		return true, fmt.Sprintf("%d sessions", len(entries))
	}},
	{"gh cli", false, func(a *app) (bool, string) {
		p, err := exec.LookPath("gh")
		if err != nil {
			return false, "not found; fleet merge needs it (https://cli.github.com)"
		}
		return true, p
	}},
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := newLocalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	failed := false
	for _, c := range doctorChecks {
		ok, detail := c.run(a)
		mark := style.Success.Render("✓")
		if !ok {
			if c.fatal {
				failed = true
				mark = style.Error.Render("✗")
			} else {
				mark = style.Warning.Render("!")
			}
		}
		fmt.Printf("%s %-16s %s\n", mark, c.name, style.Dim.Render(detail))
	}
	if failed {
		return fmt.Errorf("environment checks failed")
	}
	return nil
}
