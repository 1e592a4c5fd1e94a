// Package githost abstracts the repository host operations the fleet
// merge controller needs. The production implementation shells out to
// the gh CLI; tests inject fakes.
package githost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"github.com/droverhq/drover/internal/errs"
	"github.com/droverhq/drover/internal/logger"
)

// PR selection modes.
const (
	ModeLabel    = "label"
	ModeFleetRun = "fleet-run"
)

// FleetLabel marks PRs opened by fleet dispatch.
const FleetLabel = "fleet"

// PR is an open pull request against the base branch.
type PR struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HeadRef string `json:"headRefName"`
	HeadSHA string `json:"headRefOid"`
	URL     string `json:"url"`
}

// CheckRun is one CI check attached to a commit.
type CheckRun struct {
	Name       string `json:"name"`
	Status     string `json:"status"`     // queued | in_progress | completed
	Conclusion string `json:"conclusion"` // success | failure | ...
}

// UpdateStatus is the interpreted outcome of an update-branch call.
type UpdateStatus int

const (
	UpdateOK UpdateStatus = iota
	UpdateConflict
)

// RepoHost is the capability surface the merge controller runs against.
type RepoHost interface {
	// ListPRs returns the open PRs against baseBranch selected by mode,
	// ordered by PR number ascending.
	ListPRs(ctx context.Context, mode, runID, baseBranch string) ([]PR, error)
	// UpdateBranch merges the base branch into the PR's head branch.
	// A merge conflict is a status, not an error.
	UpdateBranch(ctx context.Context, pr PR) (UpdateStatus, error)
	// CheckRuns returns the CI checks for a commit.
	CheckRuns(ctx context.Context, sha string) ([]CheckRun, error)
	// SquashMerge squash-merges the PR.
	SquashMerge(ctx context.Context, pr PR) error
}

// GH is the RepoHost backed by the gh CLI.
type GH struct {
	Owner string
	Repo  string
	Admin bool

	run func(ctx context.Context, args ...string) ([]byte, error)
	log *slog.Logger
}

// NewGH builds a gh-backed host for owner/repo. Fails fast when the gh
// binary is not installed.
func NewGH(owner, repo string, admin bool) (*GH, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return nil, errs.E(errs.Op("githost.NewGH"), errs.KindOther, err,
			"gh CLI not found - install from https://cli.github.com")
	}
	return &GH{
		Owner: owner,
		Repo:  repo,
		Admin: admin,
		run:   runGH,
		log:   logger.WithComponent("githost"),
	}, nil
}

func runGH(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("gh %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (g *GH) repoFlag() string {
	return g.Owner + "/" + g.Repo
}

func (g *GH) ListPRs(ctx context.Context, mode, runID, baseBranch string) ([]PR, error) {
	const op = errs.Op("githost.ListPRs")
	args := []string{
		"pr", "list",
		"--repo", g.repoFlag(),
		"--base", baseBranch,
		"--state", "open",
		"--json", "number,title,body,headRefName,headRefOid,url,labels",
	}
	if mode == ModeLabel {
		args = append(args, "--label", FleetLabel)
	}
	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, errs.E(op, errs.KindServer, err, "listing open pull requests failed")
	}

	var raw []struct {
		PR
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, errs.E(op, errs.KindServer, fmt.Errorf("parsing pr list: %w", err), "")
	}

	var prs []PR
	for _, r := range raw {
		if mode == ModeFleetRun && runID != "" &&
			!strings.Contains(r.HeadRef, runID) && !strings.Contains(r.Body, runID) {
			continue
		}
		prs = append(prs, r.PR)
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].Number < prs[j].Number })
	return prs, nil
}

func (g *GH) UpdateBranch(ctx context.Context, pr PR) (UpdateStatus, error) {
	const op = errs.Op("githost.UpdateBranch")
	out, err := g.run(ctx,
		"api", "--method", "PUT",
		fmt.Sprintf("repos/%s/pulls/%d/update-branch", g.repoFlag(), pr.Number),
	)
	if err != nil {
		// GitHub rejects the update with a 422 when base and head conflict.
		combined := strings.ToLower(string(out) + err.Error())
		if strings.Contains(combined, "merge conflict") || strings.Contains(combined, "422") {
			g.log.Info("update-branch conflict", "pr", pr.Number)
			return UpdateConflict, nil
		}
		return 0, errs.E(op, errs.KindServer, err,
			fmt.Sprintf("updating branch for PR #%d failed", pr.Number))
	}
	return UpdateOK, nil
}

func (g *GH) CheckRuns(ctx context.Context, sha string) ([]CheckRun, error) {
	const op = errs.Op("githost.CheckRuns")
	out, err := g.run(ctx,
		"api", fmt.Sprintf("repos/%s/commits/%s/check-runs", g.repoFlag(), sha),
	)
	if err != nil {
		return nil, errs.E(op, errs.KindServer, err, "fetching check runs failed")
	}
	var resp struct {
		CheckRuns []CheckRun `json:"check_runs"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, errs.E(op, errs.KindServer, fmt.Errorf("parsing check runs: %w", err), "")
	}
	return resp.CheckRuns, nil
}

func (g *GH) SquashMerge(ctx context.Context, pr PR) error {
	const op = errs.Op("githost.SquashMerge")
	args := []string{
		"pr", "merge", fmt.Sprintf("%d", pr.Number),
		"--repo", g.repoFlag(),
		"--squash",
	}
	if g.Admin {
		args = append(args, "--admin")
	}
	if _, err := g.run(ctx, args...); err != nil {
		return errs.E(op, errs.KindMergeFailed, err,
			fmt.Sprintf("squash merge of PR #%d failed: %s", pr.Number, pr.URL))
	}
	g.log.Info("merged", "pr", pr.Number)
	return nil
}
