package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/droverhq/drover/internal/errs"
	"github.com/droverhq/drover/internal/events"
	"github.com/droverhq/drover/internal/githost"
	"github.com/droverhq/drover/internal/logger"
	"github.com/droverhq/drover/internal/session"
)

// Merge controller defaults.
const (
	DefaultMaxCIWait   = 600 * time.Second
	DefaultMaxRetries  = 2
	DefaultPollTimeout = 900 * time.Second

	// Delay after branch updates and between PRs so the host's view of
	// the base branch settles.
	propagationDelay = 5 * time.Second

	ciPollInterval         = 15 * time.Second
	redispatchPollInterval = 30 * time.Second
)

// MergeConfig drives one merge run over a fleet's open PRs.
type MergeConfig struct {
	Mode        string // githost.ModeLabel | githost.ModeFleetRun
	RunID       string
	BaseBranch  string
	Owner       string
	Repo        string
	ReDispatch  bool
	MaxCIWait   time.Duration
	MaxRetries  int
	PollTimeout time.Duration
}

func (c *MergeConfig) normalize() {
	if c.BaseBranch == "" {
		c.BaseBranch = "main"
	}
	if c.MaxCIWait <= 0 {
		c.MaxCIWait = DefaultMaxCIWait
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
}

// Redispatch records a conflicted PR replaced by a fresh agent run.
type Redispatch struct {
	OldPR int
	NewPR int
}

// MergeResult is what a merge run accomplished, including partial
// progress when the run aborts.
type MergeResult struct {
	Merged       []int
	Skipped      []int
	Redispatched []Redispatch
}

// CI outcomes observed by waitForCI.
type ciOutcome string

const (
	ciPass    ciOutcome = "pass"
	ciFail    ciOutcome = "fail"
	ciNone    ciOutcome = "none"
	ciTimeout ciOutcome = "timeout"
)

// Controller serializes a fleet's PRs into the base branch.
type Controller struct {
	host       githost.RepoHost
	dispatcher *Dispatcher
	reporter   events.Reporter
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	log        *slog.Logger
}

// NewController wires a merge controller. The dispatcher may be nil when
// re-dispatch is disabled.
func NewController(host githost.RepoHost, dispatcher *Dispatcher, reporter events.Reporter) *Controller {
	if reporter == nil {
		reporter = events.Null{}
	}
	return &Controller{
		host:       host,
		dispatcher: dispatcher,
		reporter:   reporter,
		sleep:      sleepCtx,
		now:        time.Now,
		log:        logger.WithComponent("fleet"),
	}
}

// Merge lands each selected PR in turn: update branch, wait for CI,
// squash merge. Conflicts are either fatal or traded for a fresh agent
// run, per config. The returned result reflects progress even when an
// error aborts the run.
func (c *Controller) Merge(ctx context.Context, cfg MergeConfig) (MergeResult, error) {
	cfg.normalize()
	var res MergeResult

	prs, err := c.host.ListPRs(ctx, cfg.Mode, cfg.RunID, cfg.BaseBranch)
	if err != nil {
		return res, err
	}
	c.log.Info("merge run", "mode", cfg.Mode, "prs", len(prs), "base", cfg.BaseBranch)

	for i, pr := range prs {
		retries := 0
		first := i == 0

		for {
			if !first || retries > 0 {
				status, err := c.host.UpdateBranch(ctx, pr)
				if err != nil {
					return res, err
				}
				if status == githost.UpdateConflict {
					if !cfg.ReDispatch || retries >= cfg.MaxRetries {
						return res, errs.ConflictRetriesExhausted(pr.Number, pr.URL)
					}
					newPR, err := c.redispatch(ctx, cfg, pr)
					if err != nil {
						return res, err
					}
					res.Redispatched = append(res.Redispatched, Redispatch{OldPR: pr.Number, NewPR: newPR.Number})
					c.report(events.TypeRedispatched, fmt.Sprintf("PR #%d conflicted; replaced by #%d", pr.Number, newPR.Number))
					pr = newPR
					retries++
					continue
				}
				if err := c.sleep(ctx, propagationDelay); err != nil {
					return res, err
				}
			}

			outcome, err := c.waitForCI(ctx, pr, cfg.MaxCIWait)
			if err != nil {
				return res, err
			}
			if outcome == ciFail || outcome == ciTimeout {
				res.Skipped = append(res.Skipped, pr.Number)
				c.report(events.TypeMergeSkipped, fmt.Sprintf("PR #%d skipped: ci %s", pr.Number, outcome))
				break
			}

			if err := c.host.SquashMerge(ctx, pr); err != nil {
				return res, err
			}
			res.Merged = append(res.Merged, pr.Number)
			c.report(events.TypeMerged, fmt.Sprintf("PR #%d merged", pr.Number))
			break
		}

		if i < len(prs)-1 {
			if err := c.sleep(ctx, propagationDelay); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// waitForCI polls the PR's head commit checks until they settle. A PR
// with no checks at all reports none, which merges like a pass.
func (c *Controller) waitForCI(ctx context.Context, pr githost.PR, maxWait time.Duration) (ciOutcome, error) {
	start := c.now()
	for {
		runs, err := c.host.CheckRuns(ctx, pr.HeadSHA)
		if err != nil {
			return "", err
		}
		if len(runs) == 0 {
			return ciNone, nil
		}
		settled := true
		for _, run := range runs {
			if run.Status != "completed" {
				settled = false
				continue
			}
			switch run.Conclusion {
			case "failure", "cancelled", "timed_out":
				return ciFail, nil
			}
		}
		if settled {
			return ciPass, nil
		}
		if c.now().Sub(start)+ciPollInterval > maxWait {
			return ciTimeout, nil
		}
		if err := c.sleep(ctx, ciPollInterval); err != nil {
			return "", err
		}
	}
}

// redispatch trades a conflicted PR for a fresh session seeded with the
// PR's title against the same repo, then waits for the replacement PR
// to appear.
func (c *Controller) redispatch(ctx context.Context, cfg MergeConfig, pr githost.PR) (githost.PR, error) {
	if c.dispatcher == nil {
		return githost.PR{}, errs.ConflictRetriesExhausted(pr.Number, pr.URL)
	}
	sessionID, err := c.dispatcher.starter.Create(ctx, session.CreateConfig{
		Prompt:    redispatchPrompt(pr),
		Title:     pr.Title,
		Source:    cfg.Owner + "/" + cfg.Repo,
		Branch:    cfg.BaseBranch,
		Automated: true,
	})
	if err != nil {
		return githost.PR{}, err
	}
	c.log.Info("re-dispatched", "oldPr", pr.Number, "session", sessionID)

	start := c.now()
	for {
		prs, err := c.host.ListPRs(ctx, githost.ModeFleetRun, sessionID, cfg.BaseBranch)
		if err != nil {
			return githost.PR{}, err
		}
		if len(prs) > 0 {
			return prs[0], nil
		}
		if c.now().Sub(start)+redispatchPollInterval > cfg.PollTimeout {
			return githost.PR{}, errs.RedispatchTimeout(pr.Number, sessionID)
		}
		if err := c.sleep(ctx, redispatchPollInterval); err != nil {
			return githost.PR{}, err
		}
	}
}

func redispatchPrompt(pr githost.PR) string {
	return fmt.Sprintf("Redo the change from PR #%d (%s) on top of the current base branch. Original description:\n\n%s",
		pr.Number, pr.Title, pr.Body)
}

func (c *Controller) report(eventType, summary string) {
	c.reporter.Report(events.Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Type:      eventType,
		Summary:   summary,
	})
}
