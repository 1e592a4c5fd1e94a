// Package session drives the lifecycle of remote agent sessions: creation,
// cache-aware reads, plan approval, messaging, and polling until a target
// or terminal state.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/cachestore"
	"github.com/droverhq/drover/internal/errs"
	"github.com/droverhq/drover/internal/events"
	"github.com/droverhq/drover/internal/logger"
	"github.com/droverhq/drover/internal/logstore"
	"github.com/droverhq/drover/internal/unidiff"
)

// DefaultPollInterval is the delay between state polls.
const DefaultPollInterval = 5 * time.Second

// Engine coordinates the remote API with the local cache.
type Engine struct {
	api      *api.Client
	store    *cachestore.Store
	logs     *logstore.Registry
	reporter events.Reporter
	interval time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      *slog.Logger
}

// EngineConfig wires an Engine. Store and API are required; the rest
// defaults.
type EngineConfig struct {
	API   *api.Client
	Store *cachestore.Store

	// Logs, when set, lets the engine evict a session's open activity
	// log before dropping its cache directory.
	Logs *logstore.Registry

	Reporter     events.Reporter
	PollInterval time.Duration
	Logger       *slog.Logger
}

// NewEngine builds an engine from the config.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		api:      cfg.API,
		store:    cfg.Store,
		logs:     cfg.Logs,
		reporter: cfg.Reporter,
		interval: cfg.PollInterval,
		now:      time.Now,
		sleep:    sleepCtx,
		log:      cfg.Logger,
	}
	if e.reporter == nil {
		e.reporter = events.Null{}
	}
	if e.interval <= 0 {
		e.interval = DefaultPollInterval
	}
	if e.log == nil {
		e.log = logger.WithComponent("session")
	}
	return e
}

// CreateConfig describes a session to create. Source is "owner/repo";
// when set it is resolved to a source resource before the create call.
type CreateConfig struct {
	Prompt string
	Title  string
	Source string
	Branch string

	// RequirePlanApproval defaults to true for interactive sessions and
	// false for automated ones; nil means "use the default for Automated".
	RequirePlanApproval *bool

	// AutoPR controls automationMode. Unset means AUTO_CREATE_PR; only an
	// explicit false turns it off.
	AutoPR *bool

	// Automated marks fleet-dispatched sessions, flipping the plan
	// approval default.
	Automated bool
}

// Create starts a remote session and caches the returned resource.
func (e *Engine) Create(ctx context.Context, cfg CreateConfig) (string, error) {
	const op = errs.Op("session.Create")
	if strings.TrimSpace(cfg.Prompt) == "" {
		return "", errs.E(op, errs.KindInvalidState, "prompt must not be empty")
	}

	params := api.CreateSessionParams{
		Prompt:              cfg.Prompt,
		Title:               cfg.Title,
		AutomationMode:      api.AutomationAutoCreatePR,
		RequirePlanApproval: !cfg.Automated,
	}
	if cfg.AutoPR != nil && !*cfg.AutoPR {
		params.AutomationMode = api.AutomationUnspecified
	}
	if cfg.RequirePlanApproval != nil {
		params.RequirePlanApproval = *cfg.RequirePlanApproval
	}

	if cfg.Source != "" {
		owner, repo, err := splitRepo(cfg.Source)
		if err != nil {
			return "", errs.E(op, errs.KindInvalidState, err)
		}
		src, err := e.api.GetGitHubSource(ctx, owner, repo)
		if err != nil {
			return "", fmt.Errorf("resolving source %s: %w", cfg.Source, err)
		}
		params.Source = src.Name
		params.StartingBranch = cfg.Branch
	}

	sess, err := e.api.CreateSession(ctx, params)
	if err != nil {
		return "", err
	}
	if err := e.store.Upsert(sess); err != nil {
		e.log.Warn("caching created session", "sessionID", sess.ID, "err", err)
	}
	e.reporter.Report(events.Event{
		Type:      events.TypeSessionCreated,
		SessionID: sess.ID,
		Summary:   fmt.Sprintf("session %s created", sess.ID),
	})
	return sess.ID, nil
}

// Info returns the session, from cache when the tiering policy allows,
// hitting the network otherwise. A 404 for a session we have cached drops
// the local copy before the error propagates.
func (e *Engine) Info(ctx context.Context, id string) (api.Session, error) {
	cached, err := e.store.Get(id)
	if err != nil {
		return api.Session{}, err
	}
	if cachestore.IsCacheValid(cached, e.now()) {
		return cached.Resource, nil
	}
	return e.fetch(ctx, id, cached != nil)
}

// fetch does an uncached GET + upsert. hadCache triggers the 404 drop rule.
func (e *Engine) fetch(ctx context.Context, id string, hadCache bool) (api.Session, error) {
	sess, err := e.api.GetSession(ctx, id)
	if err != nil {
		if hadCache && errs.Is(err, errs.KindNotFound) {
			// Close the open activity log first so the registry never
			// holds a writer on an unlinked file.
			if e.logs != nil {
				if lerr := e.logs.Remove(id); lerr != nil {
					e.log.Warn("closing activity log for dropped session", "sessionID", id, "err", lerr)
				}
			}
			if derr := e.store.Delete(id); derr != nil {
				e.log.Warn("dropping stale session cache", "sessionID", id, "err", derr)
			}
		}
		return api.Session{}, err
	}
	if err := e.store.Upsert(sess); err != nil {
		e.log.Warn("caching session", "sessionID", id, "err", err)
	}
	return sess, nil
}

// Approve approves the pending plan. No local state pre-check: the server
// rejects the call when the session is not awaiting approval. Callers who
// need state-sensitive behavior should WaitFor awaitingPlanApproval first.
func (e *Engine) Approve(ctx context.Context, id string) error {
	return e.api.ApprovePlan(ctx, id)
}

// Send delivers a user message. Fire and forget.
func (e *Engine) Send(ctx context.Context, id, prompt string) error {
	return e.api.SendMessage(ctx, id, prompt)
}

// WaitFor polls until the session reaches target or any terminal state.
// Terminal states satisfy every wait so a finished session never blocks a
// caller forever. A zero timeout means wait indefinitely (bounded by ctx).
func (e *Engine) WaitFor(ctx context.Context, id string, target api.State, timeout time.Duration) (api.Session, error) {
	const op = errs.Op("session.WaitFor")

	start := e.now()
	for {
		sess, err := e.fetch(ctx, id, false)
		if err != nil {
			return api.Session{}, err
		}
		if sess.State == target || sess.State.Terminal() {
			return sess, nil
		}
		if timeout > 0 && e.now().Sub(start)+e.interval > timeout {
			return api.Session{}, errs.SessionTimeout(op, id, fmt.Sprintf("%s waiting for %s", timeout, target))
		}
		if err := e.sleep(ctx, e.interval); err != nil {
			return api.Session{}, errs.E(op, errs.KindCancelled, fmt.Sprintf("cancelled waiting for session %s", id), err)
		}
	}
}

// Result polls until terminal and maps the session to an Outcome. A failed
// session surfaces as a SessionFailed error carrying whatever reason the
// server attached, which is often nothing.
func (e *Engine) Result(ctx context.Context, id string, timeout time.Duration) (*Outcome, error) {
	sess, err := e.WaitFor(ctx, id, api.StateCompleted, timeout)
	if err != nil {
		return nil, err
	}
	if sess.State == api.StateFailed {
		// The session resource does not carry a failure reason; the
		// sessionFailed activity does. The error reports it as absent
		// rather than inventing one.
		return nil, errs.SessionFailed(id, "")
	}
	return newOutcome(sess), nil
}

// splitRepo parses "owner/repo".
func splitRepo(s string) (string, string, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo must be owner/repo, got %q", s)
	}
	return parts[0], parts[1], nil
}

// sleepCtx sleeps for d unless the context fires first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Outcome is the terminal projection of a completed session.
type Outcome struct {
	SessionID   string
	Title       string
	State       api.State
	PullRequest *api.PullRequest
	Outputs     []api.Output

	changeSet *api.ChangeSet
}

// newOutcome locates the first pullRequest and changeSet outputs in order.
func newOutcome(sess api.Session) *Outcome {
	o := &Outcome{
		SessionID: sess.ID,
		Title:     sess.Title,
		State:     sess.State,
		Outputs:   sess.Outputs,
	}
	for i := range sess.Outputs {
		out := sess.Outputs[i]
		if out.PullRequest != nil && o.PullRequest == nil {
			o.PullRequest = out.PullRequest
		}
		if out.ChangeSet != nil && o.changeSet == nil {
			o.changeSet = out.ChangeSet
		}
	}
	return o
}

// ChangeSet returns the raw patch of the first changeSet output, or "".
func (o *Outcome) ChangeSet() string {
	if o.changeSet == nil || o.changeSet.GitPatch == nil {
		return ""
	}
	return o.changeSet.GitPatch.UnidiffPatch
}

// GeneratedFiles parses the changeSet patch into per-file summaries.
func (o *Outcome) GeneratedFiles() []unidiff.FileDiff {
	return unidiff.Parse(o.ChangeSet())
}
