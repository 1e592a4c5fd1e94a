// Package fleet orchestrates batches of agent sessions: parallel
// dispatch, overlap planning, and merging the resulting pull requests
// back into the base branch.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/droverhq/drover/internal/events"
	"github.com/droverhq/drover/internal/logger"
	"github.com/droverhq/drover/internal/session"
)

// DefaultDispatchConcurrency bounds parallel session creation.
const DefaultDispatchConcurrency = 4

// SessionStarter creates sessions. Satisfied by *session.Engine.
type SessionStarter interface {
	Create(ctx context.Context, cfg session.CreateConfig) (string, error)
}

// Dispatcher fans prompts out into agent sessions.
type Dispatcher struct {
	starter  SessionStarter
	reporter events.Reporter
	sleep    func(ctx context.Context, d time.Duration) error
	log      *slog.Logger
}

// NewDispatcher wires a dispatcher around a session starter.
func NewDispatcher(starter SessionStarter, reporter events.Reporter) *Dispatcher {
	if reporter == nil {
		reporter = events.Null{}
	}
	return &Dispatcher{
		starter:  starter,
		reporter: reporter,
		sleep:    sleepCtx,
		log:      logger.WithComponent("fleet"),
	}
}

// DispatchOpts tunes a dispatch run. The zero value means: concurrency
// 4, stop on the first error, no launch delay.
type DispatchOpts struct {
	Concurrency     int
	ContinueOnError bool
	Delay           time.Duration
}

// DispatchResult is the outcome of one config in the batch, in input
// order.
type DispatchResult struct {
	Index     int
	SessionID string
	Err       error
}

// Dispatch creates one session per config with bounded parallelism and
// returns the generated run id alongside per-config results. With
// ContinueOnError unset, the first failure cancels configs not yet
// launched; results for cancelled configs carry the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, configs []session.CreateConfig, opts DispatchOpts) (string, []DispatchResult, error) {
	runID := uuid.NewString()
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultDispatchConcurrency
	}

	results := make([]DispatchResult, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i := range configs {
		i := i
		cfg := configs[i]
		cfg.Title = fleetTitle(cfg.Title, runID)
		if opts.Delay > 0 && i > 0 {
			if err := d.sleep(ctx, opts.Delay); err != nil {
				results[i] = DispatchResult{Index: i, Err: err}
				break
			}
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = DispatchResult{Index: i, Err: err}
				return nil
			}
			id, err := d.starter.Create(gctx, cfg)
			results[i] = DispatchResult{Index: i, SessionID: id, Err: err}
			if err != nil {
				d.log.Error("dispatch failed", "index", i, "error", err)
				if !opts.ContinueOnError {
					return err
				}
				return nil
			}
			d.log.Info("dispatched", "index", i, "session", id, "run", runID)
			return nil
		})
	}

	err := g.Wait()
	d.reporter.Report(events.Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Type:      events.TypeSessionCreated,
		Summary:   fmt.Sprintf("fleet run %s: dispatched %d sessions", runID, succeeded(results)),
		Payload:   map[string]any{"runId": runID, "total": len(configs)},
	})
	return runID, results, err
}

func succeeded(results []DispatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err == nil && r.SessionID != "" {
			n++
		}
	}
	return n
}

// fleetTitle tags a session title with the run id so fleet-run mode can
// find the PRs later.
func fleetTitle(title, runID string) string {
	if title == "" {
		return "fleet " + runID
	}
	return fmt.Sprintf("%s [fleet:%s]", title, runID)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
