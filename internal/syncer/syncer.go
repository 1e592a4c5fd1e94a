// Package syncer reconciles the local session cache with the server.
//
// A sync walks the remote session list newest-first, upserting anything
// newer than the local high-water mark, optionally hydrating activity
// logs with bounded parallelism, and checkpointing after every upsert so
// an interrupted run resumes where it stopped. Cancellation is graceful:
// an aborted sync returns its partial stats instead of an error.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/droverhq/drover/internal/activity"
	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/cachestore"
	"github.com/droverhq/drover/internal/errs"
	"github.com/droverhq/drover/internal/events"
	"github.com/droverhq/drover/internal/logger"
)

// Defaults for Options.
const (
	DefaultLimit       = 100
	DefaultConcurrency = 3
	DefaultPageSize    = 50
)

// Depth selects how much of each session to pull.
type Depth string

const (
	DepthMetadata   Depth = "metadata"
	DepthActivities Depth = "activities"
)

// Phase names reported through OnProgress.
const (
	PhaseFetchingList     = "fetching_list"
	PhaseHydratingRecords = "hydrating_records"
)

// Progress is a snapshot of a running sync.
type Progress struct {
	Phase          string
	Current        int
	Total          int
	LastIngestedID string
	ActivityCount  int
}

// Options configure one sync run.
type Options struct {
	// SessionID switches to targeted mode: fetch and upsert exactly one
	// session, no list walk.
	SessionID string

	// Limit caps the number of sessions considered. Defaults to 100.
	Limit int

	// Depth metadata pulls session records only; activities also
	// hydrates each candidate's activity log.
	Depth Depth

	// Incremental stops the list walk at the local high-water mark.
	// Nil means true.
	Incremental *bool

	// Concurrency bounds parallel activity hydration. Defaults to 3.
	Concurrency int

	// OnProgress, when set, receives phase updates.
	OnProgress func(Progress)

	// Checkpoint persists progress after every upsert and resumes from
	// an existing checkpoint.
	Checkpoint bool
}

// Stats summarize a completed (or aborted) sync.
type Stats struct {
	SessionsIngested   int           `json:"sessionsIngested"`
	ActivitiesIngested int           `json:"activitiesIngested"`
	IsComplete         bool          `json:"isComplete"`
	Duration           time.Duration `json:"-"`
}

// MarshalJSON reports the duration as integer milliseconds; the raw
// time.Duration would serialize as nanoseconds.
func (s Stats) MarshalJSON() ([]byte, error) {
	type alias Stats
	return json.Marshal(struct {
		alias
		DurationMs int64 `json:"durationMs"`
	}{alias(s), s.Duration.Milliseconds()})
}

// inFlight is the process-wide reentrancy guard. One sync at a time,
// regardless of how many Syncer values exist.
var inFlight struct {
	mu     sync.Mutex
	active bool
}

func acquireSyncSlot() error {
	inFlight.mu.Lock()
	defer inFlight.mu.Unlock()
	if inFlight.active {
		return errs.SyncInProgress()
	}
	inFlight.active = true
	return nil
}

func releaseSyncSlot() {
	inFlight.mu.Lock()
	inFlight.active = false
	inFlight.mu.Unlock()
}

// Syncer runs reconciliation passes.
type Syncer struct {
	api        *api.Client
	store      *cachestore.Store
	activities *activity.Client
	reporter   events.Reporter
	pageSize   int
	now        func() time.Time
	log        *slog.Logger
}

// Config wires a Syncer.
type Config struct {
	API        *api.Client
	Store      *cachestore.Store
	Activities *activity.Client
	Reporter   events.Reporter
	PageSize   int
	Logger     *slog.Logger
}

// New builds a Syncer with defaults filled in.
func New(cfg Config) *Syncer {
	s := &Syncer{
		api:        cfg.API,
		store:      cfg.Store,
		activities: cfg.Activities,
		reporter:   cfg.Reporter,
		pageSize:   cfg.PageSize,
		now:        time.Now,
		log:        cfg.Logger,
	}
	if s.reporter == nil {
		s.reporter = events.Null{}
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	if s.log == nil {
		s.log = logger.WithComponent("syncer")
	}
	return s
}

// Sync reconciles the cache per the options. Exactly one sync may run in
// the process; a second concurrent call fails fast with SyncInProgress.
// Cancellation through ctx yields partial stats with IsComplete=false and
// a nil error.
func (s *Syncer) Sync(ctx context.Context, opts Options) (Stats, error) {
	if err := acquireSyncSlot(); err != nil {
		return Stats{}, err
	}
	defer releaseSyncSlot()

	start := s.now()
	stats, err := s.run(ctx, opts)
	stats.Duration = s.now().Sub(start)
	if err != nil {
		// Aborted syncs come back as partial stats, never as an error.
		if ctx.Err() != nil || errs.Is(err, errs.KindCancelled) {
			s.log.Info("sync aborted", "sessionsIngested", stats.SessionsIngested)
			stats.IsComplete = false
			return stats, nil
		}
		return stats, err
	}

	s.reporter.Report(events.Event{
		Type: events.TypeSyncComplete,
		Summary: fmt.Sprintf("sync: %d sessions, %d activities in %s",
			stats.SessionsIngested, stats.ActivitiesIngested, stats.Duration.Round(time.Millisecond)),
	})
	return stats, nil
}

func (s *Syncer) run(ctx context.Context, opts Options) (Stats, error) {
	if opts.SessionID != "" {
		return s.targeted(ctx, opts.SessionID)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	incremental := opts.Incremental == nil || *opts.Incremental

	// Checkpoint resume: skip list entries until the last processed id
	// has been seen and passed.
	var resumeFromID string
	startingCount := 0
	startedAt := s.now()
	if opts.Checkpoint {
		if ckpt, err := s.store.LoadCheckpoint(); err != nil {
			return Stats{}, err
		} else if ckpt != nil {
			resumeFromID = ckpt.LastProcessedSessionID
			startingCount = ckpt.SessionsProcessed
			startedAt = ckpt.StartedAt
			s.log.Info("resuming sync from checkpoint", "lastProcessed", resumeFromID, "count", startingCount)
		}
	}

	var hwm time.Time
	var hasHWM bool
	if incremental {
		newest, found, err := s.store.NewestCreateTime()
		if err != nil {
			return Stats{}, err
		}
		hwm, hasHWM = newest, found
	}

	var (
		stats      Stats
		candidates []string
		wasAborted bool
		skipping   = resumeFromID != ""
	)

	pageToken := ""
listWalk:
	for {
		page, next, err := s.api.ListSessions(ctx, s.pageSize, pageToken)
		if err != nil {
			return stats, err
		}
		for i := range page {
			if ctx.Err() != nil {
				wasAborted = true
				break listWalk
			}
			sess := page[i]

			if skipping {
				if sess.ID == resumeFromID {
					skipping = false
				}
				continue
			}

			if hasHWM && !sess.CreateTime.After(hwm) {
				// Everything from here on is already cached. The boundary
				// session itself may still have new activities.
				if opts.Depth == DepthActivities {
					candidates = append(candidates, sess.ID)
				}
				break listWalk
			}

			if err := s.store.Upsert(sess); err != nil {
				return stats, err
			}
			candidates = append(candidates, sess.ID)
			stats.SessionsIngested++

			if opts.Checkpoint {
				err := s.store.SaveCheckpoint(cachestore.Checkpoint{
					LastProcessedSessionID: sess.ID,
					SessionsProcessed:      startingCount + stats.SessionsIngested,
					StartedAt:              startedAt,
				})
				if err != nil {
					return stats, err
				}
			}
			s.progress(opts, Progress{
				Phase:          PhaseFetchingList,
				Current:        stats.SessionsIngested,
				LastIngestedID: sess.ID,
			})

			if len(candidates) >= limit {
				break listWalk
			}
		}
		if next == "" || ctx.Err() != nil {
			wasAborted = wasAborted || ctx.Err() != nil
			break
		}
		pageToken = next
	}

	if opts.Depth == DepthActivities && !wasAborted {
		n, aborted, err := s.hydrateAll(ctx, opts, candidates, concurrency)
		stats.ActivitiesIngested = n
		if err != nil {
			return stats, err
		}
		wasAborted = wasAborted || aborted
	}

	stats.IsComplete = !wasAborted
	if stats.IsComplete && opts.Checkpoint {
		if err := s.store.ClearCheckpoint(); err != nil {
			s.log.Warn("clearing sync checkpoint", "err", err)
		}
	}
	return stats, nil
}

// targeted fetches exactly one session.
func (s *Syncer) targeted(ctx context.Context, id string) (Stats, error) {
	sess, err := s.api.GetSession(ctx, id)
	if err != nil {
		return Stats{}, err
	}
	if err := s.store.Upsert(sess); err != nil {
		return Stats{}, err
	}
	return Stats{SessionsIngested: 1, IsComplete: ctx.Err() == nil}, nil
}

// hydrateAll pulls activity logs for every candidate with bounded
// parallelism. Cancellation is checked before each task starts; running
// hydrations finish on their own.
func (s *Syncer) hydrateAll(ctx context.Context, opts Options, ids []string, concurrency int) (int, bool, error) {
	var (
		mu      sync.Mutex
		total   int
		done    int
		aborted bool
	)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, id := range ids {
		if ctx.Err() != nil {
			aborted = true
			break
		}
		id := id
		g.Go(func() error {
			n, err := s.activities.Hydrate(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("hydrating %s: %w", id, err)
			}
			mu.Lock()
			total += n
			done++
			s.progress(opts, Progress{
				Phase:          PhaseHydratingRecords,
				Current:        done,
				Total:          len(ids),
				LastIngestedID: id,
				ActivityCount:  total,
			})
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	aborted = aborted || ctx.Err() != nil
	return total, aborted, err
}

func (s *Syncer) progress(opts Options, p Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
	s.reporter.Report(events.Event{
		Type:      events.TypeSyncProgress,
		SessionID: p.LastIngestedID,
		Summary:   fmt.Sprintf("%s: %d", p.Phase, p.Current),
	})
}
