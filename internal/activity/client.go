// Package activity exposes a session's event log as streams: a finite
// cold replay of the local log, an infinite hot poll of the server, and
// their concatenation. Every activity yielded from the network is written
// through to the local log first, keyed off the high-water mark so nothing
// is stored or yielded twice.
package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/cachestore"
	"github.com/droverhq/drover/internal/logger"
	"github.com/droverhq/drover/internal/logstore"
)

// DefaultPageSize is the page size requested from ListActivities.
const DefaultPageSize = 100

// DefaultPollInterval matches the session engine's poll cadence.
const DefaultPollInterval = 5 * time.Second

// Client reads and fills activity logs for any session.
type Client struct {
	api      *api.Client
	logs     *logstore.Registry
	store    *cachestore.Store
	interval time.Duration
	pageSize int
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      *slog.Logger
}

// ClientConfig wires a Client.
type ClientConfig struct {
	API          *api.Client
	Logs         *logstore.Registry
	Store        *cachestore.Store
	PollInterval time.Duration
	PageSize     int
	Logger       *slog.Logger
}

// NewClient builds the client with defaults filled in.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		api:      cfg.API,
		logs:     cfg.Logs,
		store:    cfg.Store,
		interval: cfg.PollInterval,
		pageSize: cfg.PageSize,
		now:      time.Now,
		sleep:    sleepCtx,
		log:      cfg.Logger,
	}
	if c.interval <= 0 {
		c.interval = DefaultPollInterval
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.log == nil {
		c.log = logger.WithComponent("activity")
	}
	return c
}

// History hydrates the local log from the server, then returns the whole
// log in append order. Finite and restartable: each call is fresh.
func (c *Client) History(ctx context.Context, sessionID string) ([]api.Activity, error) {
	if _, err := c.Hydrate(ctx, sessionID); err != nil {
		return nil, err
	}
	l, err := c.logs.Open(sessionID)
	if err != nil {
		return nil, err
	}
	return l.All()
}

// Updates polls the server and sends every activity newer than the local
// high-water mark, appending each to the log before it is sent. The
// channel closes when ctx is cancelled; the error func reports any poll
// failure after the channel closes.
func (c *Client) Updates(ctx context.Context, sessionID string) (<-chan api.Activity, func() error) {
	out := make(chan api.Activity)
	var pollErr error

	go func() {
		defer close(out)
		for {
			fresh, err := c.pollNew(ctx, sessionID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				pollErr = err
				return
			}
			for i := range fresh {
				select {
				case out <- fresh[i]:
				case <-ctx.Done():
					return
				}
			}
			if err := c.sleep(ctx, c.interval); err != nil {
				return
			}
		}
	}()

	return out, func() error { return pollErr }
}

// Stream yields History then Updates on one channel. The hot half applies
// the same HWM filter, so the tail of history is never re-yielded.
func (c *Client) Stream(ctx context.Context, sessionID string) (<-chan api.Activity, func() error) {
	out := make(chan api.Activity)
	var streamErr error

	go func() {
		defer close(out)

		history, err := c.History(ctx, sessionID)
		if err != nil {
			streamErr = err
			return
		}
		for i := range history {
			select {
			case out <- history[i]:
			case <-ctx.Done():
				return
			}
		}

		updates, errFn := c.Updates(ctx, sessionID)
		for a := range updates {
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		}
		streamErr = errFn()
	}()

	return out, func() error { return streamErr }
}

// SelectOpts filter a local log scan.
type SelectOpts struct {
	// Type keeps only activities of this payload variant.
	Type api.ActivityType

	// After and Before are exclusive id cursors in append order.
	After  string
	Before string

	// Limit caps the result; 0 means unlimited.
	Limit int
}

// Select linearly scans the local log with the given filters. Purely
// local: no hydration is triggered.
func (c *Client) Select(sessionID string, opts SelectOpts) ([]api.Activity, error) {
	l, err := c.logs.Open(sessionID)
	if err != nil {
		return nil, err
	}

	var out []api.Activity
	started := opts.After == ""
	err = l.Scan(func(a api.Activity) bool {
		if !started {
			if a.ID == opts.After {
				started = true
			}
			return true
		}
		if opts.Before != "" && a.ID == opts.Before {
			return false
		}
		if opts.Type != "" && a.Type() != opts.Type {
			return true
		}
		out = append(out, a)
		return opts.Limit <= 0 || len(out) < opts.Limit
	})
	return out, err
}

// pollNew lists the newest page and returns, in server order, only the
// activities past the local HWM, appending each before returning it.
func (c *Client) pollNew(ctx context.Context, sessionID string) ([]api.Activity, error) {
	l, err := c.logs.Open(sessionID)
	if err != nil {
		return nil, err
	}
	hwmTime, hwmID, hasHWM, err := l.HWM()
	if err != nil {
		return nil, err
	}

	page, _, err := c.api.ListActivities(ctx, sessionID, c.pageSize, "")
	if err != nil {
		return nil, err
	}

	var fresh []api.Activity
	for i := range page {
		a := page[i]
		if hasHWM && !newerThanHWM(a, hwmTime, hwmID) {
			continue
		}
		if hasHWM && a.CreateTime.Equal(hwmTime) {
			// Timestamp ties need the index: another activity at the HWM
			// instant may already be stored under a different id.
			known, err := l.Has(a.ID)
			if err != nil {
				return nil, err
			}
			if known {
				continue
			}
		}
		fresh = append(fresh, a)
	}

	// Server pages arrive newest first; append and yield oldest first.
	reverse(fresh)
	for i := range fresh {
		if err := l.Append(fresh[i]); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// newerThanHWM implements the HWM diff rule: strictly newer createTime,
// or equal createTime under a different id. Identical ids are the same
// event regardless of timestamps.
func newerThanHWM(a api.Activity, hwmTime time.Time, hwmID string) bool {
	if a.ID == hwmID {
		return false
	}
	if a.CreateTime.After(hwmTime) {
		return true
	}
	return a.CreateTime.Equal(hwmTime)
}

func reverse(s []api.Activity) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

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
