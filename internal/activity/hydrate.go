package activity

import (
	"context"
	"time"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/cachestore"
)

// Hydrate pulls everything newer than the local high-water mark into the
// session's log and returns the number of appended records.
//
// Frozen sessions (created more than 30 days ago) return 0 without a
// network call: their logs no longer change. With no local HWM the whole
// remote log is fetched page by page. With an HWM, pages are read newest
// to oldest and the walk stops at the first page that is entirely at or
// before the mark.
func (c *Client) Hydrate(ctx context.Context, sessionID string) (int, error) {
	if cached, err := c.store.Get(sessionID); err != nil {
		return 0, err
	} else if cached != nil && cachestore.TierOf(cached, c.now()) == cachestore.TierFrozen {
		c.log.Debug("skipping hydration of frozen session", "sessionID", sessionID)
		return 0, nil
	}

	l, err := c.logs.Open(sessionID)
	if err != nil {
		return 0, err
	}
	hwmTime, _, hasHWM, err := l.HWM()
	if err != nil {
		return 0, err
	}

	// Collect pages newest-to-oldest until the HWM boundary (or the end).
	var pages [][]api.Activity
	pageToken := ""
	for {
		page, next, err := c.api.ListActivities(ctx, sessionID, c.pageSize, pageToken)
		if err != nil {
			return 0, err
		}
		if len(page) == 0 && next == "" {
			break
		}
		pages = append(pages, page)
		if hasHWM && pageAtOrBeforeHWM(page, hwmTime) {
			break
		}
		if next == "" {
			break
		}
		pageToken = next
	}

	// Append oldest first so log order matches event order.
	appended := 0
	for pi := len(pages) - 1; pi >= 0; pi-- {
		page := pages[pi]
		for i := len(page) - 1; i >= 0; i-- {
			a := page[i]
			if hasHWM {
				if a.CreateTime.Before(hwmTime) {
					continue
				}
				if a.CreateTime.Equal(hwmTime) {
					known, err := l.Has(a.ID)
					if err != nil {
						return appended, err
					}
					if known {
						continue
					}
				}
			} else {
				// Full fills may still race a concurrent write; the index
				// keeps the log duplicate-free.
				known, err := l.Has(a.ID)
				if err != nil {
					return appended, err
				}
				if known {
					continue
				}
			}
			if err := l.Append(a); err != nil {
				return appended, err
			}
			appended++
		}
	}
	return appended, nil
}

// pageAtOrBeforeHWM reports whether every activity on the page is at or
// before the mark, meaning no older page can contain anything new.
func pageAtOrBeforeHWM(page []api.Activity, hwmTime time.Time) bool {
	for i := range page {
		if page[i].CreateTime.After(hwmTime) {
			return false
		}
	}
	return true
}
