// Package events carries user-visible progress out of the core packages.
//
// Core code never writes to stderr. It reports through a Reporter; the
// default sink appends JSONL to <root>/.jules/events.jsonl under a file
// lock so concurrent drover processes interleave cleanly, and the CLI
// tails that file for --follow output.
package events

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/droverhq/drover/internal/logger"
	"github.com/droverhq/drover/internal/paths"
)

// Event types emitted by the core.
const (
	TypeSessionCreated = "session_created"
	TypeSyncProgress   = "sync_progress"
	TypeSyncComplete   = "sync_complete"
	TypeMerged         = "merged"
	TypeMergeSkipped   = "merge_skipped"
	TypeRedispatched   = "redispatched"
	TypeWarning        = "warning"
)

// Event is one row of the feed.
type Event struct {
	Timestamp string         `json:"ts"`
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Summary   string         `json:"summary"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Reporter receives progress events from the core packages.
type Reporter interface {
	Report(e Event)
}

// Null is a Reporter that drops everything. Tests and library embedders
// that want a silent core use this.
type Null struct{}

func (Null) Report(Event) {}

// Feed appends events to the shared feed file. Safe for concurrent use
// within a process and across processes.
type Feed struct {
	path string
	mu   sync.Mutex // in-process; the flock coordinates across processes
	log  *slog.Logger
}

// NewFeed returns a feed writer rooted at the drover state root.
func NewFeed(root string, lg *slog.Logger) *Feed {
	if lg == nil {
		lg = logger.WithComponent("events")
	}
	return &Feed{path: paths.EventsFile(root), log: lg}
}

// Report appends the event. Failures are logged, never surfaced: a broken
// feed must not fail the operation being reported on.
func (f *Feed) Report(e Event) {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(e)
	if err != nil {
		f.log.Warn("marshaling event", "type", e.Type, "err", err)
		return
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	fl := flock.New(f.path + ".lock")
	if err := fl.Lock(); err != nil {
		f.log.Warn("acquiring feed lock", "err", err)
		return
	}
	defer fl.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		f.log.Warn("opening events feed", "path", f.path, "err", err)
		return
	}
	defer file.Close()
	if _, err := file.Write(data); err != nil {
		f.log.Warn("appending event", "err", err)
	}
}

// tailReadSize bounds how far back Recent scans.
const tailReadSize int64 = 1 << 20

// Recent returns feed events newer than the window, oldest first. Reads at
// most tailReadSize bytes from the end of the file.
func (f *Feed) Recent(window time.Duration) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl := flock.New(f.path + ".lock")
	if err := fl.RLock(); err != nil {
		return nil, err
	}
	defer fl.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.Size() == 0 {
		return nil, err
	}
	seekTo := info.Size() - tailReadSize
	if seekTo < 0 {
		seekTo = 0
	}
	if _, err := file.Seek(seekTo, io.SeekStart); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(file)
	if seekTo > 0 {
		scanner.Scan() // drop the partial line at the cut point
	}

	cutoff := time.Now().Add(-window)
	var out []Event
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, e.Timestamp)
		if err != nil {
			continue
		}
		if !ts.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, scanner.Err()
}
