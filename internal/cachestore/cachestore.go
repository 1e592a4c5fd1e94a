// Package cachestore persists the local replica of remote sessions: one
// atomically written session.json per session plus a global append-only
// index. The index is never rewritten in place; readers deduplicate by id
// with last write winning.
package cachestore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/logger"
	"github.com/droverhq/drover/internal/paths"
	"github.com/droverhq/drover/internal/util"
)

// upsertParallelism bounds concurrent session.json writes in UpsertMany.
const upsertParallelism = 8

// CachedSession is the per-session record: the server resource plus the
// local instant it was last synced.
type CachedSession struct {
	Resource     api.Session `json:"resource"`
	LastSyncedAt time.Time   `json:"lastSyncedAt"`
}

// IndexEntry is the lightweight row appended to sessions.jsonl on every
// upsert.
type IndexEntry struct {
	ID         string    `json:"id"`
	Title      string    `json:"title,omitempty"`
	State      api.State `json:"state"`
	CreateTime time.Time `json:"createTime"`
	Source     string    `json:"source,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Checkpoint records sync progress so an interrupted run can resume.
type Checkpoint struct {
	LastProcessedSessionID string    `json:"lastProcessedSessionId"`
	SessionsProcessed      int       `json:"sessionsProcessed"`
	StartedAt              time.Time `json:"startedAt"`
}

// Store owns the session cache under one root directory.
type Store struct {
	root string
	mu   sync.Mutex // serializes index appends
	now  func() time.Time
	log  *slog.Logger
}

// New returns a store rooted at the drover state root.
func New(root string, lg *slog.Logger) *Store {
	if lg == nil {
		lg = logger.WithComponent("cachestore")
	}
	return &Store{root: root, now: time.Now, log: lg}
}

// Upsert writes session.json atomically, then appends an index entry.
func (s *Store) Upsert(sess api.Session) error {
	cached := CachedSession{Resource: sess, LastSyncedAt: s.now()}
	if err := util.AtomicWriteJSON(paths.SessionFile(s.root, sess.ID), cached); err != nil {
		return fmt.Errorf("writing session %s: %w", sess.ID, err)
	}

	entry := IndexEntry{
		ID:         sess.ID,
		Title:      sess.Title,
		State:      sess.State,
		CreateTime: sess.CreateTime,
		UpdatedAt:  cached.LastSyncedAt,
	}
	if sess.SourceContext != nil {
		entry.Source = sess.SourceContext.Source
	}
	return s.appendIndex(entry)
}

// UpsertMany upserts sessions in parallel. The per-session files are
// written concurrently; index appends stay serialized on the store mutex.
func (s *Store) UpsertMany(sessions []api.Session) error {
	var g errgroup.Group
	g.SetLimit(upsertParallelism)
	for i := range sessions {
		sess := sessions[i]
		g.Go(func() error { return s.Upsert(sess) })
	}
	return g.Wait()
}

// Get reads the cached record for id. Returns (nil, nil) when the session
// has never been cached.
func (s *Store) Get(id string) (*CachedSession, error) {
	var cached CachedSession
	err := util.ReadJSON(paths.SessionFile(s.root, id), &cached)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	return &cached, nil
}

// Delete drops the session directory: record, activity log, metadata.
// The global index keeps its rows; readers resolve liveness via Get.
func (s *Store) Delete(id string) error {
	if err := os.RemoveAll(paths.SessionDir(s.root, id)); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// ScanIndex reads the index log and yields entries deduplicated by id,
// last write wins, in first-appearance order.
func (s *Store) ScanIndex() ([]IndexEntry, error) {
	f, err := os.Open(paths.IndexFile(s.root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening session index: %w", err)
	}
	defer f.Close()

	var order []string
	latest := make(map[string]IndexEntry)

	br := bufio.NewReader(f)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var e IndexEntry
			if uerr := json.Unmarshal(bytes.TrimSpace(line), &e); uerr != nil {
				s.log.Warn("skipping malformed index entry", "err", uerr)
			} else {
				if _, seen := latest[e.ID]; !seen {
					order = append(order, e.ID)
				}
				latest[e.ID] = e
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading session index: %w", err)
		}
	}

	entries := make([]IndexEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, latest[id])
	}
	return entries, nil
}

// NewestCreateTime returns the maximum createTime across the index, the
// basis of incremental sync. ok=false when the index is empty.
func (s *Store) NewestCreateTime() (time.Time, bool, error) {
	entries, err := s.ScanIndex()
	if err != nil {
		return time.Time{}, false, err
	}
	var newest time.Time
	var found bool
	for _, e := range entries {
		if !found || e.CreateTime.After(newest) {
			newest = e.CreateTime
			found = true
		}
	}
	return newest, found, nil
}

// appendIndex appends one entry to sessions.jsonl.
func (s *Store) appendIndex(e IndexEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding index entry %s: %w", e.ID, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	path := paths.IndexFile(s.root)
	if err := os.MkdirAll(paths.CacheDir(s.root), 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening session index: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("appending index entry %s: %w", e.ID, err)
	}
	return nil
}

// LoadCheckpoint reads the sync checkpoint. Absent and corrupt files both
// read as "no checkpoint".
func (s *Store) LoadCheckpoint() (*Checkpoint, error) {
	var ckpt Checkpoint
	err := util.ReadJSON(paths.CheckpointFile(s.root), &ckpt)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		s.log.Warn("unreadable sync checkpoint, starting fresh", "err", err)
		return nil, nil
	}
	if ckpt.LastProcessedSessionID == "" {
		return nil, nil
	}
	return &ckpt, nil
}

// SaveCheckpoint persists the checkpoint atomically.
func (s *Store) SaveCheckpoint(ckpt Checkpoint) error {
	return util.AtomicWriteJSON(paths.CheckpointFile(s.root), ckpt)
}

// ClearCheckpoint removes the checkpoint file if present.
func (s *Store) ClearCheckpoint() error {
	err := os.Remove(paths.CheckpointFile(s.root))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing sync checkpoint: %w", err)
	}
	return nil
}
