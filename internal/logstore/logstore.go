// Package logstore persists per-session activity logs.
//
// Each session owns one append-only JSONL file plus a metadata sidecar
// holding the activity count. Appends are O(1); random access by activity
// id goes through an in-memory offset index built lazily with a single
// coalesced scan. The log is the source of truth: a metadata count that
// disagrees with the file is reconciled from the file, never the other
// way around.
package logstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/logger"
	"github.com/droverhq/drover/internal/util"
)

// tailChunkSize bounds each backward read Latest performs.
const tailChunkSize = 4096

// ErrClosed is returned for operations on a closed log.
var ErrClosed = errors.New("activity log is closed")

// Metadata is the sidecar record next to the log file.
type Metadata struct {
	ActivityCount int `json:"activityCount"`
}

// Log is the append-only activity log of one session.
type Log struct {
	mu       sync.Mutex
	dir      string
	path     string
	metaPath string
	file     *os.File // append writer, nil after Close
	size     int64    // append cursor, equals file size
	count    int      // cached metadata count
	closed   bool

	// Offset index, built on demand. building is non-nil while a scan is
	// in flight so concurrent callers can await it instead of re-scanning.
	index      map[string]int64
	indexBuilt bool
	building   chan struct{}
	buildErr   error

	// High-water mark tracked alongside the index.
	hwmTime time.Time
	hwmID   string

	log *slog.Logger
}

// Open creates the session directory and log file if needed and positions
// the append cursor at EOF. Idempotent: opening an existing log picks up
// its current size and metadata.
func Open(dir string, lg *slog.Logger) (*Log, error) {
	if lg == nil {
		lg = logger.WithComponent("logstore")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}

	path := filepath.Join(dir, "activities.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening activity log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat activity log: %w", err)
	}

	l := &Log{
		dir:      dir,
		path:     path,
		metaPath: filepath.Join(dir, "metadata.json"),
		file:     f,
		size:     info.Size(),
		log:      lg,
	}

	var meta Metadata
	if err := util.ReadJSON(l.metaPath, &meta); err == nil {
		l.count = meta.ActivityCount
	} else if !os.IsNotExist(err) {
		l.log.Warn("unreadable activity metadata, will reconcile from log", "path", l.metaPath, "err", err)
	}
	return l, nil
}

// Append encodes the activity as one JSON line and appends it. The
// metadata count is bumped before the write so a reader observing count N
// can rely on at least N records eventually being readable. The offset
// index always learns the record's pre-write offset, even before the
// first scan: a build in flight reads the file without the lock, so an
// append landing behind the scanner would otherwise never be indexed.
func (l *Log) Append(a api.Activity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	line, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding activity %s: %w", a.ID, err)
	}
	line = append(line, '\n')

	if err := util.AtomicWriteJSON(l.metaPath, Metadata{ActivityCount: l.count + 1}); err != nil {
		return fmt.Errorf("bumping activity count: %w", err)
	}
	l.count++

	offset := l.size
	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("appending activity %s: %w", a.ID, err)
	}
	l.size += int64(len(line))

	if l.index == nil {
		l.index = make(map[string]int64)
	}
	l.index[a.ID] = offset
	if l.hwmID == "" || a.CreateTime.After(l.hwmTime) {
		l.hwmTime = a.CreateTime
		l.hwmID = a.ID
	}
	return nil
}

// Get returns the activity with the given id, or ok=false when the id is
// not in the log. The first call scans the file once to build the offset
// index; concurrent first calls share that one scan.
func (l *Log) Get(id string) (api.Activity, bool, error) {
	if err := l.ensureIndex(); err != nil {
		return api.Activity{}, false, err
	}

	l.mu.Lock()
	offset, ok := l.index[id]
	l.mu.Unlock()
	if !ok {
		return api.Activity{}, false, nil
	}

	f, err := os.Open(l.path)
	if err != nil {
		return api.Activity{}, false, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return api.Activity{}, false, fmt.Errorf("seeking to activity %s: %w", id, err)
	}

	line, err := readLine(f)
	if err != nil {
		return api.Activity{}, false, fmt.Errorf("reading activity %s: %w", id, err)
	}
	var a api.Activity
	if err := json.Unmarshal(line, &a); err != nil {
		return api.Activity{}, false, fmt.Errorf("decoding activity %s at offset %d: %w", id, offset, err)
	}
	return a, true, nil
}

// Has reports whether the id is present in the log.
func (l *Log) Has(id string) (bool, error) {
	if err := l.ensureIndex(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[id]
	return ok, nil
}

// HWM returns the high-water mark: the newest createTime in the log and
// the id carrying it. ok=false on an empty log.
func (l *Log) HWM() (time.Time, string, bool, error) {
	if err := l.ensureIndex(); err != nil {
		return time.Time{}, "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hwmID == "" && l.hwmTime.IsZero() {
		return time.Time{}, "", false, nil
	}
	return l.hwmTime, l.hwmID, true, nil
}

// Count returns the activity count, reconciled against the log when the
// metadata sidecar disagrees.
func (l *Log) Count() (int, error) {
	if err := l.ensureIndex(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.index); l.count != n {
		l.count = n
		if err := util.AtomicWriteJSON(l.metaPath, Metadata{ActivityCount: n}); err != nil {
			l.log.Warn("persisting reconciled activity count", "path", l.metaPath, "err", err)
		}
	}
	return l.count, nil
}

// Latest returns the newest decodable record by scanning the file tail in
// bounded chunks. Corrupt trailing lines are skipped with a warning.
func (l *Log) Latest() (api.Activity, bool, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return api.Activity{}, false, nil
		}
		return api.Activity{}, false, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return api.Activity{}, false, fmt.Errorf("stat activity log: %w", err)
	}

	offset := info.Size()
	var tail []byte
	for offset > 0 {
		chunk := int64(tailChunkSize)
		if offset < chunk {
			chunk = offset
		}
		offset -= chunk
		buf := make([]byte, chunk)
		if _, err := f.ReadAt(buf, offset); err != nil {
			return api.Activity{}, false, fmt.Errorf("reading log tail: %w", err)
		}
		tail = append(buf, tail...)

		// Only complete lines count; when the window starts mid-file the
		// first segment may be a partial line.
		region := tail
		if offset > 0 {
			i := bytes.IndexByte(region, '\n')
			if i < 0 {
				continue
			}
			region = region[i+1:]
		}
		if a, ok := l.lastDecodable(region); ok {
			return a, true, nil
		}
	}
	return api.Activity{}, false, nil
}

// lastDecodable returns the record of the last decodable line in region.
func (l *Log) lastDecodable(region []byte) (api.Activity, bool) {
	lines := bytes.Split(region, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		var a api.Activity
		if err := json.Unmarshal(line, &a); err != nil {
			l.log.Warn("skipping corrupt activity line", "path", l.path, "err", err)
			continue
		}
		return a, true
	}
	return api.Activity{}, false
}

// Scan iterates the whole log in append order, invoking fn per record
// until fn returns false. Malformed lines are logged and skipped.
func (l *Log) Scan(fn func(api.Activity) bool) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	return scanLines(f, func(line []byte, offset int64) bool {
		var a api.Activity
		if err := json.Unmarshal(line, &a); err != nil {
			l.log.Warn("skipping malformed activity line", "path", l.path, "offset", offset, "err", err)
			return true
		}
		return fn(a)
	})
}

// All returns every decodable record in append order.
func (l *Log) All() ([]api.Activity, error) {
	var out []api.Activity
	err := l.Scan(func(a api.Activity) bool {
		out = append(out, a)
		return true
	})
	return out, err
}

// Close flushes the writer and drops the index. The log can be reopened
// with Open.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.index = nil
	l.indexBuilt = false
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("closing activity log: %w", err)
	}
	return nil
}

// ensureIndex builds the offset index exactly once, coalescing concurrent
// builders: the second caller waits for the in-flight scan instead of
// starting another.
func (l *Log) ensureIndex() error {
	l.mu.Lock()
	for {
		if l.closed {
			l.mu.Unlock()
			return ErrClosed
		}
		if l.indexBuilt {
			l.mu.Unlock()
			return nil
		}
		if l.building == nil {
			break
		}
		ch := l.building
		l.mu.Unlock()
		<-ch
		l.mu.Lock()
		if l.buildErr != nil {
			err := l.buildErr
			l.mu.Unlock()
			return err
		}
	}
	ch := make(chan struct{})
	l.building = ch
	l.mu.Unlock()

	index, hwmTime, hwmID, err := l.buildIndex()

	l.mu.Lock()
	l.building = nil
	l.buildErr = err
	if err == nil {
		// Append records every write into l.index under the lock, so
		// entries that raced past the scanner are already present here;
		// merging the scan on top keeps both sides.
		if l.index == nil {
			l.index = index
		} else {
			for id, off := range index {
				l.index[id] = off
			}
		}
		l.indexBuilt = true
		if hwmTime.After(l.hwmTime) {
			l.hwmTime = hwmTime
			l.hwmID = hwmID
		}
	}
	l.mu.Unlock()
	close(ch)
	return err
}

// buildIndex scans the file once, producing id→offset plus the high-water
// mark seen. Corrupt lines get no entry.
func (l *Log) buildIndex() (map[string]int64, time.Time, string, error) {
	index := make(map[string]int64)
	var hwmTime time.Time
	var hwmID string

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return index, hwmTime, hwmID, nil
		}
		return nil, hwmTime, hwmID, fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	err = scanLines(f, func(line []byte, offset int64) bool {
		var a api.Activity
		if err := json.Unmarshal(line, &a); err != nil {
			l.log.Warn("skipping corrupt activity line during index build", "path", l.path, "offset", offset, "err", err)
			return true
		}
		index[a.ID] = offset
		if a.CreateTime.After(hwmTime) {
			hwmTime = a.CreateTime
			hwmID = a.ID
		}
		return true
	})
	if err != nil {
		return nil, hwmTime, hwmID, err
	}
	return index, hwmTime, hwmID, nil
}

// scanLines walks r line by line, passing each non-empty line and its byte
// offset to fn until fn returns false. bufio.Reader.ReadBytes is used
// instead of a Scanner so oversized records (inline media) still read.
func scanLines(r io.Reader, fn func(line []byte, offset int64) bool) error {
	br := bufio.NewReader(r)
	var offset int64
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := bytes.TrimRight(line, "\n")
			if len(bytes.TrimSpace(trimmed)) > 0 {
				if !fn(trimmed, offset) {
					return nil
				}
			}
			offset += int64(len(line))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading activity log: %w", err)
		}
	}
}

// readLine reads one line (without the trailing newline) from r.
func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	return bytes.TrimRight(line, "\n"), nil
}
