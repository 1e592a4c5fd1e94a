package logstore

import (
	"log/slog"
	"sync"

	"github.com/droverhq/drover/internal/logger"
	"github.com/droverhq/drover/internal/paths"
)

// Registry hands out at most one open Log per session. The append stream
// holds a single writer; everyone in the process shares it.
type Registry struct {
	mu   sync.Mutex
	root string
	open map[string]*Log
	log  *slog.Logger
}

// NewRegistry creates a registry rooted at the drover state root.
func NewRegistry(root string, lg *slog.Logger) *Registry {
	if lg == nil {
		lg = logger.WithComponent("logstore")
	}
	return &Registry{root: root, open: make(map[string]*Log), log: lg}
}

// Open returns the session's log, opening it on first use.
func (r *Registry) Open(sessionID string) (*Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.open[sessionID]; ok {
		return l, nil
	}
	l, err := Open(paths.SessionDir(r.root, sessionID), r.log)
	if err != nil {
		return nil, err
	}
	r.open[sessionID] = l
	return l, nil
}

// Remove closes and forgets the session's log, if open. Used when a
// session's cache entry is dropped.
func (r *Registry) Remove(sessionID string) error {
	r.mu.Lock()
	l, ok := r.open[sessionID]
	delete(r.open, sessionID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return l.Close()
}

// CloseAll closes every open log. The registry stays usable; logs reopen
// on demand.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	open := r.open
	r.open = make(map[string]*Log)
	r.mu.Unlock()
	for id, l := range open {
		if err := l.Close(); err != nil {
			r.log.Warn("closing activity log", "sessionID", id, "err", err)
		}
	}
}
