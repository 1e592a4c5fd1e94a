package query

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/cachestore"
	"github.com/droverhq/drover/internal/logstore"
)

// StoreSource serves query rows from the local cache. Session rows are
// the full cached resources stamped with lastSyncedAt; activity rows come
// from every cached session's log with sessionId attached.
type StoreSource struct {
	Store *cachestore.Store
	Logs  *logstore.Registry
}

func (s *StoreSource) Rows(from string) ([]map[string]any, error) {
	switch from {
	case FromSessions:
		return s.sessionRows()
	case FromActivities:
		return s.activityRows()
	default:
		return nil, fmt.Errorf("unknown collection %q", from)
	}
}

func (s *StoreSource) sessionRows() ([]map[string]any, error) {
	entries, err := s.Store.ScanIndex()
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		cached, err := s.Store.Get(entry.ID)
		if err != nil {
			return nil, err
		}
		if cached == nil {
			continue
		}
		row, err := toRow(cached.Resource)
		if err != nil {
			return nil, err
		}
		if !cached.LastSyncedAt.IsZero() {
			row["lastSyncedAt"] = cached.LastSyncedAt.Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *StoreSource) activityRows() ([]map[string]any, error) {
	entries, err := s.Store.ScanIndex()
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	for _, entry := range entries {
		l, err := s.Logs.Open(entry.ID)
		if err != nil {
			return nil, err
		}
		acts, err := l.All()
		if err != nil {
			return nil, err
		}
		for _, a := range acts {
			row, err := toRow(a)
			if err != nil {
				return nil, err
			}
			row["sessionId"] = entry.ID
			if len(a.Artifacts) > 0 {
				flat, err := flattenArtifacts(a.Artifacts)
				if err != nil {
					return nil, err
				}
				row["artifacts"] = flat
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// flattenArtifacts rewrites the tagged-variant artifact shape into flat
// objects carrying a type tag, so paths like artifacts.exitCode resolve
// without naming the variant.
func flattenArtifacts(artifacts []api.Artifact) ([]any, error) {
	out := make([]any, 0, len(artifacts))
	for _, art := range artifacts {
		var inner any
		switch {
		case art.ChangeSet != nil:
			inner = art.ChangeSet
		case art.Media != nil:
			inner = art.Media
		case art.BashOutput != nil:
			inner = art.BashOutput
		}
		flat := map[string]any{"type": art.Type()}
		if inner != nil {
			m, err := toRow(inner)
			if err != nil {
				return nil, err
			}
			for k, v := range m {
				flat[k] = v
			}
		}
		out = append(out, flat)
	}
	return out, nil
}

// toRow round-trips a domain value through JSON into the generic map
// shape the engine filters and projects over.
func toRow(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return row, nil
}
