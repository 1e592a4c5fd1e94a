package query

import (
	"fmt"
	"sort"
	"strings"
)

// Run validates and executes a query against the source. Rows are
// filtered, ordered by createTime (id as tiebreak), positioned by
// cursor and offset, limited, then projected.
func Run(q Query, src Source) (*Result, error) {
	warnings, err := q.Validate()
	if err != nil {
		return nil, err
	}

	rows, err := src.Rows(q.From)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", q.From, err)
	}

	var kept []map[string]any
	for _, row := range rows {
		if matches(row, q.Where) {
			kept = append(kept, row)
		}
	}

	order := q.Order
	if order == "" {
		order = OrderAsc
	}
	sort.SliceStable(kept, func(i, j int) bool {
		less := rowLess(kept[i], kept[j])
		if order == OrderDesc {
			return !less
		}
		return less
	})

	if q.StartAfter != "" || q.StartAt != "" {
		kept = applyCursor(kept, q.StartAfter, q.StartAt)
	}
	if q.Offset > 0 {
		if q.Offset >= len(kept) {
			kept = nil
		} else {
			kept = kept[q.Offset:]
		}
	}
	if q.Limit != nil {
		limit := *q.Limit
		if limit > MaxLimit {
			limit = MaxLimit
		}
		if limit < len(kept) {
			kept = kept[:limit]
		}
	}

	out := make([]map[string]any, 0, len(kept))
	for _, row := range kept {
		out = append(out, projectRow(q, row))
	}
	return &Result{Rows: out, Warnings: warnings}, nil
}

func rowLess(a, b map[string]any) bool {
	at, _ := a["createTime"].(string)
	bt, _ := b["createTime"].(string)
	if at != bt {
		return at < bt
	}
	ai, _ := a["id"].(string)
	bi, _ := b["id"].(string)
	return ai < bi
}

// applyCursor advances the ordered sequence to the row with the cursor
// id: startAfter excludes it, startAt includes it. An unknown id yields
// an empty sequence.
func applyCursor(rows []map[string]any, startAfter, startAt string) []map[string]any {
	id := startAfter
	inclusive := false
	if startAt != "" {
		id = startAt
		inclusive = true
	}
	for i, row := range rows {
		if rid, _ := row["id"].(string); rid == id {
			if inclusive {
				return rows[i:]
			}
			return rows[i+1:]
		}
	}
	return nil
}

// projectRow applies the select clause: no clause or "*" keeps the whole
// record, "-path" entries exclude, plain paths include. Computed fields
// are materialized only when selected.
func projectRow(q Query, row map[string]any) map[string]any {
	var includes, excludes, computed []string
	wildcard := len(q.Select) == 0
	for _, sel := range q.Select {
		switch {
		case sel == "*":
			wildcard = true
		case strings.HasPrefix(sel, "-"):
			excludes = append(excludes, sel[1:])
		case computedFields[q.From][strings.SplitN(sel, ".", 2)[0]]:
			computed = append(computed, sel)
		default:
			includes = append(includes, sel)
		}
	}

	var out map[string]any
	if wildcard {
		out = deepCopy(row).(map[string]any)
	} else {
		out = map[string]any{}
		src := deepCopy(row)
		for _, path := range includes {
			project(out, src, path)
		}
	}
	for _, path := range excludes {
		exclude(out, path)
	}
	for _, field := range computed {
		if v, ok := computeField(q.From, row, field); ok {
			out[field] = v
		}
	}
	return out
}
