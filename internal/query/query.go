// Package query implements the local query language over the cached
// stores: field projection with array existential semantics, filtering,
// ordering, computed fields, and cursor pagination. Queries never touch
// the network.
package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxLimit caps a query's limit; larger values are warned about and capped.
const MaxLimit = 1000

// Valid values for Query.From.
const (
	FromSessions   = "sessions"
	FromActivities = "activities"
)

// Order directions.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// SearchKey is the special where key matching a substring anywhere in
// the record.
const SearchKey = "search"

// Query is one parsed query.
type Query struct {
	From       string         `json:"from"`
	Select     []string       `json:"select,omitempty"`
	Where      map[string]any `json:"where,omitempty"`
	Order      string         `json:"order,omitempty"`
	Limit      *int           `json:"limit,omitempty"`
	Offset     int            `json:"offset,omitempty"`
	StartAfter string         `json:"startAfter,omitempty"`
	StartAt    string         `json:"startAt,omitempty"`
	Include    []string       `json:"include,omitempty"`
}

// Result carries the rows plus any non-fatal validation warnings.
type Result struct {
	Rows     []map[string]any `json:"rows"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Source supplies the raw rows for a collection.
type Source interface {
	Rows(from string) ([]map[string]any, error)
}

// Parse decodes and structurally validates raw JSON into a Query.
func Parse(data []byte) (Query, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return Query{}, fmt.Errorf("query is not valid JSON: %w", err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return Query{}, fmt.Errorf("query must be a JSON object")
	}
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return Query{}, fmt.Errorf("malformed query: %w", err)
	}
	return q, nil
}

// knownOperators are the operator keys recognized in where-values.
var knownOperators = map[string]struct{}{
	"eq": {}, "neq": {}, "gt": {}, "lt": {}, "gte": {}, "lte": {},
	"contains": {}, "in": {}, "exists": {},
}

// computedFields lists computed fields per collection. They may be
// selected, never filtered.
var computedFields = map[string]map[string]bool{
	FromSessions:   {"durationMs": true},
	FromActivities: {"artifactCount": true, "summary": true},
}

// topLevelFields are the schema roots used for unknown-field warnings.
var topLevelFields = map[string]map[string]bool{
	FromSessions: {
		"id": true, "createTime": true, "updateTime": true, "state": true,
		"prompt": true, "title": true, "sourceContext": true,
		"automationMode": true, "outputs": true, "url": true,
		"lastSyncedAt": true,
	},
	FromActivities: {
		"id": true, "sessionId": true, "createTime": true, "originator": true,
		"artifacts": true, "agentMessaged": true, "userMessaged": true,
		"planGenerated": true, "planApproved": true, "progressUpdated": true,
		"sessionCompleted": true, "sessionFailed": true,
	},
}

// Validate checks the query before execution. Errors abort; warnings
// accompany the result.
func (q *Query) Validate() ([]string, error) {
	var warnings []string

	switch q.From {
	case FromSessions, FromActivities:
	case "":
		return nil, fmt.Errorf("from is required (sessions or activities)")
	default:
		return nil, fmt.Errorf("unknown collection %q (want sessions or activities)", q.From)
	}

	for _, sel := range q.Select {
		if err := validateSelectPath(sel); err != nil {
			return nil, err
		}
	}

	for key, val := range q.Where {
		if key == SearchKey {
			if _, ok := val.(string); !ok {
				return nil, fmt.Errorf("search value must be a string")
			}
			continue
		}
		root := strings.SplitN(key, ".", 2)[0]
		if computedFields[q.From][root] {
			return nil, fmt.Errorf("cannot filter on computed field %q", key)
		}
		if !topLevelFields[q.From][root] {
			warnings = append(warnings, fmt.Sprintf("unknown field %q in where", key))
		}
		if err := validateCondition(key, val); err != nil {
			return nil, err
		}
	}

	switch q.Order {
	case "", OrderAsc, OrderDesc:
	default:
		return nil, fmt.Errorf("order must be asc or desc, got %q", q.Order)
	}

	if q.Limit != nil {
		if *q.Limit < 0 {
			return nil, fmt.Errorf("limit must be non-negative, got %d", *q.Limit)
		}
		if *q.Limit > MaxLimit {
			warnings = append(warnings, fmt.Sprintf("limit %d capped to %d", *q.Limit, MaxLimit))
		}
	}
	if q.Offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative, got %d", q.Offset)
	}
	if q.StartAfter != "" && q.StartAt != "" {
		return nil, fmt.Errorf("startAfter and startAt are mutually exclusive")
	}

	return warnings, nil
}

func validateSelectPath(sel string) error {
	if sel == "*" {
		return nil
	}
	path := strings.TrimPrefix(sel, "-")
	if path == "" {
		return fmt.Errorf("empty select path")
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("select path %q has an empty segment", sel)
		}
	}
	return nil
}

// validateCondition checks an operator object's shapes. A non-object
// value is the eq shorthand and always passes.
func validateCondition(key string, val any) error {
	obj, ok := val.(map[string]any)
	if !ok {
		return nil
	}
	for op, operand := range obj {
		if _, known := knownOperators[op]; !known {
			// Not an operator object after all: treated as a nested
			// structural eq match.
			return nil
		}
		switch op {
		case "contains":
			if _, ok := operand.(string); !ok {
				return fmt.Errorf("%s.contains wants a string operand", key)
			}
		case "in":
			if _, ok := operand.([]any); !ok {
				return fmt.Errorf("%s.in wants an array operand", key)
			}
		case "exists":
			if _, ok := operand.(bool); !ok {
				return fmt.Errorf("%s.exists wants a boolean operand", key)
			}
		case "gt", "lt", "gte", "lte":
			switch operand.(type) {
			case float64, string:
			default:
				return fmt.Errorf("%s.%s wants a number or string operand", key, op)
			}
		}
	}
	return nil
}
