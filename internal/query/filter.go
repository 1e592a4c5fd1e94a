package query

import (
	"encoding/json"
	"reflect"
	"strings"
)

// matches reports whether a record satisfies every where condition.
// Conditions on array-crossing paths match existentially: one matching
// element satisfies the condition.
func matches(record map[string]any, where map[string]any) bool {
	for key, cond := range where {
		if key == SearchKey {
			needle, _ := cond.(string)
			if !searchRecord(record, needle) {
				return false
			}
			continue
		}
		if !matchPath(record, key, cond) {
			return false
		}
	}
	return true
}

func matchPath(record map[string]any, path string, cond any) bool {
	values := resolve(record, path)

	if obj, ok := cond.(map[string]any); ok && isOperatorObject(obj) {
		return matchOperators(values, obj)
	}

	// Direct value: shorthand for eq.
	for _, v := range values {
		if looseEqual(v, cond) {
			return true
		}
	}
	return false
}

func isOperatorObject(obj map[string]any) bool {
	for op := range obj {
		if _, ok := knownOperators[op]; !ok {
			return false
		}
	}
	return len(obj) > 0
}

// matchOperators applies every operator in the object. Each operator is
// satisfied existentially over the resolved values; the object is
// satisfied when all its operators are.
func matchOperators(values []any, ops map[string]any) bool {
	for op, operand := range ops {
		if op == "exists" {
			want, _ := operand.(bool)
			if (len(values) > 0) != want {
				return false
			}
			continue
		}
		if !anyValueMatches(values, op, operand) {
			return false
		}
	}
	return true
}

func anyValueMatches(values []any, op string, operand any) bool {
	for _, v := range values {
		if valueMatches(v, op, operand) {
			return true
		}
	}
	return false
}

func valueMatches(v any, op string, operand any) bool {
	switch op {
	case "eq":
		return looseEqual(v, operand)
	case "neq":
		return !looseEqual(v, operand)
	case "contains":
		s, ok := v.(string)
		needle, _ := operand.(string)
		return ok && strings.Contains(s, needle)
	case "in":
		list, _ := operand.([]any)
		for _, want := range list {
			if looseEqual(v, want) {
				return true
			}
		}
		return false
	case "gt", "lt", "gte", "lte":
		return compareOrdered(v, operand, op)
	}
	return false
}

// compareOrdered compares numbers numerically and strings
// lexicographically. Mismatched types never match.
func compareOrdered(v, operand any, op string) bool {
	var cmp int
	switch want := operand.(type) {
	case float64:
		got, ok := v.(float64)
		if !ok {
			return false
		}
		switch {
		case got < want:
			cmp = -1
		case got > want:
			cmp = 1
		}
	case string:
		got, ok := v.(string)
		if !ok {
			return false
		}
		cmp = strings.Compare(got, want)
	default:
		return false
	}
	switch op {
	case "gt":
		return cmp > 0
	case "lt":
		return cmp < 0
	case "gte":
		return cmp >= 0
	case "lte":
		return cmp <= 0
	}
	return false
}

func looseEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// searchRecord matches the needle as a case-insensitive substring of any
// string leaf in the record.
func searchRecord(record map[string]any, needle string) bool {
	if needle == "" {
		return true
	}
	needle = strings.ToLower(needle)
	return searchValue(record, needle)
}

func searchValue(v any, needle string) bool {
	switch node := v.(type) {
	case string:
		return strings.Contains(strings.ToLower(node), needle)
	case map[string]any:
		for _, val := range node {
			if searchValue(val, needle) {
				return true
			}
		}
	case []any:
		for _, val := range node {
			if searchValue(val, needle) {
				return true
			}
		}
	case json.Number:
		return strings.Contains(node.String(), needle)
	}
	return false
}
