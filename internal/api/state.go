package api

import "strings"

// The server has shipped two spellings of the state enum: bare
// SCREAMING_SNAKE ("IN_PROGRESS") and STATE_-prefixed
// ("STATE_IN_PROGRESS"). Both are accepted here.
var stateByWire = map[string]State{
	"UNSPECIFIED":            StateUnspecified,
	"QUEUED":                 StateQueued,
	"PLANNING":               StatePlanning,
	"AWAITING_PLAN_APPROVAL": StateAwaitingPlanApproval,
	"AWAITING_USER_FEEDBACK": StateAwaitingUserFeedback,
	"IN_PROGRESS":            StateInProgress,
	"PAUSED":                 StatePaused,
	"COMPLETED":              StateCompleted,
	"FAILED":                 StateFailed,
}

// NormalizeState maps a wire state value to its lowerCamel form.
// Absent values map to StateUnspecified; unknown values pass through
// lowercased so new server states do not break reads.
func NormalizeState(wire string) State {
	if wire == "" {
		return StateUnspecified
	}
	key := strings.TrimPrefix(wire, "STATE_")
	if s, ok := stateByWire[key]; ok {
		return s
	}
	return State(strings.ToLower(key))
}

// NormalizeAutomationMode maps the wire automation mode. Only
// AUTOMATION_MODE_UNSPECIFIED and AUTO_CREATE_PR are recognized.
func NormalizeAutomationMode(wire string) AutomationMode {
	switch strings.TrimPrefix(wire, "AUTOMATION_MODE_") {
	case "", "UNSPECIFIED":
		return AutomationUnspecified
	case "AUTO_CREATE_PR":
		return AutomationAutoCreatePR
	default:
		return AutomationMode(strings.ToLower(wire))
	}
}

// wireAutomationMode is the inverse mapping for create requests.
func wireAutomationMode(m AutomationMode) string {
	switch m {
	case AutomationAutoCreatePR:
		return "AUTO_CREATE_PR"
	default:
		return "AUTOMATION_MODE_UNSPECIFIED"
	}
}

// NormalizeOriginator lowercases the wire originator enum.
func NormalizeOriginator(wire string) string {
	if wire == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(wire, "ORIGINATOR_"))
}
