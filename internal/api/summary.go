package api

import (
	"fmt"
	"unicode/utf8"
)

const summaryMessageLimit = 100

// Summary renders a one-line human description of the activity.
func (a *Activity) Summary() string {
	switch a.Type() {
	case ActivityPlanGenerated:
		return fmt.Sprintf("Plan with %d steps", len(a.PlanGenerated.Plan.Steps))
	case ActivityPlanApproved:
		return "Plan approved"
	case ActivitySessionCompleted:
		return "Session completed"
	case ActivitySessionFailed:
		return "Failed: " + a.SessionFailed.Reason
	case ActivityUserMessaged:
		return "User: " + truncate(a.UserMessaged.Message, summaryMessageLimit)
	case ActivityAgentMessaged:
		return "Agent: " + truncate(a.AgentMessaged.Message, summaryMessageLimit)
	case ActivityProgressUpdated:
		if a.ProgressUpdated.Title != "" {
			return a.ProgressUpdated.Title
		}
		if a.ProgressUpdated.Description != "" {
			return a.ProgressUpdated.Description
		}
		return "Progress update"
	default:
		return string(a.Type())
	}
}

// truncate caps s at n runes; byte slicing could split a multi-byte
// rune mid-sequence.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
