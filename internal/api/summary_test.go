package api

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummary(t *testing.T) {
	cases := []struct {
		name string
		a    Activity
		want string
	}{
		{"plan", Activity{PlanGenerated: &PlanGenerated{Plan: Plan{Steps: []PlanStep{{}, {}, {}}}}}, "Plan with 3 steps"},
		{"approved", Activity{PlanApproved: &PlanApproved{}}, "Plan approved"},
		{"completed", Activity{SessionCompleted: &SessionCompleted{}}, "Session completed"},
		{"failed", Activity{SessionFailed: &SessionFailed{Reason: "oom"}}, "Failed: oom"},
		{"user", Activity{UserMessaged: &UserMessaged{Message: "hi"}}, "User: hi"},
		{"agent", Activity{AgentMessaged: &AgentMessaged{Message: "done"}}, "Agent: done"},
		{"progress title", Activity{ProgressUpdated: &ProgressUpdated{Title: "compiling"}}, "compiling"},
		{"progress bare", Activity{ProgressUpdated: &ProgressUpdated{}}, "Progress update"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Summary(); got != tc.want {
				t.Errorf("Summary() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSummaryTruncatesOnRunes(t *testing.T) {
	// 120 multi-byte runes; a byte-based cut at 100 would land
	// mid-sequence and produce invalid UTF-8.
	msg := strings.Repeat("é", 120)
	a := Activity{AgentMessaged: &AgentMessaged{Message: msg}}

	got := a.Summary()
	if !utf8.ValidString(got) {
		t.Fatalf("summary is not valid UTF-8: %q", got)
	}
	want := "Agent: " + strings.Repeat("é", 100) + "..."
	if got != want {
		t.Errorf("Summary() = %q, want 100 runes plus ellipsis", got)
	}
}

func TestSummaryShortMessageUntouched(t *testing.T) {
	a := Activity{UserMessaged: &UserMessaged{Message: strings.Repeat("x", 100)}}
	if got := a.Summary(); strings.HasSuffix(got, "...") {
		t.Errorf("message at the limit should not be truncated: %q", got)
	}
}
