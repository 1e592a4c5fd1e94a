package snapshot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/droverhq/drover/internal/activity"
	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/cachestore"
	"github.com/droverhq/drover/internal/logstore"
	"github.com/droverhq/drover/internal/session"
)

const patch = `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,2 +1,3 @@
 package main
+func main() {}
`

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	exit := 2
	activities := []api.Activity{
		{ID: "a4", CreateTime: base.Add(3 * time.Minute), SessionCompleted: &api.SessionCompleted{}},
		{ID: "a3", CreateTime: base.Add(2 * time.Minute), Originator: "agent",
			AgentMessaged: &api.AgentMessaged{Message: "done"},
			Artifacts:     []api.Artifact{{BashOutput: &api.BashOutput{Command: "go test ./...", ExitCode: &exit}}}},
		{ID: "a2", CreateTime: base.Add(time.Minute), Originator: "user",
			UserMessaged: &api.UserMessaged{Message: "looks good"}},
		{ID: "a1", CreateTime: base, PlanGenerated: &api.PlanGenerated{
			Plan: api.Plan{Steps: []api.PlanStep{{Title: "one"}, {Title: "two"}}}}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/s1/activities", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"activities": activities})
	})
	mux.HandleFunc("GET /sessions/s1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name":       "sessions/s1",
			"state":      "COMPLETED",
			"title":      "demo run",
			"prompt":     "fix all the things",
			"createTime": base.Format(time.RFC3339),
			"updateTime": base.Add(4 * time.Minute).Format(time.RFC3339),
			"outputs": []map[string]any{
				{"pullRequest": map[string]any{"url": "https://github.com/acme/widgets/pull/7"}},
				{"changeSet": map[string]any{"gitPatch": map[string]any{"unidiffPatch": patch}}},
			},
		})
	})
	return httptest.NewServer(mux)
}

func newFixtures(t *testing.T, srv *httptest.Server) (*session.Engine, *activity.Client) {
	t.Helper()
	root := t.TempDir()
	c, err := api.NewClient(api.Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	store := cachestore.New(root, nil)
	eng := session.NewEngine(session.EngineConfig{API: c, Store: store})
	acts := activity.NewClient(activity.ClientConfig{
		API:   c,
		Logs:  logstore.NewRegistry(root, nil),
		Store: store,
	})
	return eng, acts
}

func TestBuildAggregates(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()
	eng, acts := newFixtures(t, srv)

	snap, err := Build(context.Background(), eng, acts, "s1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if snap.State != api.StateCompleted {
		t.Errorf("state = %s, want completed", snap.State)
	}
	if snap.DurationMs != 4*60*1000 {
		t.Errorf("durationMs = %d, want 240000", snap.DurationMs)
	}
	if snap.PullRequest == nil || snap.PullRequest.URL != "https://github.com/acme/widgets/pull/7" {
		t.Errorf("pullRequest = %+v", snap.PullRequest)
	}
	if len(snap.Files) != 1 || snap.Files[0].Path != "main.go" || snap.Files[0].Additions != 1 {
		t.Errorf("files = %+v", snap.Files)
	}
	if len(snap.Activities) != 4 {
		t.Fatalf("activities = %d, want 4", len(snap.Activities))
	}
	if snap.ActivityCounts[api.ActivityPlanGenerated] != 1 || snap.ActivityCounts[api.ActivitySessionCompleted] != 1 {
		t.Errorf("counts = %v", snap.ActivityCounts)
	}
	if snap.Insights.Completed != 1 || snap.Insights.PlansGenerated != 1 || snap.Insights.UserMessages != 1 {
		t.Errorf("insights = %+v", snap.Insights)
	}
	if len(snap.Insights.FailedCommands) != 1 || snap.Insights.FailedCommands[0].ID != "a3" {
		t.Errorf("failedCommands = %+v", snap.Insights.FailedCommands)
	}

	// Timeline follows log order with the summary rules applied.
	if len(snap.Timeline) != 4 {
		t.Fatalf("timeline = %d entries, want 4", len(snap.Timeline))
	}
	wantSummaries := []string{"Plan with 2 steps", "User: looks good", "Agent: done", "Session completed"}
	for i, want := range wantSummaries {
		if snap.Timeline[i].Summary != want {
			t.Errorf("timeline[%d].summary = %q, want %q", i, snap.Timeline[i].Summary, want)
		}
	}
}

func TestToJSONCollapsesFailedCommands(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()
	eng, acts := newFixtures(t, srv)

	snap, err := Build(context.Background(), eng, acts, "s1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	raw, err := snap.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	insights, _ := out["insights"].(map[string]any)
	if insights["failedCommandCount"] != float64(1) {
		t.Errorf("failedCommandCount = %v, want 1", insights["failedCommandCount"])
	}
	if _, ok := insights["failedCommands"]; ok {
		t.Error("failedCommands list must not appear in JSON")
	}
	if out["createdAt"] != "2026-08-20T12:00:00Z" {
		t.Errorf("createdAt = %v", out["createdAt"])
	}
}

func TestToMarkdownSectionOrder(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()
	eng, acts := newFixtures(t, srv)

	snap, err := Build(context.Background(), eng, acts, "s1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	md := snap.ToMarkdown()

	sections := []string{"# Session demo run", "## Overview", "## Insights", "## Timeline", "## Activity counts"}
	last := -1
	for _, s := range sections {
		idx := strings.Index(md, s)
		if idx < 0 {
			t.Fatalf("missing section %q", s)
		}
		if idx < last {
			t.Errorf("section %q out of order", s)
		}
		last = idx
	}
	if !strings.Contains(md, "`go test ./...` (exit 2)") {
		t.Errorf("expected failed command line, got:\n%s", md)
	}
}
