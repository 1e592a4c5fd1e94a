package query

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/cachestore"
	"github.com/droverhq/drover/internal/logstore"
)

type fakeSource map[string][]map[string]any

func (f fakeSource) Rows(from string) ([]map[string]any, error) {
	return f[from], nil
}

func row(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return m
}

func sessionRows(t *testing.T) []map[string]any {
	return []map[string]any{
		row(t, `{"id":"s1","createTime":"2026-08-01T10:00:00Z","updateTime":"2026-08-01T10:00:30Z","state":"completed","title":"fix login","prompt":"please fix the login page"}`),
		row(t, `{"id":"s2","createTime":"2026-08-02T10:00:00Z","updateTime":"2026-08-02T11:00:00Z","state":"failed","title":"add tests"}`),
		row(t, `{"id":"s3","createTime":"2026-08-03T10:00:00Z","updateTime":"2026-08-03T10:00:00Z","state":"inProgress","title":"refactor auth"}`),
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		q    Query
		want string
	}{
		{"missing from", Query{}, "from is required"},
		{"bad from", Query{From: "widgets"}, "unknown collection"},
		{"computed filter", Query{From: FromActivities, Where: map[string]any{"summary": "x"}}, "computed field"},
		{"bad order", Query{From: FromSessions, Order: "sideways"}, "order must be"},
		{"negative offset", Query{From: FromSessions, Offset: -1}, "offset must be"},
		{"both cursors", Query{From: FromSessions, StartAfter: "a", StartAt: "b"}, "mutually exclusive"},
		{"contains non-string", Query{From: FromSessions, Where: map[string]any{"title": map[string]any{"contains": 3.0}}}, "wants a string"},
		{"in non-array", Query{From: FromSessions, Where: map[string]any{"state": map[string]any{"in": "completed"}}}, "wants an array"},
		{"exists non-bool", Query{From: FromSessions, Where: map[string]any{"outputs": map[string]any{"exists": "yes"}}}, "wants a boolean"},
		{"search non-string", Query{From: FromSessions, Where: map[string]any{"search": 1.0}}, "must be a string"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.q.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %q", tc.want, err)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	limit := 5000
	q := Query{
		From:  FromSessions,
		Where: map[string]any{"flavor": "grape"},
		Limit: &limit,
	}
	warnings, err := q.Validate()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
}

func TestParseRejectsNonObject(t *testing.T) {
	if _, err := Parse([]byte(`["sessions"]`)); err == nil {
		t.Error("expected error for array query")
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestRunFiltersAndOrders(t *testing.T) {
	src := fakeSource{FromSessions: sessionRows(t)}

	res, err := Run(Query{
		From:  FromSessions,
		Where: map[string]any{"state": map[string]any{"in": []any{"completed", "failed"}}},
		Order: OrderDesc,
	}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0]["id"] != "s2" || res.Rows[1]["id"] != "s1" {
		t.Errorf("expected desc order s2,s1, got %v,%v", res.Rows[0]["id"], res.Rows[1]["id"])
	}
}

func TestRunOperators(t *testing.T) {
	src := fakeSource{FromSessions: sessionRows(t)}
	cases := []struct {
		name  string
		where map[string]any
		want  []string
	}{
		{"eq shorthand", map[string]any{"state": "completed"}, []string{"s1"}},
		{"neq", map[string]any{"state": map[string]any{"neq": "completed"}}, []string{"s2", "s3"}},
		{"contains", map[string]any{"title": map[string]any{"contains": "auth"}}, []string{"s3"}},
		{"gt on time strings", map[string]any{"createTime": map[string]any{"gt": "2026-08-01T23:59:59Z"}}, []string{"s2", "s3"}},
		{"lte", map[string]any{"createTime": map[string]any{"lte": "2026-08-02T10:00:00Z"}}, []string{"s1", "s2"}},
		{"exists true", map[string]any{"prompt": map[string]any{"exists": true}}, []string{"s1"}},
		{"exists false", map[string]any{"prompt": map[string]any{"exists": false}}, []string{"s2", "s3"}},
		{"search", map[string]any{"search": "LOGIN"}, []string{"s1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Run(Query{From: FromSessions, Where: tc.where}, src)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, r := range res.Rows {
				ids = append(ids, r["id"].(string))
			}
			if !reflect.DeepEqual(ids, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, ids)
			}
		})
	}
}

func TestRunProjectionThroughArray(t *testing.T) {
	activity := row(t, `{
		"id":"a1","createTime":"2026-08-01T10:00:00Z",
		"artifacts":[{"type":"bashOutput","exitCode":1},{"type":"media"}]
	}`)
	src := fakeSource{FromActivities: []map[string]any{activity}}

	res, err := Run(Query{
		From:   FromActivities,
		Select: []string{"id", "artifacts.type"},
	}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	want := map[string]any{
		"id": "a1",
		"artifacts": []any{
			map[string]any{"type": "bashOutput"},
			map[string]any{"type": "media"},
		},
	}
	if !reflect.DeepEqual(res.Rows[0], want) {
		t.Errorf("expected %v, got %v", want, res.Rows[0])
	}
}

func TestRunExistentialWhereThroughArray(t *testing.T) {
	withFail := row(t, `{"id":"a1","createTime":"2026-08-01T10:00:00Z","artifacts":[{"type":"bashOutput","exitCode":1},{"type":"media"}]}`)
	clean := row(t, `{"id":"a2","createTime":"2026-08-01T11:00:00Z","artifacts":[{"type":"bashOutput","exitCode":0}]}`)
	src := fakeSource{FromActivities: []map[string]any{withFail, clean}}

	res, err := Run(Query{
		From:  FromActivities,
		Where: map[string]any{"artifacts.exitCode": map[string]any{"gt": 0.0}},
	}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["id"] != "a1" {
		t.Errorf("expected only a1 to match, got %v", res.Rows)
	}
}

func TestRunWildcardWithExclusion(t *testing.T) {
	src := fakeSource{FromSessions: sessionRows(t)}
	res, err := Run(Query{
		From:   FromSessions,
		Select: []string{"*", "-prompt"},
		Where:  map[string]any{"id": "s1"},
	}, src)
	if err != nil {
		t.Fatal(err)
	}
	r := res.Rows[0]
	if _, ok := r["prompt"]; ok {
		t.Error("expected prompt excluded")
	}
	if r["title"] != "fix login" {
		t.Errorf("expected other fields kept, got %v", r)
	}
	// Exclusion must not mutate the source row.
	if _, ok := sessionRows(t)[0]["prompt"]; !ok {
		t.Error("fixture lost prompt")
	}
}

func TestRunCursorsOffsetLimit(t *testing.T) {
	src := fakeSource{FromSessions: sessionRows(t)}

	res, err := Run(Query{From: FromSessions, StartAfter: "s1"}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 || res.Rows[0]["id"] != "s2" {
		t.Errorf("startAfter: expected s2,s3, got %v", res.Rows)
	}

	res, err = Run(Query{From: FromSessions, StartAt: "s2"}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 2 || res.Rows[0]["id"] != "s2" {
		t.Errorf("startAt: expected s2,s3, got %v", res.Rows)
	}

	res, err = Run(Query{From: FromSessions, StartAfter: "nope"}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("unknown cursor: expected empty, got %v", res.Rows)
	}

	one := 1
	res, err = Run(Query{From: FromSessions, Offset: 1, Limit: &one}, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["id"] != "s2" {
		t.Errorf("offset+limit: expected s2, got %v", res.Rows)
	}
}

func TestRunComputedFields(t *testing.T) {
	src := fakeSource{
		FromSessions: sessionRows(t),
		FromActivities: []map[string]any{
			row(t, `{"id":"a1","createTime":"2026-08-01T10:00:00Z","artifacts":[{"type":"media"},{"type":"bashOutput"}],"agentMessaged":{"message":"done"}}`),
		},
	}

	res, err := Run(Query{
		From:   FromSessions,
		Select: []string{"id", "durationMs"},
		Where:  map[string]any{"id": "s1"},
	}, src)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Rows[0]["durationMs"]; got != int64(30*time.Second/time.Millisecond) {
		t.Errorf("expected durationMs 30000, got %v", got)
	}

	res, err = Run(Query{
		From:   FromActivities,
		Select: []string{"id", "artifactCount", "summary"},
	}, src)
	if err != nil {
		t.Fatal(err)
	}
	r := res.Rows[0]
	if r["artifactCount"] != 2 {
		t.Errorf("expected artifactCount 2, got %v", r["artifactCount"])
	}
	if r["summary"] != "Agent: done" {
		t.Errorf("expected summary %q, got %v", "Agent: done", r["summary"])
	}
}

func TestStoreSourceRows(t *testing.T) {
	root := t.TempDir()
	store := cachestore.New(root, nil)
	logs := logstore.NewRegistry(root, nil)
	defer logs.CloseAll()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	sess := api.Session{ID: "s1", CreateTime: base, UpdateTime: base.Add(time.Minute), State: api.StateCompleted, Title: "demo"}
	if err := store.Upsert(sess); err != nil {
		t.Fatal(err)
	}
	l, err := logs.Open("s1")
	if err != nil {
		t.Fatal(err)
	}
	exit := 1
	err = l.Append(api.Activity{
		ID:         "a1",
		CreateTime: base.Add(time.Second),
		Artifacts:  []api.Artifact{{BashOutput: &api.BashOutput{Command: "make", ExitCode: &exit}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	src := &StoreSource{Store: store, Logs: logs}

	sessions, err := src.Rows(FromSessions)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0]["id"] != "s1" {
		t.Fatalf("expected session s1, got %v", sessions)
	}
	if _, ok := sessions[0]["lastSyncedAt"]; !ok {
		t.Error("expected lastSyncedAt stamped on session row")
	}

	acts, err := src.Rows(FromActivities)
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 {
		t.Fatalf("expected 1 activity row, got %d", len(acts))
	}
	if acts[0]["sessionId"] != "s1" {
		t.Errorf("expected sessionId attached, got %v", acts[0])
	}
	arts, _ := acts[0]["artifacts"].([]any)
	if len(arts) != 1 {
		t.Fatalf("expected 1 flattened artifact, got %v", acts[0]["artifacts"])
	}
	flat := arts[0].(map[string]any)
	if flat["type"] != "bashOutput" || flat["exitCode"] != float64(1) {
		t.Errorf("expected flattened bashOutput with exitCode, got %v", flat)
	}
}
