package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/cachestore"
	"github.com/droverhq/drover/internal/errs"
	"github.com/droverhq/drover/internal/logstore"
)

// sessionServer fakes the Jules session endpoints with a mutable session
// map and a request counter.
type sessionServer struct {
	mu       sync.Mutex
	sessions map[string]map[string]any
	gets     int
	creates  int
	messages []string
	approved []string
}

func newSessionServer() *sessionServer {
	return &sessionServer{sessions: map[string]map[string]any{}}
}

func (s *sessionServer) put(id string, body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = body
}

func (s *sessionServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/sessions":
			s.creates++
			var req map[string]any
			json.NewDecoder(r.Body).Decode(&req)
			resp := map[string]any{
				"name":       "sessions/new1",
				"state":      "QUEUED",
				"createTime": time.Now().UTC().Format(time.RFC3339),
			}
			for k, v := range req {
				resp[k] = v
			}
			json.NewEncoder(w).Encode(resp)
		case r.Method == http.MethodGet && r.URL.Path == "/sources/github/acme/widgets":
			json.NewEncoder(w).Encode(map[string]any{"name": "sources/github/acme/widgets"})
		case r.Method == http.MethodPost && len(r.URL.Path) > 12 && r.URL.Path[len(r.URL.Path)-12:] == ":sendMessage":
			var req struct {
				Prompt string `json:"prompt"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			s.messages = append(s.messages, req.Prompt)
			w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && len(r.URL.Path) > 12 && r.URL.Path[len(r.URL.Path)-12:] == ":approvePlan":
			s.approved = append(s.approved, r.URL.Path)
			w.Write([]byte(`{}`))
		case r.Method == http.MethodGet:
			s.gets++
			id := r.URL.Path[len("/sessions/"):]
			body, ok := s.sessions[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":{"message":"session not found"}}`))
				return
			}
			json.NewEncoder(w).Encode(body)
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestEngine(t *testing.T, srv *httptest.Server) (*Engine, *cachestore.Store) {
	t.Helper()
	c, err := api.NewClient(api.Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	store := cachestore.New(t.TempDir(), nil)
	e := NewEngine(EngineConfig{API: c, Store: store})
	e.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return e, store
}

func TestCreateResolvesSourceAndCaches(t *testing.T) {
	fake := newSessionServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, store := newTestEngine(t, srv)
	id, err := e.Create(context.Background(), CreateConfig{
		Prompt: "fix the bug",
		Source: "acme/widgets",
		Branch: "main",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "new1" {
		t.Errorf("id = %q, want new1", id)
	}
	cached, err := store.Get(id)
	if err != nil || cached == nil {
		t.Fatalf("expected cached session, got (%v, %v)", cached, err)
	}
	if cached.Resource.SourceContext == nil || cached.Resource.SourceContext.Source != "sources/github/acme/widgets" {
		t.Errorf("sourceContext = %+v", cached.Resource.SourceContext)
	}
}

func TestCreateRejectsEmptyPrompt(t *testing.T) {
	fake := newSessionServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, _ := newTestEngine(t, srv)
	if _, err := e.Create(context.Background(), CreateConfig{Prompt: "  "}); err == nil {
		t.Error("expected error for empty prompt")
	}
}

func TestInfoNormalizesWireState(t *testing.T) {
	fake := newSessionServer()
	fake.put("s1", map[string]any{
		"name":       "sessions/s1",
		"state":      "AWAITING_PLAN_APPROVAL",
		"createTime": time.Now().UTC().Format(time.RFC3339),
	})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, _ := newTestEngine(t, srv)
	sess, err := e.Info(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if sess.State != api.StateAwaitingPlanApproval {
		t.Errorf("state = %q, want awaitingPlanApproval", sess.State)
	}
}

func TestInfoUnknownStatePassesThroughLowercased(t *testing.T) {
	fake := newSessionServer()
	fake.put("s1", map[string]any{
		"name":       "sessions/s1",
		"state":      "MARS",
		"createTime": time.Now().UTC().Format(time.RFC3339),
	})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, _ := newTestEngine(t, srv)
	sess, err := e.Info(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if sess.State != api.State("mars") {
		t.Errorf("state = %q, want mars", sess.State)
	}
}

func TestInfoServesWarmCacheWithoutNetwork(t *testing.T) {
	fake := newSessionServer()
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, store := newTestEngine(t, srv)
	store.Upsert(api.Session{
		ID:         "s1",
		State:      api.StateCompleted,
		CreateTime: time.Now().Add(-time.Hour),
	})

	sess, err := e.Info(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if sess.State != api.StateCompleted {
		t.Errorf("state = %q", sess.State)
	}
	if fake.gets != 0 {
		t.Errorf("expected 0 network fetches for warm cache, got %d", fake.gets)
	}
}

func TestInfoHotCacheHitsNetwork(t *testing.T) {
	fake := newSessionServer()
	fake.put("s1", map[string]any{
		"name":       "sessions/s1",
		"state":      "IN_PROGRESS",
		"createTime": time.Now().UTC().Format(time.RFC3339),
	})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, store := newTestEngine(t, srv)
	store.Upsert(api.Session{
		ID:         "s1",
		State:      api.StateInProgress,
		CreateTime: time.Now().Add(-time.Hour),
	})

	if _, err := e.Info(context.Background(), "s1"); err != nil {
		t.Fatalf("Info: %v", err)
	}
	if fake.gets != 1 {
		t.Errorf("expected 1 network fetch for hot session, got %d", fake.gets)
	}
}

func TestInfo404DropsCachedCopy(t *testing.T) {
	fake := newSessionServer() // knows no sessions
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, store := newTestEngine(t, srv)
	store.Upsert(api.Session{
		ID:         "gone",
		State:      api.StateInProgress,
		CreateTime: time.Now().Add(-time.Hour),
	})

	_, err := e.Info(context.Background(), "gone")
	if !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
	cached, err := store.Get("gone")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cached != nil {
		t.Error("expected cached copy to be dropped after 404")
	}
}

func TestWaitForTerminalSatisfiesAnyTarget(t *testing.T) {
	fake := newSessionServer()
	fake.put("s1", map[string]any{
		"name":       "sessions/s1",
		"state":      "FAILED",
		"createTime": time.Now().UTC().Format(time.RFC3339),
	})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, _ := newTestEngine(t, srv)
	sess, err := e.WaitFor(context.Background(), "s1", api.StateAwaitingPlanApproval, 0)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if sess.State != api.StateFailed {
		t.Errorf("state = %q, want failed", sess.State)
	}
}

func TestWaitForPollsUntilTarget(t *testing.T) {
	fake := newSessionServer()
	fake.put("s1", map[string]any{
		"name":       "sessions/s1",
		"state":      "PLANNING",
		"createTime": time.Now().UTC().Format(time.RFC3339),
	})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, _ := newTestEngine(t, srv)
	polls := 0
	e.sleep = func(ctx context.Context, d time.Duration) error {
		polls++
		if polls == 2 {
			fake.put("s1", map[string]any{
				"name":       "sessions/s1",
				"state":      "AWAITING_PLAN_APPROVAL",
				"createTime": time.Now().UTC().Format(time.RFC3339),
			})
		}
		return nil
	}

	sess, err := e.WaitFor(context.Background(), "s1", api.StateAwaitingPlanApproval, 0)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if sess.State != api.StateAwaitingPlanApproval {
		t.Errorf("state = %q", sess.State)
	}
}

func TestWaitForTimeout(t *testing.T) {
	fake := newSessionServer()
	fake.put("s1", map[string]any{
		"name":       "sessions/s1",
		"state":      "PLANNING",
		"createTime": time.Now().UTC().Format(time.RFC3339),
	})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, _ := newTestEngine(t, srv)
	now := time.Now()
	e.now = func() time.Time {
		now = now.Add(3 * time.Second)
		return now
	}

	_, err := e.WaitFor(context.Background(), "s1", api.StateCompleted, 10*time.Second)
	if !errs.Is(err, errs.KindTimeout) {
		t.Errorf("expected KindTimeout, got %v", err)
	}
}

func TestResultMapsOutputs(t *testing.T) {
	fake := newSessionServer()
	fake.put("s1", map[string]any{
		"name":       "sessions/s1",
		"title":      "Fix bug",
		"state":      "COMPLETED",
		"createTime": time.Now().UTC().Format(time.RFC3339),
		"outputs": []map[string]any{
			{"pullRequest": map[string]any{"url": "https://github.com/acme/widgets/pull/7", "title": "Fix"}},
			{"changeSet": map[string]any{"gitPatch": map[string]any{
				"unidiffPatch": "diff --git a/f.go b/f.go\n--- a/f.go\n+++ b/f.go\n@@ -1 +1 @@\n-x\n+y\n",
			}}},
		},
	})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, _ := newTestEngine(t, srv)
	out, err := e.Result(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if out.PullRequest == nil || out.PullRequest.URL != "https://github.com/acme/widgets/pull/7" {
		t.Errorf("pullRequest = %+v", out.PullRequest)
	}
	if out.ChangeSet() == "" {
		t.Error("expected raw change set")
	}
	files := out.GeneratedFiles()
	if len(files) != 1 || files[0].Path != "f.go" {
		t.Errorf("generatedFiles = %+v", files)
	}
}

func TestResultFailedSession(t *testing.T) {
	fake := newSessionServer()
	fake.put("s1", map[string]any{
		"name":       "sessions/s1",
		"state":      "FAILED",
		"createTime": time.Now().UTC().Format(time.RFC3339),
	})
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	e, _ := newTestEngine(t, srv)
	_, err := e.Result(context.Background(), "s1", 0)
	if !errs.Is(err, errs.KindSessionFailed) {
		t.Errorf("expected KindSessionFailed, got %v", err)
	}
}

func TestInfo404EvictsOpenActivityLog(t *testing.T) {
	fake := newSessionServer() // knows no sessions
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c, err := api.NewClient(api.Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	root := t.TempDir()
	store := cachestore.New(root, nil)
	logs := logstore.NewRegistry(root, nil)
	e := NewEngine(EngineConfig{API: c, Store: store, Logs: logs})

	store.Upsert(api.Session{
		ID:         "gone",
		State:      api.StateInProgress,
		CreateTime: time.Now().Add(-time.Hour),
	})
	l, err := logs.Open("gone")
	if err != nil {
		t.Fatalf("Open log: %v", err)
	}
	if err := l.Append(api.Activity{ID: "a1", CreateTime: time.Now()}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := e.Info(context.Background(), "gone"); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}

	// The registry's handle must be closed, not left appending to an
	// unlinked inode.
	if err := l.Append(api.Activity{ID: "a2", CreateTime: time.Now()}); err != logstore.ErrClosed {
		t.Errorf("expected ErrClosed on the evicted log, got %v", err)
	}
	// A later touch of the same id starts from an empty log.
	fresh, err := logs.Open("gone")
	if err != nil {
		t.Fatalf("reopen log: %v", err)
	}
	n, err := fresh.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty log after eviction, got %d records", n)
	}
}
