package cachestore

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/paths"
)

func testSession(id string, state api.State, created time.Time) api.Session {
	return api.Session{
		ID:         id,
		CreateTime: created,
		UpdateTime: created.Add(time.Minute),
		State:      state,
		Prompt:     "do the thing",
		Title:      "t-" + id,
	}
}

func TestUpsertGetRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	stamp := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return stamp }

	sess := testSession("s1", api.StateInProgress, stamp.Add(-time.Hour))
	if err := s.Upsert(sess); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	cached, err := s.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cached == nil {
		t.Fatal("expected cached session")
	}
	if cached.Resource.ID != "s1" || cached.Resource.State != api.StateInProgress {
		t.Errorf("unexpected resource %+v", cached.Resource)
	}
	if !cached.LastSyncedAt.Equal(stamp) {
		t.Errorf("LastSyncedAt = %v, want %v", cached.LastSyncedAt, stamp)
	}
}

func TestGetAbsent(t *testing.T) {
	s := New(t.TempDir(), nil)
	cached, err := s.Get("nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cached != nil {
		t.Errorf("expected nil for uncached session, got %+v", cached)
	}
}

func TestScanIndexDeduplicates(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	s.Upsert(testSession("s1", api.StateQueued, base))
	s.Upsert(testSession("s2", api.StatePlanning, base.Add(time.Hour)))
	s.Upsert(testSession("s1", api.StateCompleted, base)) // same id, new state

	entries, err := s.ScanIndex()
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 deduped entries, got %d", len(entries))
	}
	if entries[0].ID != "s1" || entries[0].State != api.StateCompleted {
		t.Errorf("expected s1 with last-write state completed, got %+v", entries[0])
	}
	if entries[1].ID != "s2" {
		t.Errorf("expected s2 second, got %+v", entries[1])
	}
}

func TestUpsertManyParallel(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	sessions := make([]api.Session, 40)
	for i := range sessions {
		sessions[i] = testSession(fmt.Sprintf("s%02d", i), api.StateQueued, base.Add(time.Duration(i)*time.Minute))
	}
	if err := s.UpsertMany(sessions); err != nil {
		t.Fatalf("UpsertMany: %v", err)
	}

	entries, err := s.ScanIndex()
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(entries) != 40 {
		t.Errorf("expected 40 entries, got %d", len(entries))
	}
	for _, e := range entries {
		cached, err := s.Get(e.ID)
		if err != nil || cached == nil {
			t.Errorf("Get(%s): cached=%v err=%v", e.ID, cached, err)
		}
	}
}

func TestConcurrentUpsertsKeepIndexLines(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Upsert(testSession(fmt.Sprintf("c%02d", n), api.StateQueued, base))
		}(i)
	}
	wg.Wait()

	entries, err := s.ScanIndex()
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(entries) != 20 {
		t.Errorf("expected 20 entries after concurrent upserts, got %d", len(entries))
	}
}

func TestDeleteDropsDirNotIndex(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	s.Upsert(testSession("gone", api.StateCompleted, base))
	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	cached, err := s.Get("gone")
	if err != nil || cached != nil {
		t.Errorf("expected cache miss after delete: cached=%v err=%v", cached, err)
	}
	if _, err := os.Stat(paths.SessionDir(root, "gone")); !os.IsNotExist(err) {
		t.Error("expected session dir removed")
	}

	// Index rows survive; readers resolve via Get.
	entries, err := s.ScanIndex()
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected index row to remain, got %d rows", len(entries))
	}
}

func TestNewestCreateTime(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)

	if _, ok, err := s.NewestCreateTime(); ok || err != nil {
		t.Fatalf("expected empty index: ok=%v err=%v", ok, err)
	}

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.Upsert(testSession("old", api.StateCompleted, base))
	s.Upsert(testSession("new", api.StateQueued, base.Add(48*time.Hour)))
	s.Upsert(testSession("mid", api.StateQueued, base.Add(24*time.Hour)))

	newest, ok, err := s.NewestCreateTime()
	if err != nil || !ok {
		t.Fatalf("NewestCreateTime: ok=%v err=%v", ok, err)
	}
	if !newest.Equal(base.Add(48 * time.Hour)) {
		t.Errorf("newest = %v, want %v", newest, base.Add(48*time.Hour))
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)

	ckpt, err := s.LoadCheckpoint()
	if err != nil || ckpt != nil {
		t.Fatalf("expected no checkpoint initially: %v %v", ckpt, err)
	}

	want := Checkpoint{
		LastProcessedSessionID: "s42",
		SessionsProcessed:      17,
		StartedAt:              time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC),
	}
	if err := s.SaveCheckpoint(want); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	got, err := s.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got == nil || got.LastProcessedSessionID != "s42" || got.SessionsProcessed != 17 {
		t.Errorf("LoadCheckpoint = %+v, want %+v", got, want)
	}

	if err := s.ClearCheckpoint(); err != nil {
		t.Fatalf("ClearCheckpoint: %v", err)
	}
	if ckpt, _ := s.LoadCheckpoint(); ckpt != nil {
		t.Errorf("expected checkpoint cleared, got %+v", ckpt)
	}
	// Clearing twice is fine.
	if err := s.ClearCheckpoint(); err != nil {
		t.Errorf("second ClearCheckpoint: %v", err)
	}
}

func TestCheckpointToleratesCorruption(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	os.MkdirAll(paths.CacheDir(root), 0755)
	os.WriteFile(paths.CheckpointFile(root), []byte("{half a reco"), 0644)

	ckpt, err := s.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if ckpt != nil {
		t.Errorf("expected nil for corrupt checkpoint, got %+v", ckpt)
	}
}
