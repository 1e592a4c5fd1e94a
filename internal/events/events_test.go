package events

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/droverhq/drover/internal/paths"
)

func TestFeedAppendsJSONL(t *testing.T) {
	root := t.TempDir()
	feed := NewFeed(root, nil)

	feed.Report(Event{Type: TypeSessionCreated, SessionID: "s1", Summary: "created s1"})
	feed.Report(Event{Type: TypeMerged, Summary: "merged #10", Payload: map[string]any{"pr": 10}})

	f, err := os.Open(paths.EventsFile(root))
	if err != nil {
		t.Fatalf("opening feed: %v", err)
	}
	defer f.Close()

	var got []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("decoding line: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != TypeSessionCreated || got[0].SessionID != "s1" {
		t.Errorf("unexpected first event: %+v", got[0])
	}
	if got[0].Timestamp == "" {
		t.Error("expected timestamp to be stamped")
	}
	if got[1].Payload["pr"] != float64(10) {
		t.Errorf("payload pr = %v, want 10", got[1].Payload["pr"])
	}
}

func TestFeedConcurrentWritersProduceWholeLines(t *testing.T) {
	root := t.TempDir()
	feed := NewFeed(root, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed.Report(Event{Type: TypeSyncProgress, Summary: "tick"})
		}()
	}
	wg.Wait()

	recent, err := feed.Recent(time.Minute)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 20 {
		t.Errorf("expected 20 decodable events, got %d", len(recent))
	}
}

func TestRecentFiltersByWindow(t *testing.T) {
	root := t.TempDir()
	feed := NewFeed(root, nil)

	feed.Report(Event{Type: TypeWarning, Summary: "old", Timestamp: time.Now().Add(-2 * time.Hour).UTC().Format(time.RFC3339)})
	feed.Report(Event{Type: TypeWarning, Summary: "new"})

	recent, err := feed.Recent(time.Hour)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Summary != "new" {
		t.Errorf("expected only the new event, got %+v", recent)
	}
}

func TestRecentMissingFile(t *testing.T) {
	feed := NewFeed(t.TempDir(), nil)
	recent, err := feed.Recent(time.Hour)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recent != nil {
		t.Errorf("expected nil, got %+v", recent)
	}
}

func TestNullReporterIsSilent(t *testing.T) {
	var r Reporter = Null{}
	r.Report(Event{Type: TypeWarning, Summary: "dropped"})
}
