package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_EnvHomeWins(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	if got := Resolve(); got != dir {
		t.Errorf("Resolve() = %q, want JULES_HOME %q", got, dir)
	}
}

func TestResolve_EnvHomeUnwritableFallsThrough(t *testing.T) {
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked")
	if err := os.Mkdir(locked, 0555); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Setenv(EnvHome, filepath.Join(locked, "nested"))

	home := t.TempDir()
	t.Setenv("HOME", home)

	// cwd has no project marker in a fresh temp dir
	t.Chdir(t.TempDir())

	if got := Resolve(); got != home {
		t.Errorf("Resolve() = %q, want HOME fallback %q", got, home)
	}
}

func TestResolve_ProjectMarkerInCwd(t *testing.T) {
	t.Setenv(EnvHome, "")
	cwd := t.TempDir()
	if err := os.Mkdir(filepath.Join(cwd, ".git"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Chdir(cwd)

	got := Resolve()
	// Resolve may return the symlink-free form of the temp dir on some
	// platforms; compare the evaluated paths.
	wantEval, _ := filepath.EvalSymlinks(cwd)
	gotEval, _ := filepath.EvalSymlinks(got)
	if gotEval != wantEval {
		t.Errorf("Resolve() = %q, want project cwd %q", got, cwd)
	}
}

func TestLayout(t *testing.T) {
	root := "/data"
	tests := []struct {
		got  string
		want string
	}{
		{IndexFile(root), "/data/.jules/cache/sessions.jsonl"},
		{SessionFile(root, "abc"), "/data/.jules/cache/abc/session.json"},
		{ActivitiesFile(root, "abc"), "/data/.jules/cache/abc/activities.jsonl"},
		{MetadataFile(root, "abc"), "/data/.jules/cache/abc/metadata.json"},
		{CheckpointFile(root), "/data/.jules/cache/sync-checkpoint.json"},
		{ConfigFile(root), "/data/.jules/config.toml"},
		{LogFile(root), "/data/.jules/logs/drover.log"},
		{EventsFile(root), "/data/.jules/events.jsonl"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestSessionDirSanitizesResourceNames(t *testing.T) {
	got := SessionDir("/data", "sessions/123")
	want := filepath.Join("/data", ".jules", "cache", "sessions-123")
	if got != want {
		t.Errorf("SessionDir = %q, want %q", got, want)
	}
}
