// Package paths resolves the drover state root and the layout beneath it.
//
// Everything drover persists lives under <root>/.jules:
//
//	.jules/cache/sessions.jsonl          append-only session index
//	.jules/cache/<sessionId>/session.json
//	.jules/cache/<sessionId>/activities.jsonl
//	.jules/cache/<sessionId>/metadata.json
//	.jules/cache/sync-checkpoint.json
//	.jules/config.toml
//	.jules/logs/drover.log
//	.jules/events.jsonl
package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/droverhq/drover/internal/util"
)

// EnvHome overrides root resolution entirely when set.
const EnvHome = "JULES_HOME"

// projectMarkers identify a directory as a project root, making the
// working directory eligible to hold the cache.
var projectMarkers = []string{".jules", ".git", "go.mod", "package.json", "pyproject.toml"}

// Resolve picks the root directory for persisted state. Order:
//  1. JULES_HOME, when set and writable.
//  2. The working directory, when it contains a project marker and is writable.
//  3. The HOME environment variable.
//  4. The OS-reported home directory.
//  5. TMPDIR, TMP, or /tmp.
func Resolve() string {
	if root := os.Getenv(EnvHome); root != "" {
		root = util.ExpandHome(root)
		if isWritableDir(root) {
			return root
		}
	}

	if cwd, err := os.Getwd(); err == nil {
		if hasProjectMarker(cwd) && isWritableDir(cwd) {
			return cwd
		}
	}

	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if home := util.HomeDir(); home != "" {
		return home
	}

	for _, env := range []string{"TMPDIR", "TMP"} {
		if tmp := os.Getenv(env); tmp != "" {
			return tmp
		}
	}
	return "/tmp"
}

func hasProjectMarker(dir string) bool {
	for _, marker := range projectMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// isWritableDir reports whether dir exists (or can be created) and accepts
// a new file. A probe file is created and removed.
func isWritableDir(dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false
	}
	probe, err := os.CreateTemp(dir, ".drover-probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true
}

// JulesDir returns <root>/.jules.
func JulesDir(root string) string {
	return filepath.Join(root, ".jules")
}

// CacheDir returns the session cache directory under root.
func CacheDir(root string) string {
	return filepath.Join(root, ".jules", "cache")
}

// SessionDir returns the per-session cache directory.
func SessionDir(root, sessionID string) string {
	return filepath.Join(CacheDir(root), sanitizeID(sessionID))
}

// SessionFile returns the cached session record path.
func SessionFile(root, sessionID string) string {
	return filepath.Join(SessionDir(root, sessionID), "session.json")
}

// ActivitiesFile returns the per-session activity log path.
func ActivitiesFile(root, sessionID string) string {
	return filepath.Join(SessionDir(root, sessionID), "activities.jsonl")
}

// MetadataFile returns the per-session metadata path.
func MetadataFile(root, sessionID string) string {
	return filepath.Join(SessionDir(root, sessionID), "metadata.json")
}

// IndexFile returns the global append-only session index path.
func IndexFile(root string) string {
	return filepath.Join(CacheDir(root), "sessions.jsonl")
}

// CheckpointFile returns the sync checkpoint path.
func CheckpointFile(root string) string {
	return filepath.Join(CacheDir(root), "sync-checkpoint.json")
}

// ConfigFile returns the TOML config path.
func ConfigFile(root string) string {
	return filepath.Join(root, ".jules", "config.toml")
}

// LogsDir returns the log directory.
func LogsDir(root string) string {
	return filepath.Join(root, ".jules", "logs")
}

// LogFile returns the diagnostic log path.
func LogFile(root string) string {
	return filepath.Join(LogsDir(root), "drover.log")
}

// EventsFile returns the shared events feed path.
func EventsFile(root string) string {
	return filepath.Join(root, ".jules", "events.jsonl")
}

// sanitizeID keeps session ids usable as single path segments.
func sanitizeID(id string) string {
	return strings.ReplaceAll(id, "/", "-")
}
