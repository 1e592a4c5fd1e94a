// Package unidiff parses unified diff text into per-file summaries.
package unidiff

import "strings"

// ChangeType classifies what happened to a file.
type ChangeType string

const (
	Created  ChangeType = "created"
	Modified ChangeType = "modified"
	Deleted  ChangeType = "deleted"
)

// FileDiff summarizes one file section of a patch.
type FileDiff struct {
	Path       string     `json:"path"`
	ChangeType ChangeType `json:"changeType"`
	Additions  int        `json:"additions"`
	Deletions  int        `json:"deletions"`

	// Content holds the added lines joined by newlines: the whole file
	// for created files, only the new lines for modified files, empty
	// for deleted files.
	Content string `json:"content,omitempty"`
}

// Parse splits a unified diff on "diff --git" boundaries and summarizes
// each file section. Sections with no extractable path are skipped.
func Parse(patch string) []FileDiff {
	if strings.TrimSpace(patch) == "" {
		return nil
	}

	var files []FileDiff
	for _, section := range splitSections(patch) {
		if fd, ok := parseSection(section); ok {
			files = append(files, fd)
		}
	}
	return files
}

// splitSections splits the patch into one chunk per "diff --git" header.
// Preamble before the first header is discarded.
func splitSections(patch string) []string {
	lines := strings.Split(patch, "\n")
	var sections []string
	var current []string
	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") {
			if current != nil {
				sections = append(sections, strings.Join(current, "\n"))
			}
			current = []string{line}
			continue
		}
		if current != nil {
			current = append(current, line)
		}
	}
	if current != nil {
		sections = append(sections, strings.Join(current, "\n"))
	}
	return sections
}

func parseSection(section string) (FileDiff, bool) {
	lines := strings.Split(section, "\n")

	fd := FileDiff{ChangeType: Modified}
	var added []string
	inHunk := false

	for _, line := range lines {
		if strings.HasPrefix(line, "@@") {
			inHunk = true
			continue
		}
		if inHunk {
			// +++ and --- never count inside hunks.
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			case strings.HasPrefix(line, "+"):
				fd.Additions++
				added = append(added, line[1:])
			case strings.HasPrefix(line, "-"):
				fd.Deletions++
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "--- "):
			target := strings.TrimSpace(line[4:])
			if target == "/dev/null" {
				fd.ChangeType = Created
			} else if fd.Path == "" {
				fd.Path = stripPrefix(target)
			}
		case strings.HasPrefix(line, "+++ "):
			target := strings.TrimSpace(line[4:])
			if target == "/dev/null" {
				fd.ChangeType = Deleted
			} else {
				fd.Path = stripPrefix(target)
			}
		}
	}

	if fd.Path == "" {
		// Fall back to the header itself: "diff --git a/x b/x".
		fd.Path = pathFromHeader(lines[0])
	}
	if fd.Path == "" {
		return FileDiff{}, false
	}
	if fd.ChangeType != Deleted {
		fd.Content = strings.Join(added, "\n")
	}
	return fd, true
}

// stripPrefix removes the conventional a/ and b/ path prefixes.
func stripPrefix(p string) string {
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

// pathFromHeader extracts the b-side path from a "diff --git a/x b/x" line.
func pathFromHeader(header string) string {
	rest := strings.TrimPrefix(header, "diff --git ")
	if rest == header {
		return ""
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return ""
	}
	return stripPrefix(fields[len(fields)-1])
}
