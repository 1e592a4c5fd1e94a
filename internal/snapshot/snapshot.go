// Package snapshot builds an immutable point-in-time aggregate of a
// session and its full activity history, with JSON and Markdown
// renderings.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/droverhq/drover/internal/activity"
	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/session"
	"github.com/droverhq/drover/internal/unidiff"
)

// Snapshot is a frozen view of a session at build time.
type Snapshot struct {
	SessionID  string
	URL        string
	Title      string
	Prompt     string
	State      api.State
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DurationMs int64

	PullRequest *api.PullRequest
	ChangeSet   string
	Files       []unidiff.FileDiff

	Activities     []api.Activity
	ActivityCounts map[api.ActivityType]int
	Timeline       []TimelineEntry
	Insights       Insights
}

// TimelineEntry is one activity reduced to its display essentials.
type TimelineEntry struct {
	Time    time.Time
	Type    api.ActivityType
	Summary string
}

// Insights aggregates signal activities out of the full log.
type Insights struct {
	Completed      int
	PlansGenerated int
	UserMessages   int
	FailedCommands []api.Activity
}

// Build fetches the session info and its full history concurrently and
// assembles the snapshot.
func Build(ctx context.Context, eng *session.Engine, acts *activity.Client, id string) (*Snapshot, error) {
	var (
		sess    api.Session
		history []api.Activity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sess, err = eng.Info(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = acts.History(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building snapshot for %s: %w", id, err)
	}

	snap := &Snapshot{
		SessionID:      sess.ID,
		URL:            sess.URL,
		Title:          sess.Title,
		Prompt:         sess.Prompt,
		State:          sess.State,
		CreatedAt:      sess.CreateTime,
		UpdatedAt:      sess.UpdateTime,
		Activities:     history,
		ActivityCounts: map[api.ActivityType]int{},
	}
	if !sess.CreateTime.IsZero() && !sess.UpdateTime.IsZero() && sess.UpdateTime.After(sess.CreateTime) {
		snap.DurationMs = sess.UpdateTime.Sub(sess.CreateTime).Milliseconds()
	}

	for _, out := range sess.Outputs {
		if out.PullRequest != nil && snap.PullRequest == nil {
			pr := *out.PullRequest
			snap.PullRequest = &pr
		}
		if out.ChangeSet != nil && out.ChangeSet.GitPatch != nil && snap.ChangeSet == "" {
			snap.ChangeSet = out.ChangeSet.GitPatch.UnidiffPatch
		}
	}
	if snap.ChangeSet != "" {
		snap.Files = unidiff.Parse(snap.ChangeSet)
	}

	for i := range history {
		a := &history[i]
		t := a.Type()
		snap.ActivityCounts[t]++
		snap.Timeline = append(snap.Timeline, TimelineEntry{
			Time:    a.CreateTime,
			Type:    t,
			Summary: a.Summary(),
		})
		switch t {
		case api.ActivitySessionCompleted:
			snap.Insights.Completed++
		case api.ActivityPlanGenerated:
			snap.Insights.PlansGenerated++
		case api.ActivityUserMessaged:
			snap.Insights.UserMessages++
		}
		if hasFailedCommand(a) {
			snap.Insights.FailedCommands = append(snap.Insights.FailedCommands, *a)
		}
	}

	return snap, nil
}

// hasFailedCommand reports whether any bashOutput artifact on the
// activity recorded a non-zero exit code.
func hasFailedCommand(a *api.Activity) bool {
	for _, art := range a.Artifacts {
		if art.BashOutput != nil && art.BashOutput.ExitCode != nil && *art.BashOutput.ExitCode != 0 {
			return true
		}
	}
	return false
}

// ToJSON renders the snapshot with ISO timestamps. The failed-command
// list collapses to a count.
func (s *Snapshot) ToJSON() ([]byte, error) {
	type timelineJSON struct {
		Time    string `json:"time"`
		Type    string `json:"type"`
		Summary string `json:"summary"`
	}
	type insightsJSON struct {
		Completed          int `json:"completed"`
		PlansGenerated     int `json:"plansGenerated"`
		UserMessages       int `json:"userMessages"`
		FailedCommandCount int `json:"failedCommandCount"`
	}
	out := struct {
		SessionID      string              `json:"sessionId"`
		URL            string              `json:"url,omitempty"`
		Title          string              `json:"title,omitempty"`
		Prompt         string              `json:"prompt,omitempty"`
		State          api.State           `json:"state"`
		CreatedAt      string              `json:"createdAt"`
		UpdatedAt      string              `json:"updatedAt"`
		DurationMs     int64               `json:"durationMs"`
		PullRequest    *api.PullRequest    `json:"pullRequest,omitempty"`
		Files          []unidiff.FileDiff  `json:"files,omitempty"`
		ActivityCounts map[string]int      `json:"activityCounts"`
		Timeline       []timelineJSON      `json:"timeline"`
		Insights       insightsJSON        `json:"insights"`
	}{
		SessionID:      s.SessionID,
		URL:            s.URL,
		Title:          s.Title,
		Prompt:         s.Prompt,
		State:          s.State,
		CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      s.UpdatedAt.UTC().Format(time.RFC3339),
		DurationMs:     s.DurationMs,
		PullRequest:    s.PullRequest,
		Files:          s.Files,
		ActivityCounts: map[string]int{},
		Timeline:       []timelineJSON{},
		Insights: insightsJSON{
			Completed:          s.Insights.Completed,
			PlansGenerated:     s.Insights.PlansGenerated,
			UserMessages:       s.Insights.UserMessages,
			FailedCommandCount: len(s.Insights.FailedCommands),
		},
	}
	for t, n := range s.ActivityCounts {
		out.ActivityCounts[string(t)] = n
	}
	for _, e := range s.Timeline {
		out.Timeline = append(out.Timeline, timelineJSON{
			Time:    e.Time.UTC().Format(time.RFC3339),
			Type:    string(e.Type),
			Summary: e.Summary,
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// ToMarkdown renders the snapshot as a report with a fixed section
// order: header, overview, insights, timeline, counts.
func (s *Snapshot) ToMarkdown() string {
	var b strings.Builder

	title := s.Title
	if title == "" {
		title = s.SessionID
	}
	fmt.Fprintf(&b, "# Session %s\n\n", title)

	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "- **ID:** %s\n", s.SessionID)
	fmt.Fprintf(&b, "- **State:** %s\n", s.State)
	fmt.Fprintf(&b, "- **Created:** %s\n", s.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Updated:** %s\n", s.UpdatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Duration:** %s\n", time.Duration(s.DurationMs)*time.Millisecond)
	if s.URL != "" {
		fmt.Fprintf(&b, "- **URL:** %s\n", s.URL)
	}
	if s.PullRequest != nil {
		fmt.Fprintf(&b, "- **Pull request:** %s\n", s.PullRequest.URL)
	}
	if s.Prompt != "" {
		fmt.Fprintf(&b, "\n> %s\n", s.Prompt)
	}

	b.WriteString("\n## Insights\n\n")
	fmt.Fprintf(&b, "- Completed activities: %d\n", s.Insights.Completed)
	fmt.Fprintf(&b, "- Plans generated: %d\n", s.Insights.PlansGenerated)
	fmt.Fprintf(&b, "- User messages: %d\n", s.Insights.UserMessages)
	fmt.Fprintf(&b, "- Failed commands: %d\n", len(s.Insights.FailedCommands))
	for _, a := range s.Insights.FailedCommands {
		for _, art := range a.Artifacts {
			if art.BashOutput != nil && art.BashOutput.ExitCode != nil && *art.BashOutput.ExitCode != 0 {
				fmt.Fprintf(&b, "  - `%s` (exit %d)\n", art.BashOutput.Command, *art.BashOutput.ExitCode)
			}
		}
	}

	b.WriteString("\n## Timeline\n\n")
	if len(s.Timeline) == 0 {
		b.WriteString("No activity recorded.\n")
	}
	for _, e := range s.Timeline {
		fmt.Fprintf(&b, "- %s `%s` %s\n", e.Time.UTC().Format(time.RFC3339), e.Type, e.Summary)
	}

	b.WriteString("\n## Activity counts\n\n")
	types := make([]string, 0, len(s.ActivityCounts))
	for t := range s.ActivityCounts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&b, "- %s: %d\n", t, s.ActivityCounts[api.ActivityType(t)])
	}

	return b.String()
}
