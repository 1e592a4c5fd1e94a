package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// CreateSessionParams is the wire-level shape of a session create. The
// session engine resolves user-facing config (owner/repo strings, approval
// defaults) down to this.
type CreateSessionParams struct {
	Prompt              string
	Title               string
	Source              string // resource name, e.g. "sources/github/acme/widgets"
	StartingBranch      string
	AutomationMode      AutomationMode
	RequirePlanApproval bool
}

// CreateSession starts a new remote session and returns the server's view of it.
func (c *Client) CreateSession(ctx context.Context, p CreateSessionParams) (Session, error) {
	req := createSessionRequest{
		Prompt:              p.Prompt,
		Title:               p.Title,
		AutomationMode:      wireAutomationMode(p.AutomationMode),
		RequirePlanApproval: p.RequirePlanApproval,
	}
	if p.Source != "" {
		sc := &wireSourceContext{Source: p.Source}
		if p.StartingBranch != "" {
			sc.GithubRepoContext = &struct {
				StartingBranch string `json:"startingBranch"`
			}{StartingBranch: p.StartingBranch}
		}
		req.SourceContext = sc
	}

	var resp wireSession
	if err := c.Do(ctx, http.MethodPost, "/sessions", nil, req, &resp); err != nil {
		return Session{}, err
	}
	return resp.toSession(), nil
}

// GetSession fetches one session by id.
func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	var resp wireSession
	path := "/sessions/" + url.PathEscape(id)
	if err := c.Do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return Session{}, err
	}
	return resp.toSession(), nil
}

// ListSessions returns one page of sessions, newest first, plus the token
// for the next page ("" when exhausted).
func (c *Client) ListSessions(ctx context.Context, pageSize int, pageToken string) ([]Session, string, error) {
	query := url.Values{}
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	var resp listSessionsResponse
	if err := c.Do(ctx, http.MethodGet, "/sessions", query, nil, &resp); err != nil {
		return nil, "", err
	}
	sessions := make([]Session, 0, len(resp.Sessions))
	for i := range resp.Sessions {
		sessions = append(sessions, resp.Sessions[i].toSession())
	}
	return sessions, resp.NextPageToken, nil
}

// ApprovePlan approves the pending plan. The server rejects the call with
// a 4xx when the session is not awaiting approval; there is no local
// pre-check.
func (c *Client) ApprovePlan(ctx context.Context, id string) error {
	path := "/sessions/" + url.PathEscape(id) + ":approvePlan"
	return c.Do(ctx, http.MethodPost, path, nil, struct{}{}, nil)
}

// SendMessage delivers a user message to the session. Fire and forget:
// the agent's reply, if any, shows up in the activity log.
func (c *Client) SendMessage(ctx context.Context, id, prompt string) error {
	path := "/sessions/" + url.PathEscape(id) + ":sendMessage"
	return c.Do(ctx, http.MethodPost, path, nil, sendMessageRequest{Prompt: prompt}, nil)
}

// ListActivities returns one page of a session's activity log.
func (c *Client) ListActivities(ctx context.Context, sessionID string, pageSize int, pageToken string) ([]Activity, string, error) {
	query := url.Values{}
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	var resp listActivitiesResponse
	path := "/sessions/" + url.PathEscape(sessionID) + "/activities"
	if err := c.Do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, "", err
	}
	activities := make([]Activity, 0, len(resp.Activities))
	for i := range resp.Activities {
		activities = append(activities, resp.Activities[i].toActivity())
	}
	return activities, resp.NextPageToken, nil
}

// GetGitHubSource resolves the source resource for owner/repo.
func (c *Client) GetGitHubSource(ctx context.Context, owner, repo string) (Source, error) {
	var resp wireSource
	path := fmt.Sprintf("/sources/github/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.Do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return Source{}, err
	}
	return resp.toSource(), nil
}

// ListSources returns one page of connected sources.
func (c *Client) ListSources(ctx context.Context, pageSize int, pageToken string) ([]Source, string, error) {
	query := url.Values{}
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	var resp listSourcesResponse
	if err := c.Do(ctx, http.MethodGet, "/sources", query, nil, &resp); err != nil {
		return nil, "", err
	}
	sources := make([]Source, 0, len(resp.Sources))
	for i := range resp.Sources {
		sources = append(sources, resp.Sources[i].toSource())
	}
	return sources, resp.NextPageToken, nil
}
