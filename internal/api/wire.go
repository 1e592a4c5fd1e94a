package api

import (
	"strings"
	"time"
)

// Wire representations. The server speaks Google-style resource JSON:
// resource names like "sessions/abc123", enum values in SCREAMING_SNAKE.
// These structs decode that shape; the to* converters produce the
// normalized domain types.

type wireSession struct {
	Name           string             `json:"name"`
	ID             string             `json:"id"`
	CreateTime     time.Time          `json:"createTime"`
	UpdateTime     time.Time          `json:"updateTime"`
	State          string             `json:"state"`
	Prompt         string             `json:"prompt"`
	Title          string             `json:"title"`
	SourceContext  *wireSourceContext `json:"sourceContext"`
	AutomationMode string             `json:"automationMode"`
	Outputs        []Output           `json:"outputs"`
	URL            string             `json:"url"`
}

type wireSourceContext struct {
	Source            string `json:"source"`
	GithubRepoContext *struct {
		StartingBranch string `json:"startingBranch"`
	} `json:"githubRepoContext,omitempty"`
}

func (w *wireSession) toSession() Session {
	s := Session{
		ID:             resourceID(w.Name, w.ID),
		CreateTime:     w.CreateTime,
		UpdateTime:     w.UpdateTime,
		State:          NormalizeState(w.State),
		Prompt:         w.Prompt,
		Title:          w.Title,
		AutomationMode: NormalizeAutomationMode(w.AutomationMode),
		Outputs:        w.Outputs,
		URL:            w.URL,
	}
	if w.SourceContext != nil {
		sc := &SourceContext{Source: w.SourceContext.Source}
		if w.SourceContext.GithubRepoContext != nil {
			sc.StartingBranch = w.SourceContext.GithubRepoContext.StartingBranch
		}
		s.SourceContext = sc
	}
	return s
}

type wireActivity struct {
	Name             string            `json:"name"`
	ID               string            `json:"id"`
	CreateTime       time.Time         `json:"createTime"`
	Originator       string            `json:"originator"`
	Artifacts        []Artifact        `json:"artifacts"`
	AgentMessaged    *AgentMessaged    `json:"agentMessaged"`
	UserMessaged     *UserMessaged     `json:"userMessaged"`
	PlanGenerated    *PlanGenerated    `json:"planGenerated"`
	PlanApproved     *PlanApproved     `json:"planApproved"`
	ProgressUpdated  *ProgressUpdated  `json:"progressUpdated"`
	SessionCompleted *SessionCompleted `json:"sessionCompleted"`
	SessionFailed    *SessionFailed    `json:"sessionFailed"`
}

func (w *wireActivity) toActivity() Activity {
	return Activity{
		ID:               resourceID(w.Name, w.ID),
		CreateTime:       w.CreateTime,
		Originator:       NormalizeOriginator(w.Originator),
		Artifacts:        w.Artifacts,
		AgentMessaged:    w.AgentMessaged,
		UserMessaged:     w.UserMessaged,
		PlanGenerated:    w.PlanGenerated,
		PlanApproved:     w.PlanApproved,
		ProgressUpdated:  w.ProgressUpdated,
		SessionCompleted: w.SessionCompleted,
		SessionFailed:    w.SessionFailed,
	}
}

type wireSource struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	GithubRepo *struct {
		Owner string `json:"owner"`
		Repo  string `json:"repo"`
	} `json:"githubRepo"`
}

func (w *wireSource) toSource() Source {
	s := Source{Name: w.Name, ID: resourceID(w.Name, w.ID)}
	if w.GithubRepo != nil {
		s.Owner = w.GithubRepo.Owner
		s.Repo = w.GithubRepo.Repo
	}
	return s
}

// resourceID returns the explicit id when the server sent one, otherwise
// the last segment of the resource name ("sessions/abc" yields "abc").
func resourceID(name, id string) string {
	if id != "" {
		return id
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Request and response bodies.

type createSessionRequest struct {
	Prompt              string             `json:"prompt"`
	Title               string             `json:"title,omitempty"`
	SourceContext       *wireSourceContext `json:"sourceContext,omitempty"`
	AutomationMode      string             `json:"automationMode,omitempty"`
	RequirePlanApproval bool               `json:"requirePlanApproval"`
}

type sendMessageRequest struct {
	Prompt string `json:"prompt"`
}

type listSessionsResponse struct {
	Sessions      []wireSession `json:"sessions"`
	NextPageToken string        `json:"nextPageToken"`
}

type listActivitiesResponse struct {
	Activities    []wireActivity `json:"activities"`
	NextPageToken string         `json:"nextPageToken"`
}

type listSourcesResponse struct {
	Sources       []wireSource `json:"sources"`
	NextPageToken string       `json:"nextPageToken"`
}
