// Package api implements the client side of the Jules REST protocol:
// the HTTP transport with its retry policies, the wire representations,
// and the normalized domain model the rest of drover works with.
package api

import "time"

// State is a session lifecycle state, normalized to lowerCamel.
// Terminal states are sticky; non-terminal states may oscillate.
type State string

const (
	StateUnspecified          State = "unspecified"
	StateQueued               State = "queued"
	StatePlanning             State = "planning"
	StateAwaitingPlanApproval State = "awaitingPlanApproval"
	StateAwaitingUserFeedback State = "awaitingUserFeedback"
	StateInProgress           State = "inProgress"
	StatePaused               State = "paused"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

// Terminal reports whether the state is one the server never leaves.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// AutomationMode controls whether the agent opens a PR on completion.
type AutomationMode string

const (
	AutomationUnspecified  AutomationMode = "unspecified"
	AutomationAutoCreatePR AutomationMode = "autoCreatePr"
)

// Session is the normalized replica of a remote agent run. The server is
// the only writer of the resource; local copies are stamped by the store
// with the time they were last synced.
type Session struct {
	ID             string         `json:"id"`
	CreateTime     time.Time      `json:"createTime"`
	UpdateTime     time.Time      `json:"updateTime"`
	State          State          `json:"state"`
	Prompt         string         `json:"prompt,omitempty"`
	Title          string         `json:"title,omitempty"`
	SourceContext  *SourceContext `json:"sourceContext,omitempty"`
	AutomationMode AutomationMode `json:"automationMode,omitempty"`
	Outputs        []Output       `json:"outputs,omitempty"`
	URL            string         `json:"url,omitempty"`
}

// SourceContext names the repository source a session runs against.
type SourceContext struct {
	Source         string `json:"source"`
	StartingBranch string `json:"startingBranch,omitempty"`
}

// Output is a tagged variant: exactly one field is set.
type Output struct {
	PullRequest *PullRequest `json:"pullRequest,omitempty"`
	ChangeSet   *ChangeSet   `json:"changeSet,omitempty"`
}

// PullRequest is the terminal marker output of a completed session.
type PullRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	BaseRef     string `json:"baseRef,omitempty"`
	HeadRef     string `json:"headRef,omitempty"`
}

// ChangeSet carries the agent's patch against a source.
type ChangeSet struct {
	Source   string    `json:"source,omitempty"`
	GitPatch *GitPatch `json:"gitPatch,omitempty"`
}

// GitPatch is a unified diff plus the commit it applies to.
type GitPatch struct {
	UnidiffPatch           string `json:"unidiffPatch,omitempty"`
	BaseCommitID           string `json:"baseCommitId,omitempty"`
	SuggestedCommitMessage string `json:"suggestedCommitMessage,omitempty"`
}

// ActivityType tags the payload variant of an Activity.
type ActivityType string

const (
	ActivityAgentMessaged    ActivityType = "agentMessaged"
	ActivityUserMessaged     ActivityType = "userMessaged"
	ActivityPlanGenerated    ActivityType = "planGenerated"
	ActivityPlanApproved     ActivityType = "planApproved"
	ActivityProgressUpdated  ActivityType = "progressUpdated"
	ActivitySessionCompleted ActivityType = "sessionCompleted"
	ActivitySessionFailed    ActivityType = "sessionFailed"
	ActivityUnknown          ActivityType = "unknown"
)

// Activity is one event in a session's append-only log. Exactly one payload
// field is set; wire payloads we do not recognize map to ActivityUnknown so
// read sites stay forward compatible.
type Activity struct {
	ID               string            `json:"id"`
	CreateTime       time.Time         `json:"createTime"`
	Originator       string            `json:"originator,omitempty"`
	Artifacts        []Artifact        `json:"artifacts,omitempty"`
	AgentMessaged    *AgentMessaged    `json:"agentMessaged,omitempty"`
	UserMessaged     *UserMessaged     `json:"userMessaged,omitempty"`
	PlanGenerated    *PlanGenerated    `json:"planGenerated,omitempty"`
	PlanApproved     *PlanApproved     `json:"planApproved,omitempty"`
	ProgressUpdated  *ProgressUpdated  `json:"progressUpdated,omitempty"`
	SessionCompleted *SessionCompleted `json:"sessionCompleted,omitempty"`
	SessionFailed    *SessionFailed    `json:"sessionFailed,omitempty"`
}

// Originator values, normalized to lowercase.
const (
	OriginatorUser   = "user"
	OriginatorAgent  = "agent"
	OriginatorSystem = "system"
)

// Type returns the payload variant tag of the activity.
func (a *Activity) Type() ActivityType {
	switch {
	case a.AgentMessaged != nil:
		return ActivityAgentMessaged
	case a.UserMessaged != nil:
		return ActivityUserMessaged
	case a.PlanGenerated != nil:
		return ActivityPlanGenerated
	case a.PlanApproved != nil:
		return ActivityPlanApproved
	case a.ProgressUpdated != nil:
		return ActivityProgressUpdated
	case a.SessionCompleted != nil:
		return ActivitySessionCompleted
	case a.SessionFailed != nil:
		return ActivitySessionFailed
	default:
		return ActivityUnknown
	}
}

// Terminal reports whether the activity ends its session's log.
func (a *Activity) Terminal() bool {
	t := a.Type()
	return t == ActivitySessionCompleted || t == ActivitySessionFailed
}

type AgentMessaged struct {
	Message string `json:"message"`
}

type UserMessaged struct {
	Message string `json:"message"`
}

type PlanGenerated struct {
	Plan Plan `json:"plan"`
}

type PlanApproved struct {
	PlanID string `json:"planId,omitempty"`
}

type ProgressUpdated struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type SessionCompleted struct{}

// SessionFailed carries the server-reported failure reason, when present.
type SessionFailed struct {
	Reason string `json:"reason,omitempty"`
}

// Plan is the agent's proposed step list awaiting approval.
type Plan struct {
	ID         string     `json:"id,omitempty"`
	Steps      []PlanStep `json:"steps,omitempty"`
	CreateTime time.Time  `json:"createTime,omitzero"`
}

type PlanStep struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Index       int    `json:"index"`
}

// Artifact is a tagged variant attached to an activity.
type Artifact struct {
	ChangeSet  *ChangeSet  `json:"changeSet,omitempty"`
	Media      *Media      `json:"media,omitempty"`
	BashOutput *BashOutput `json:"bashOutput,omitempty"`
}

// Type returns the variant tag of the artifact.
func (a Artifact) Type() string {
	switch {
	case a.ChangeSet != nil:
		return "changeSet"
	case a.Media != nil:
		return "media"
	case a.BashOutput != nil:
		return "bashOutput"
	default:
		return "unknown"
	}
}

// Media is an inline binary blob; Data round-trips as base64 in JSON.
type Media struct {
	Data   []byte `json:"data,omitempty"`
	Format string `json:"format,omitempty"`
}

// BashOutput is the captured result of a command the agent ran.
type BashOutput struct {
	Command  string `json:"command,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
}

// Source is a repository the API can run sessions against.
type Source struct {
	Name  string `json:"name"`
	ID    string `json:"id,omitempty"`
	Owner string `json:"owner,omitempty"`
	Repo  string `json:"repo,omitempty"`
}
