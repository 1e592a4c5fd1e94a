// Package errs provides structured error types for drover.
// Every error carries the operation that failed, a kind that callers can
// branch on, and an optional actionable hint surfaced to the user.
package errs

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.Function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindOther Kind = iota
	KindMissingCredential
	KindNetwork
	KindAuth
	KindRateLimited
	KindServer
	KindNotFound
	KindSessionFailed
	KindSyncInProgress
	KindInvalidState
	KindTimeout
	KindCancelled
	KindEarlyTermination
	KindConflictRetriesExhausted
	KindRedispatchTimeout
	KindMergeFailed
)

func (k Kind) String() string {
	switch k {
	case KindMissingCredential:
		return "missing credential"
	case KindNetwork:
		return "network failure"
	case KindAuth:
		return "authentication failed"
	case KindRateLimited:
		return "rate limited"
	case KindServer:
		return "server error"
	case KindNotFound:
		return "not found"
	case KindSessionFailed:
		return "session failed"
	case KindSyncInProgress:
		return "sync in progress"
	case KindInvalidState:
		return "invalid state"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindEarlyTermination:
		return "early termination"
	case KindConflictRetriesExhausted:
		return "conflict retries exhausted"
	case KindRedispatchTimeout:
		return "re-dispatch timeout"
	case KindMergeFailed:
		return "merge failed"
	default:
		return "unknown error"
	}
}

// Status carries an HTTP status code on server errors.
type Status int

// Hint is an actionable suggestion attached to an error.
type Hint string

// Error is the structured error type for drover.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Status  int    // HTTP status, when the error came off the wire
	Hint    string // Actionable suggestion, may be empty
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - Status: an HTTP status code
// - Hint: an actionable suggestion
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case Status:
			e.Status = int(a)
		case Hint:
			e.Hint = string(a)
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// GetStatus returns the HTTP status of an error, or 0 when none was recorded.
func GetStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// GetHint returns the actionable hint attached to an error, if any.
func GetHint(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

// IsTerminal reports whether the error kind is one retrying cannot cure.
func IsTerminal(err error) bool {
	switch GetKind(err) {
	case KindMissingCredential, KindAuth, KindSessionFailed, KindInvalidState:
		return true
	default:
		return false
	}
}

// Transport errors

func MissingCredential() error {
	return E(Op("api.NewClient"), KindMissingCredential,
		Hint("set JULES_API_KEY or add key to .jules/config.toml"),
		"no API key configured")
}

func RateLimited(op Op, err error) error {
	return E(op, KindRateLimited,
		Hint("retry budget exhausted; wait a few minutes before retrying"),
		"rate limited after retries", err)
}

// Session errors

func SessionFailed(id, reason string) error {
	if reason == "" {
		// The server does not reliably attach a failure reason to the
		// session resource. Report that it is missing rather than invent one.
		reason = "no failure reason reported by server"
	}
	return E(Op("session.Result"), KindSessionFailed,
		fmt.Sprintf("session %s failed: %s", id, reason))
}

func SessionTimeout(op Op, id string, waited string) error {
	return E(op, KindTimeout,
		fmt.Sprintf("session %s: gave up after %s", id, waited))
}

// Sync errors

func SyncInProgress() error {
	return E(Op("syncer.Sync"), KindSyncInProgress,
		Hint("wait for the running sync to finish"),
		"another sync is already running")
}

// Fleet errors

func ConflictRetriesExhausted(pr int, url string) error {
	return E(Op("fleet.Merge"), KindConflictRetriesExhausted,
		Hint(fmt.Sprintf("resolve the conflict manually: %s", url)),
		fmt.Sprintf("PR #%d still conflicts after all retries", pr))
}

func RedispatchTimeout(pr int, sessionID string) error {
	return E(Op("fleet.Merge"), KindRedispatchTimeout,
		fmt.Sprintf("no replacement PR for #%d appeared (session %s)", pr, sessionID))
}

func MergeFailed(pr int, err error) error {
	return E(Op("fleet.Merge"), KindMergeFailed,
		fmt.Sprintf("squash merge of PR #%d failed", pr), err)
}
