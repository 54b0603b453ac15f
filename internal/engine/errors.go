package engine

import "fmt"

// Kind enumerates the error categories the engine can surface (spec §7).
type Kind string

// Error kind constants.
const (
	KindNoActiveSession   Kind = "NO_ACTIVE_SESSION"
	KindNoDuePoints       Kind = "NO_DUE_POINTS"
	KindNestedRabbithole  Kind = "NESTED_RABBITHOLE"
	KindNotInRabbithole   Kind = "NOT_IN_RABBITHOLE"
	KindLLMFailure        Kind = "LLM_FAILURE"
	KindParseFailure      Kind = "PARSE_FAILURE"
	KindPersistenceFailure Kind = "PERSISTENCE_FAILURE"
	KindInvariantViolation Kind = "INVARIANT_VIOLATION"
)

// Error is the engine's single error type, carrying a Kind and an optional
// wrapped cause. It implements models.RecoverableError so the CLI's output
// envelope renders it without engine-specific branching.
type Error struct {
	Kind      Kind
	Op        string
	SessionID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s (%s): %v", e.Kind, e.Op, e.Cause)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Op)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrorCode implements models.RecoverableError.
func (e *Error) ErrorCode() string { return string(e.Kind) }

// Context implements models.RecoverableError.
func (e *Error) Context() map[string]string {
	ctx := map[string]string{}
	if e.Op != "" {
		ctx["operation"] = e.Op
	}
	if e.SessionID != "" {
		ctx["session_id"] = e.SessionID
	}
	if e.Cause != nil {
		ctx["cause"] = e.Cause.Error()
	}
	return ctx
}

// SuggestedAction implements models.RecoverableError.
func (e *Error) SuggestedAction() string {
	switch e.Kind {
	case KindNoActiveSession:
		return "start a session with 'recall start <set>' before processing messages"
	case KindNoDuePoints:
		return "no points are due yet; check back later or seed more recall points"
	case KindNestedRabbithole:
		return "exit the active rabbit hole before entering a new one"
	case KindNotInRabbithole:
		return "the session is not currently in a rabbit hole"
	case KindLLMFailure:
		return "retry the operation; if it persists, check provider credentials and connectivity"
	case KindPersistenceFailure:
		return "retry the operation; the session remains resumable"
	case KindInvariantViolation:
		return "this indicates a programming error; file a bug report"
	default:
		return "retry the operation"
	}
}

func newErr(kind Kind, op, sessionID string, cause error) *Error {
	return &Error{Kind: kind, Op: op, SessionID: sessionID, Cause: cause}
}
