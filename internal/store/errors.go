package store

import (
	"fmt"
	"strconv"

	"github.com/dotcommander/recall/internal/models"
)

// RecoverableError is an alias for models.RecoverableError, retained for
// callers that reference store.RecoverableError.
type RecoverableError = models.RecoverableError

// VersionConflictError carries structured context for ErrVersionConflict.
type VersionConflictError struct {
	Entity  string
	ID      string
	Version int
}

func (e *VersionConflictError) Error() string {
	return "version conflict: record was modified by another process"
}
func (e *VersionConflictError) ErrorCode() string { return "VERSION_CONFLICT" }
func (e *VersionConflictError) Context() map[string]string {
	return map[string]string{
		"entity":  e.Entity,
		"id":      e.ID,
		"version": strconv.Itoa(e.Version),
	}
}
func (e *VersionConflictError) SuggestedAction() string {
	return "reload the record and retry with a new --request-id"
}
func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }

// IdempotencyInProgressError carries structured context for
// ErrIdempotencyInProgress.
type IdempotencyInProgressError struct {
	Actor     string
	RequestID string
	Command   string
}

func (e *IdempotencyInProgressError) Error() string       { return "idempotency in progress" }
func (e *IdempotencyInProgressError) ErrorCode() string   { return "IDEMPOTENCY_IN_PROGRESS" }
func (e *IdempotencyInProgressError) Context() map[string]string {
	return map[string]string{
		"actor":      e.Actor,
		"request_id": e.RequestID,
		"command":    e.Command,
	}
}
func (e *IdempotencyInProgressError) SuggestedAction() string {
	return "wait and retry, or use a new --request-id"
}
func (e *IdempotencyInProgressError) Is(target error) bool {
	return target == ErrIdempotencyInProgress
}

// SessionNotResumableError is returned when a caller tries to resume a
// session that is completed or abandoned (engine.md §state machine).
type SessionNotResumableError struct {
	SessionID string
	Status    string
}

func (e *SessionNotResumableError) Error() string {
	return fmt.Sprintf("session %s is %s and cannot be resumed", e.SessionID, e.Status)
}
func (e *SessionNotResumableError) ErrorCode() string { return "SESSION_NOT_RESUMABLE" }
func (e *SessionNotResumableError) Context() map[string]string {
	return map[string]string{"session_id": e.SessionID, "status": e.Status}
}
func (e *SessionNotResumableError) SuggestedAction() string {
	return "start a new session with 'recall start'"
}

// NotFoundError is returned when a lookup by ID finds nothing.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
func (e *NotFoundError) ErrorCode() string { return "NOT_FOUND" }
func (e *NotFoundError) Context() map[string]string {
	return map[string]string{"entity": e.Entity, "id": e.ID}
}
func (e *NotFoundError) SuggestedAction() string {
	return "verify the id with 'recall list' or 'recall sessions'"
}
