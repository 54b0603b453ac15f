package models

import "time"

// MessageRole identifies the speaker of a SessionMessage.
type MessageRole string

// Message role constants.
const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// SessionMessage is one entry in a session's persisted main dialog, ordered
// by (session_id, timestamp). Immutable after insert. Messages produced
// inside a rabbit hole are never written here (§3) — they live in the
// owning RabbitholeEvent's conversation array.
type SessionMessage struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	TokenCount *int        `json:"token_count,omitempty"`
}
