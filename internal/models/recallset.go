package models

import "time"

// RecallSetStatus represents the lifecycle state of a recall set.
type RecallSetStatus string

// Recall set status constants.
const (
	RecallSetStatusActive   RecallSetStatus = "active"
	RecallSetStatusPaused   RecallSetStatus = "paused"
	RecallSetStatusArchived RecallSetStatus = "archived"
)

// IsActive returns true if points in this set may be scheduled for study.
func (s RecallSetStatus) IsActive() bool {
	return s == RecallSetStatusActive
}

// RecallSet is a named collection of recall points sharing a discussion
// prompt fragment. The engine treats a RecallSet as immutable for the
// duration of a session; only storage mutates it between sessions.
type RecallSet struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Status            RecallSetStatus `json:"status"`
	DiscussionPrompt  string          `json:"discussion_prompt,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
