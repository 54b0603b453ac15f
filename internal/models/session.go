package models

import "time"

// SessionStatus represents the lifecycle state of a study session.
type SessionStatus string

// Session status constants. Transitions form a DAG; only
// in_progress <-> paused is bidirectional (§3 invariants).
const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusPaused     SessionStatus = "paused"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusAbandoned  SessionStatus = "abandoned"
)

// SessionMode is the in-engine runtime mode: ordinary recall probing, or a
// rabbit-hole sub-dialog (§4.6).
type SessionMode string

// Session mode constants.
const (
	SessionModeRecall     SessionMode = "recall"
	SessionModeRabbithole SessionMode = "rabbithole"
)

// Session is one study encounter over a subset of a recall set's due points.
type Session struct {
	ID                  string        `json:"id"`
	RecallSetID         string        `json:"recall_set_id"`
	Status              SessionStatus `json:"status"`
	TargetRecallPointIDs []string     `json:"target_recall_point_ids"`
	RecalledPointIDs    []string      `json:"recalled_point_ids"`
	StartedAt           time.Time     `json:"started_at"`
	ResumedAt           *time.Time    `json:"resumed_at,omitempty"`
	EndedAt             *time.Time    `json:"ended_at,omitempty"`
}

// IsActive reports whether the session can currently process a turn.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusInProgress
}

// IsResumable reports whether start() should resume this session instead of
// creating a new one.
func (s *Session) IsResumable() bool {
	return s.Status == SessionStatusInProgress || s.Status == SessionStatusPaused
}
