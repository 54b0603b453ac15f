package models

import "time"

// FSRSCardState is the FSRS lifecycle stage of a recall point.
type FSRSCardState string

// FSRS card state constants.
const (
	FSRSStateNew        FSRSCardState = "new"
	FSRSStateLearning    FSRSCardState = "learning"
	FSRSStateReview      FSRSCardState = "review"
	FSRSStateRelearning  FSRSCardState = "relearning"
)

// FSRSState is the scheduler state nested inside a RecallPoint. The FSRS
// kernel (internal/fsrs) is the only code permitted to compute a new
// FSRSState; every other caller treats it as opaque scheduling data.
type FSRSState struct {
	Difficulty float64       `json:"difficulty"`
	Stability  float64       `json:"stability"`
	Due        time.Time     `json:"due"`
	LastReview *time.Time    `json:"last_review,omitempty"`
	Reps       int           `json:"reps"`
	Lapses     int           `json:"lapses"`
	State      FSRSCardState `json:"state"`
}

// IsDue reports whether the state's due date has passed as of `now`.
func (s FSRSState) IsDue(now time.Time) bool {
	return !s.Due.After(now)
}

// RecallAttempt is one append-only entry in a recall point's history.
type RecallAttempt struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	LatencyMS int64     `json:"latency_ms"`
}

// RecallPoint is a single fact scheduled under FSRS. It is created by
// seeding/authoring and is never deleted while referenced by a
// RecallOutcome; the scheduler adapter is the only mutator of FSRS state
// and recall history.
type RecallPoint struct {
	ID          string          `json:"id"`
	RecallSetID string          `json:"recall_set_id"`
	Content     string          `json:"content"`
	Context     string          `json:"context,omitempty"`
	FSRS        FSRSState       `json:"fsrs"`
	History     []RecallAttempt `json:"history,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TruncatedContent returns a short prefix of the point's content, used by
// the continuous evaluator to build near-miss feedback without revealing
// the full fact (§4.3).
func (p *RecallPoint) TruncatedContent(maxLen int) string {
	if len(p.Content) <= maxLen {
		return p.Content
	}
	return p.Content[:maxLen] + "..."
}
