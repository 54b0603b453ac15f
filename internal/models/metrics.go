package models

import "time"

// RecallStats aggregates attempted/successful/failed recall counts for a
// session.
type RecallStats struct {
	Attempted     int     `json:"attempted"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	Rate          float64 `json:"rate"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// RabbitholeStats aggregates tangent activity for a session.
type RabbitholeStats struct {
	Count      int     `json:"count"`
	TotalTimeMS int64  `json:"total_time_ms"`
	AvgDepth   float64 `json:"avg_depth"`
}

// TokenStats aggregates LLM token usage for a session.
type TokenStats struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// SessionMetrics is the one row per completed session aggregating timing,
// recall rates, token use, cost, engagement, and rabbit-hole totals (§4.7).
type SessionMetrics struct {
	ID                  string          `json:"id"`
	SessionID           string          `json:"session_id"`
	TotalDurationMS     int64           `json:"total_duration_ms"`
	ActiveTimeMS        int64           `json:"active_time_ms"`
	AvgUserResponseMS   int64           `json:"avg_user_response_ms"`
	AvgAssistantResponseMS int64        `json:"avg_assistant_response_ms"`
	Recall              RecallStats     `json:"recall"`
	UserMessageCount    int             `json:"user_message_count"`
	AssistantMessageCount int           `json:"assistant_message_count"`
	Rabbithole          RabbitholeStats `json:"rabbithole"`
	Tokens              TokenStats      `json:"tokens"`
	EngagementScore     float64         `json:"engagement_score"`
	CreatedAt           time.Time       `json:"created_at"`
}
