package models

import "strings"

// RabbitholeStatus is the lifecycle state of a detected tangent.
type RabbitholeStatus string

// Rabbit-hole status constants.
const (
	RabbitholeStatusActive   RabbitholeStatus = "active"
	RabbitholeStatusReturned RabbitholeStatus = "returned"
	RabbitholeStatusAbandoned RabbitholeStatus = "abandoned"
)

// RabbitholeTurn is one exchange recorded inside a rabbit-hole's own
// conversation, kept separate from the main dialog (§3, §4.6).
type RabbitholeTurn struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// RabbitholeEvent records a detected topical tangent. At most one event per
// session may have status "active" at a time (§3 invariant 6).
type RabbitholeEvent struct {
	ID                  string           `json:"id"`
	SessionID           string           `json:"session_id"`
	Topic               string           `json:"topic"`
	TriggerMessageIndex int              `json:"trigger_message_index"`
	ReturnMessageIndex  *int             `json:"return_message_index,omitempty"`
	Depth               int              `json:"depth"`
	RelatedPointIDs     []string         `json:"related_point_ids,omitempty"`
	UserInitiated       bool             `json:"user_initiated"`
	Status              RabbitholeStatus `json:"status"`
	Conversation        []RabbitholeTurn `json:"conversation,omitempty"`
}

// IsActive reports whether this event currently occupies the session's
// single rabbit-hole slot.
func (e *RabbitholeEvent) IsActive() bool {
	return e.Status == RabbitholeStatusActive
}

// NormalizedTopic lowercases and trims the topic for known-topic comparisons
// (§4.5: a rabbit hole is only created if its normalized topic is not
// already in the active/known-topic set for the session).
func NormalizedTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}
