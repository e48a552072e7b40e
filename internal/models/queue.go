package models

import "time"

// Priority orders queue entries. High is served first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the serving rank of p; lower ranks are served first.
// Unknown priorities rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ParsePriority converts s to a Priority. An empty string yields normal.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(s), true
	case "":
		return PriorityNormal, true
	}
	return PriorityNormal, false
}

// QueueEntry is a weak reference from the queue to a waiting session.
type QueueEntry struct {
	SessionID  string    `json:"sessionId"`
	Priority   Priority  `json:"priority"`
	Reason     string    `json:"transferReason,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// QueueInfo is the customer- and dashboard-facing view of an entry.
type QueueInfo struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	Priority  Priority      `json:"priority"`
	WaitTime  int64         `json:"waitTime"`
	Position  int           `json:"position"`
}
