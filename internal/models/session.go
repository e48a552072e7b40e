package models

import "time"

// SessionStatus is the lifecycle state of a support session.
type SessionStatus string

const (
	StatusBot     SessionStatus = "bot"
	StatusWaiting SessionStatus = "waiting"
	StatusAgent   SessionStatus = "agent"
	StatusClosed  SessionStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusBot, StatusWaiting, StatusAgent, StatusClosed:
		return true
	}
	return false
}

// Metadata is free-form data attached to sessions and messages (customer
// name, email, requested priority and so on). Stored as JSON.
type Metadata map[string]any

// String returns the value at key if it is a string, or "".
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

// Clone returns a shallow copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Session is one customer's support conversation. The in-memory store owns
// the canonical copy; everything handed out of the store is a clone.
type Session struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	CustomerID     string        `gorm:"size:255;not null;index" json:"userId"`
	Status         SessionStatus `gorm:"size:16;default:bot;index" json:"status"`
	AssignedAgent  string        `gorm:"size:36;index" json:"assignedAgent,omitempty"`
	BotContext     string        `gorm:"type:text" json:"botContext,omitempty"`
	Metadata       Metadata      `gorm:"serializer:json" json:"metadata,omitempty"`
	Priority       Priority      `gorm:"size:8" json:"priority,omitempty"`
	TransferReason string        `gorm:"size:255" json:"transferReason,omitempty"`
	QueuedAt       *time.Time    `json:"queuedAt,omitempty"`
	CreatedAt      time.Time     `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime:false;index" json:"updatedAt"`
	ClosedAt       *time.Time    `json:"closedAt,omitempty"`

	Messages []Message `gorm:"foreignKey:SessionID" json:"messages"`
}

// Clone returns a deep copy of the session, including its messages.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Metadata = s.Metadata.Clone()
	c.QueuedAt = cloneTime(s.QueuedAt)
	c.ClosedAt = cloneTime(s.ClosedAt)
	c.Messages = make([]Message, len(s.Messages))
	for i := range s.Messages {
		c.Messages[i] = s.Messages[i].Clone()
	}
	return &c
}

// Summary returns a copy without the message history, used for queue and
// dashboard views where only the count matters.
func (s *Session) Summary() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Metadata = s.Metadata.Clone()
	c.QueuedAt = cloneTime(s.QueuedAt)
	c.ClosedAt = cloneTime(s.ClosedAt)
	c.Messages = []Message{}
	return &c
}

// CustomerName returns the display name supplied in the session metadata.
func (s *Session) CustomerName() string {
	if name := s.Metadata.String("name"); name != "" {
		return name
	}
	return s.CustomerID
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
