package models

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderBot      Sender = "bot"
	SenderAgent    Sender = "agent"
	SenderSystem   Sender = "system"
)

// Valid reports whether s is one of the known sender roles.
func (s Sender) Valid() bool {
	switch s {
	case SenderCustomer, SenderBot, SenderAgent, SenderSystem:
		return true
	}
	return false
}

// Message is a single immutable entry in a session's conversation.
// Sequence is the 1-based delivery position within the session.
type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID string    `gorm:"size:36;not null;index:idx_session_seq" json:"sessionId"`
	Sequence  int       `gorm:"not null;index:idx_session_seq" json:"sequence"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Sender    Sender    `gorm:"size:16;not null" json:"sender"`
	Metadata  Metadata  `gorm:"serializer:json" json:"metadata,omitempty"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
}

// Clone returns a copy that shares nothing mutable with m.
func (m Message) Clone() Message {
	m.Metadata = m.Metadata.Clone()
	return m
}
