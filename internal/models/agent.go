package models

import "time"

// AgentStatus is an agent's availability for new assignments.
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentOffline   AgentStatus = "offline"
)

// Valid reports whether s is one of the known availability states.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentAvailable, AgentBusy, AgentOffline:
		return true
	}
	return false
}

// Agent is a human support agent. The ID is stable across reconnects;
// ConnID is the transport connection currently bound to it.
type Agent struct {
	ID           string      `gorm:"primaryKey;size:36" json:"id"`
	ConnID       string      `gorm:"-" json:"socketId,omitempty"`
	Name         string      `gorm:"size:128;not null" json:"name"`
	Status       AgentStatus `gorm:"size:16;index" json:"status"`
	Sessions     []string    `gorm:"-" json:"activeSessions"`
	JoinedAt     time.Time   `json:"joinedAt"`
	LastActiveAt time.Time   `json:"lastActiveAt"`
}

// Clone returns a copy with its own session slice.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	c.Sessions = append([]string(nil), a.Sessions...)
	return &c
}
