// Package events defines the wire protocol between the coordinator and its
// connected observers, and the Hub that fans events out to them.
package events

import (
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// Inbound intent names.
const (
	CustomerStartChat    = "customer:start_chat"
	CustomerSendMessage  = "customer:send_message"
	CustomerRequestAgent = "customer:request_agent"
	CustomerEndChat      = "customer:end_chat"
	CustomerResume       = "customer:resume"

	AgentJoin         = "agent:join"
	AgentLogout       = "agent:logout"
	AgentSetStatus    = "agent:set_status"
	AgentPickup       = "agent:pickup_session"
	AgentSendMessage  = "agent:send_message"
	AgentCloseSession = "agent:close_session"

	AdminGetStats   = "admin:get_stats"
	AdminDebugQueue = "admin:debug_queue"
	AdminClearQueue = "admin:clear_queue"
)

// Outbound event names.
const (
	SessionCreated  = "session:created"
	SessionState    = "session:state"
	MessageReceived = "message:received"
	StatusChanged   = "status:changed"
	SessionClosed   = "session:closed"
	SessionAssigned = "session:assigned"
	AgentJoined     = "agent:joined"
	AgentUpdated    = "agent:updated"
	QueueUpdate     = "queue:update"
	CustomerWaiting = "queue:customer_waiting"
	QueueDebugInfo  = "queue:debug_info"
	StatsUpdate     = "stats:update"
	Error           = "error"
)

// Event is a named payload. It is also the JSON envelope on the wire.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// New builds an Event.
func New(name string, data any) Event {
	return Event{Name: name, Data: data}
}

// NewError builds an error event for a rejected intent.
func NewError(intent string, err error) Event {
	return New(Error, ErrorData{Message: err.Error(), Intent: intent})
}

type SessionCreatedData struct {
	SessionID string               `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
}

type StatusChangedData struct {
	SessionID string               `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
	AgentName string               `json:"agentName,omitempty"`
}

type SessionClosedData struct {
	SessionID string `json:"sessionId"`
}

// SessionStateData answers a reconnecting client with current state.
type SessionStateData struct {
	Session   *models.Session   `json:"session"`
	QueueInfo *models.QueueInfo `json:"queueInfo,omitempty"`
	AgentName string            `json:"agentName,omitempty"`
}

type SessionAssignedData struct {
	SessionID string          `json:"sessionId"`
	Session   *models.Session `json:"session"`
}

type AgentJoinedData struct {
	AgentID  string            `json:"agentId"`
	Agent    *models.Agent     `json:"agent"`
	Sessions []*models.Session `json:"sessions"`
}

// QueuedSession is a session summary decorated for queue views.
type QueuedSession struct {
	*models.Session
	MessageCount int              `json:"messageCount"`
	QueueInfo    models.QueueInfo `json:"queueInfo"`
}

type QueueUpdateData struct {
	Sessions []QueuedSession `json:"sessions"`
}

type CustomerWaitingData struct {
	SessionID      string          `json:"sessionId"`
	Session        *models.Session `json:"session"`
	TransferReason string          `json:"transferReason"`
	Priority       models.Priority `json:"priority"`
}

type QueueDebugData struct {
	Entries         []models.QueueEntry `json:"entries"`
	Sessions        []QueuedSession     `json:"sessions"`
	AvailableAgents []*models.Agent     `json:"availableAgents"`
	Consistent      bool                `json:"consistent"`
	Problems        []string            `json:"problems,omitempty"`
	CheckedAt       time.Time           `json:"checkedAt"`
}

type ErrorData struct {
	Message string `json:"message"`
	Intent  string `json:"intent,omitempty"`
}
