package events

type targetKind int

const (
	targetConn targetKind = iota
	targetSession
	targetAgent
	targetAgents
	targetDashboards
)

// Target selects which connections receive an event.
type Target struct {
	kind targetKind
	id   string
}

// ToConn addresses a single connection.
func ToConn(connID string) Target { return Target{kind: targetConn, id: connID} }

// ToSession addresses the customer connections bound to a session.
func ToSession(sessionID string) Target { return Target{kind: targetSession, id: sessionID} }

// ToAgent addresses every connection of one agent.
func ToAgent(agentID string) Target { return Target{kind: targetAgent, id: agentID} }

// ToAgents addresses every logged-in agent connection.
func ToAgents() Target { return Target{kind: targetAgents} }

// ToDashboards addresses dashboard subscribers.
func ToDashboards() Target { return Target{kind: targetDashboards} }
