package desk

import (
	"fmt"

	"github.com/zulandar/switchboard/internal/events"
	"github.com/zulandar/switchboard/internal/models"
)

// Join logs an agent in on connID. A known agentID is reactivated with its
// owned sessions; otherwise a new agent is created. The agent:joined event
// and the current queue go to connID, which the caller binds afterwards.
func (d *Desk) Join(connID, name, agentID string) (*models.Agent, []*models.Session, error) {
	a, err := d.agents.Register(connID, name, agentID)
	if err != nil {
		return nil, nil, fmt.Errorf("desk: join: %w", err)
	}

	owned := make([]*models.Session, 0, len(a.Sessions))
	for _, id := range a.Sessions {
		sess, err := d.sessions.Get(id)
		if err != nil {
			d.log.Warn().Err(err).Str("agent", a.ID).Str("session", id).Msg("owned session missing")
			continue
		}
		owned = append(owned, sess)
	}

	d.log.Info().Str("agent", a.ID).Str("name", a.Name).Int("sessions", len(owned)).Msg("agent joined")
	d.pub.Publish(events.New(events.AgentJoined, events.AgentJoinedData{
		AgentID:  a.ID,
		Agent:    a,
		Sessions: owned,
	}), events.ToConn(connID))
	d.pub.Publish(events.New(events.QueueUpdate, events.QueueUpdateData{Sessions: d.QueueView()}),
		events.ToConn(connID))
	d.pub.Publish(events.New(events.AgentUpdated, a), events.ToDashboards())
	return a, owned, nil
}

// Logout marks an agent offline. Its sessions stay assigned to it.
func (d *Desk) Logout(agentID string) (*models.Agent, error) {
	a, err := d.agents.MarkOffline(agentID)
	if err != nil {
		return nil, fmt.Errorf("desk: logout: %w", err)
	}
	d.log.Info().Str("agent", agentID).Msg("agent logged out")
	d.pub.Publish(events.New(events.AgentUpdated, a), events.ToAgent(agentID), events.ToDashboards())
	return a, nil
}

// SetAvailability switches an agent between available and busy.
func (d *Desk) SetAvailability(agentID string, status models.AgentStatus) (*models.Agent, error) {
	var (
		a   *models.Agent
		err error
	)
	switch status {
	case models.AgentAvailable:
		a, err = d.agents.MarkAvailable(agentID)
	case models.AgentBusy:
		a, err = d.agents.MarkBusy(agentID)
	default:
		return nil, fmt.Errorf("desk: set status: unsupported status %q", status)
	}
	if err != nil {
		return nil, fmt.Errorf("desk: set status: %w", err)
	}
	d.pub.Publish(events.New(events.AgentUpdated, a), events.ToAgent(agentID), events.ToDashboards())
	return a, nil
}
