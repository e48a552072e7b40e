package desk

import (
	"errors"
	"fmt"

	"github.com/zulandar/switchboard/internal/events"
	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
)

// Pickup binds a waiting session to agentID. Under concurrent pickups of
// the same session exactly one caller succeeds; the rest get
// ErrAlreadyAssigned. A failed pickup leaves the session waiting and
// assignable.
func (d *Desk) Pickup(agentID, sessionID string) (*models.Session, error) {
	unlock := d.locks.lock(sessionID)
	defer unlock()

	sess, err := d.pickup(agentID, sessionID)
	metrics.Pickups.WithLabelValues(pickupResult(err)).Inc()
	if err != nil {
		d.log.Warn().Err(err).Str("session", sessionID).Str("agent", agentID).Msg("pickup rejected")
		return nil, err
	}
	return sess, nil
}

func (d *Desk) pickup(agentID, sessionID string) (*models.Session, error) {
	cur, err := d.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if cur.Status != models.StatusWaiting {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyAssigned, sessionID, cur.Status)
	}
	// The agent only owns the session once its status has committed.
	if err := d.agents.Reserve(agentID, sessionID); err != nil {
		return nil, err
	}
	sess, err := d.sessions.SetStatus(sessionID, session.Transition{
		Status:        models.StatusAgent,
		AssignedAgent: agentID,
	})
	if err != nil {
		d.agents.Cancel(agentID, sessionID)
		return nil, fmt.Errorf("desk: pickup %s: %w", sessionID, err)
	}
	d.agents.Commit(agentID, sessionID)
	d.queue.Remove(sessionID)
	metrics.QueueLength.Set(float64(d.queue.Len()))

	name := d.agentName(agentID)
	d.log.Info().Str("session", sessionID).Str("agent", agentID).Msg("session assigned")

	d.pub.Publish(events.New(events.SessionAssigned, events.SessionAssignedData{
		SessionID: sessionID,
		Session:   sess,
	}), events.ToAgent(agentID), events.ToSession(sessionID))
	d.pub.Publish(events.New(events.StatusChanged, events.StatusChangedData{
		SessionID: sessionID,
		Status:    models.StatusAgent,
		AgentName: name,
	}), events.ToSession(sessionID))
	d.system(sessionID, name+" has joined the chat.", events.ToSession(sessionID), events.ToAgent(agentID))
	d.publishQueue()

	return d.sessions.Get(sessionID)
}

func pickupResult(err error) string {
	switch {
	case err == nil:
		return "assigned"
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrAgentUnavailable):
		return "agent_unavailable"
	case errors.Is(err, session.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// AgentMessage appends a message from agentID into a session it owns.
func (d *Desk) AgentMessage(agentID, sessionID, content string) (*models.Message, error) {
	unlock := d.locks.lock(sessionID)
	defer unlock()

	sess, err := d.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.StatusClosed {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionClosed, sessionID)
	}
	if sess.Status != models.StatusAgent || sess.AssignedAgent != agentID {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, sessionID)
	}
	msg, err := d.sessions.Append(sessionID, content, models.SenderAgent, nil)
	if err != nil {
		return nil, err
	}
	metrics.MessagesAppended.WithLabelValues(string(models.SenderAgent)).Inc()
	d.agents.Touch(agentID)
	d.pub.Publish(events.New(events.MessageReceived, msg), events.ToSession(sessionID), events.ToAgent(agentID))
	return msg, nil
}

// Close ends a session. Closing an already closed session is a no-op that
// returns false and publishes nothing. Customers may only close their own
// sessions; agents may close bot or waiting sessions and the ones they own.
func (d *Desk) Close(actor Actor, sessionID string) (bool, error) {
	unlock := d.locks.lock(sessionID)
	defer unlock()

	cur, err := d.sessions.Get(sessionID)
	if err != nil {
		return false, err
	}
	if cur.Status == models.StatusClosed {
		return false, nil
	}
	switch actor.Role {
	case ActorCustomer:
		if cur.CustomerID != actor.ID {
			return false, fmt.Errorf("%w: %s", ErrNotOwner, sessionID)
		}
	case ActorAgent:
		if cur.Status == models.StatusAgent && cur.AssignedAgent != actor.ID {
			return false, fmt.Errorf("%w: %s", ErrNotOwner, sessionID)
		}
	}

	if _, err := d.sessions.SetStatus(sessionID, session.Transition{Status: models.StatusClosed}); err != nil {
		return false, fmt.Errorf("desk: close %s: %w", sessionID, err)
	}
	wasQueued := d.queue.Remove(sessionID)
	if cur.AssignedAgent != "" {
		d.agents.Release(cur.AssignedAgent, sessionID)
	}

	metrics.SessionsClosed.WithLabelValues(string(cur.Status)).Inc()
	d.log.Info().Str("session", sessionID).Str("from", string(cur.Status)).
		Str("by", string(actor.Role)).Msg("session closed")

	targets := []events.Target{events.ToSession(sessionID), events.ToAgents()}
	d.pub.Publish(events.New(events.SessionClosed, events.SessionClosedData{SessionID: sessionID}), targets...)
	if wasQueued {
		metrics.QueueLength.Set(float64(d.queue.Len()))
		d.publishQueue()
	}
	return true, nil
}
