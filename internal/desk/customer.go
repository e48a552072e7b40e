package desk

import (
	"context"
	"fmt"

	"github.com/zulandar/switchboard/internal/events"
	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/queue"
	"github.com/zulandar/switchboard/internal/session"
)

// StartChat creates a session in bot status for customerID. The
// session:created event and the optional greeting go to connID, which the
// caller binds to the session once StartChat returns.
func (d *Desk) StartChat(connID, customerID, botContext string, meta models.Metadata) (*models.Session, error) {
	sess, err := d.sessions.Create(customerID, botContext, meta)
	if err != nil {
		return nil, fmt.Errorf("desk: start chat: %w", err)
	}
	unlock := d.locks.lock(sess.ID)
	defer unlock()

	metrics.SessionsCreated.Inc()
	d.log.Info().Str("session", sess.ID).Str("customer", customerID).Msg("chat started")

	targets := []events.Target{events.ToConn(connID), events.ToSession(sess.ID)}
	d.pub.Publish(events.New(events.SessionCreated, events.SessionCreatedData{
		SessionID: sess.ID,
		Status:    sess.Status,
	}), targets...)

	if d.greeting != "" {
		msg, err := d.sessions.Append(sess.ID, d.greeting, models.SenderBot, nil)
		if err != nil {
			d.log.Warn().Err(err).Str("session", sess.ID).Msg("greeting failed")
		} else {
			metrics.MessagesAppended.WithLabelValues(string(models.SenderBot)).Inc()
			d.pub.Publish(events.New(events.MessageReceived, msg), targets...)
		}
	}
	return d.sessions.Get(sess.ID)
}

// Resume re-attaches a customer to one of its sessions and sends the
// current state to connID.
func (d *Desk) Resume(connID, sessionID, customerID string) (*models.Session, error) {
	unlock := d.locks.lock(sessionID)
	defer unlock()

	sess, err := d.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CustomerID != customerID {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, sessionID)
	}

	state := events.SessionStateData{Session: sess}
	if info, ok := d.queueInfo(sessionID); ok {
		state.QueueInfo = &info
	}
	if sess.AssignedAgent != "" {
		state.AgentName = d.agentName(sess.AssignedAgent)
	}
	d.pub.Publish(events.New(events.SessionState, state), events.ToConn(connID))
	return sess, nil
}

// CustomerMessage appends a customer message and returns it along with the
// session status at the time of the append.
func (d *Desk) CustomerMessage(sessionID, customerID, content string) (*models.Message, models.SessionStatus, error) {
	unlock := d.locks.lock(sessionID)
	defer unlock()

	sess, err := d.sessions.Get(sessionID)
	if err != nil {
		return nil, "", err
	}
	if sess.CustomerID != customerID {
		return nil, "", fmt.Errorf("%w: %s", ErrNotOwner, sessionID)
	}
	msg, err := d.sessions.Append(sessionID, content, models.SenderCustomer, nil)
	if err != nil {
		return nil, "", err
	}
	metrics.MessagesAppended.WithLabelValues(string(models.SenderCustomer)).Inc()

	targets := []events.Target{events.ToSession(sessionID)}
	if sess.AssignedAgent != "" {
		targets = append(targets, events.ToAgent(sess.AssignedAgent))
	}
	d.pub.Publish(events.New(events.MessageReceived, msg), targets...)
	return msg, sess.Status, nil
}

// BotReply appends a bot message. It fails with ErrBotInactive once the
// session has left bot status, so a slow responder cannot talk over an
// agent.
func (d *Desk) BotReply(sessionID, content string, meta models.Metadata) (*models.Message, error) {
	unlock := d.locks.lock(sessionID)
	defer unlock()

	sess, err := d.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusBot {
		return nil, fmt.Errorf("%w: %s is %s", ErrBotInactive, sessionID, sess.Status)
	}
	msg, err := d.sessions.Append(sessionID, content, models.SenderBot, meta)
	if err != nil {
		return nil, err
	}
	metrics.MessagesAppended.WithLabelValues(string(models.SenderBot)).Inc()
	d.pub.Publish(events.New(events.MessageReceived, msg), events.ToSession(sessionID))
	return msg, nil
}

// Escalate moves a bot session into the waiting queue. Priority is fixed at
// this point; later messages do not change it.
func (d *Desk) Escalate(sessionID string, priority models.Priority, reason string) (*models.Session, error) {
	unlock := d.locks.lock(sessionID)
	defer unlock()

	if d.queue.Contains(sessionID) {
		return nil, fmt.Errorf("desk: escalate: %w: %s", queue.ErrAlreadyQueued, sessionID)
	}
	cur, err := d.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if cur.Status == models.StatusWaiting {
		return nil, fmt.Errorf("desk: escalate: %w: %s", queue.ErrAlreadyQueued, sessionID)
	}
	if priority == "" {
		priority = models.PriorityNormal
	}

	sess, err := d.sessions.SetStatus(sessionID, session.Transition{
		Status:   models.StatusWaiting,
		Priority: priority,
		Reason:   reason,
	})
	if err != nil {
		return nil, fmt.Errorf("desk: escalate: %w", err)
	}
	entry := models.QueueEntry{
		SessionID:  sessionID,
		Priority:   sess.Priority,
		Reason:     reason,
		EnqueuedAt: *sess.QueuedAt,
	}
	if err := d.queue.Insert(entry); err != nil {
		// Only this session's lock holder inserts it, so this cannot race.
		return nil, fmt.Errorf("desk: escalate: %w", err)
	}
	position := d.queue.Position(sessionID)

	metrics.Escalations.WithLabelValues(string(sess.Priority)).Inc()
	metrics.QueueLength.Set(float64(d.queue.Len()))
	d.log.Info().Str("session", sessionID).Str("priority", string(sess.Priority)).
		Str("reason", reason).Int("position", position).Msg("session queued")

	d.pub.Publish(events.New(events.StatusChanged, events.StatusChangedData{
		SessionID: sessionID,
		Status:    models.StatusWaiting,
	}), events.ToSession(sessionID))
	d.system(sessionID, fmt.Sprintf("You are #%d in the queue. An agent will be with you shortly.", position),
		events.ToSession(sessionID))
	d.pub.Publish(events.New(events.CustomerWaiting, events.CustomerWaitingData{
		SessionID:      sessionID,
		Session:        sess.Summary(),
		TransferReason: reason,
		Priority:       sess.Priority,
	}), events.ToAgents(), events.ToDashboards())
	d.publishQueue()

	if d.notifier != nil {
		go d.notifyWaiting(sess.Summary(), position)
	}
	return d.sessions.Get(sessionID)
}

func (d *Desk) notifyWaiting(sess *models.Session, position int) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := d.notifier.CustomerWaiting(ctx, sess, position); err != nil {
		d.log.Warn().Err(err).Str("session", sess.ID).Msg("waiting notification failed")
	}
}
