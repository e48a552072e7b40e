package desk

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/events"
	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/models"
)

// Stats computes the aggregate system view. A knowledge-base failure is
// logged and leaves the KnowledgeBase block empty.
func (d *Desk) Stats(ctx context.Context) models.SystemStats {
	now := d.sessions.Now()
	counts := d.sessions.Count(now.Add(-statsWindow))
	total, available := d.agents.Count()

	st := models.SystemStats{
		TotalSessions:   counts.Total,
		ActiveSessions:  counts.Active,
		QueueLength:     d.queue.Len(),
		TotalAgents:     total,
		AvailableAgents: available,
		QueueBreakdown:  d.queue.Breakdown(),
		AvgWaitTime:     d.queue.AvgWait(now).Seconds(),
		MessagesLast24h: counts.MessagesSince,
	}
	if d.knowledge != nil {
		kb, err := d.knowledge.Stats(ctx)
		if err != nil {
			d.log.Warn().Err(err).Msg("knowledge base stats unavailable")
		} else {
			st.KnowledgeBase = kb
		}
	}
	return st
}

// BroadcastStats pushes the current stats to every agent and dashboard.
func (d *Desk) BroadcastStats(ctx context.Context) models.SystemStats {
	st := d.Stats(ctx)
	d.pub.Publish(events.New(events.StatsUpdate, st), events.ToAgents(), events.ToDashboards())
	return st
}

// QueueView returns the waiting sessions in serving order, each decorated
// with its position and wait time.
func (d *Desk) QueueView() []events.QueuedSession {
	now := d.sessions.Now()
	entries := d.queue.Snapshot()
	out := make([]events.QueuedSession, 0, len(entries))
	for i, e := range entries {
		sess, err := d.sessions.Get(e.SessionID)
		if err != nil {
			continue
		}
		out = append(out, events.QueuedSession{
			Session:      sess.Summary(),
			MessageCount: len(sess.Messages),
			QueueInfo: models.QueueInfo{
				SessionID: e.SessionID,
				Status:    sess.Status,
				Priority:  e.Priority,
				WaitTime:  int64(now.Sub(e.EnqueuedAt) / time.Second),
				Position:  i + 1,
			},
		})
	}
	return out
}

// QueueInfo returns the queue view of one waiting session.
func (d *Desk) QueueInfo(sessionID string) (models.QueueInfo, bool) {
	return d.queueInfo(sessionID)
}

func (d *Desk) queueInfo(sessionID string) (models.QueueInfo, bool) {
	e, ok := d.queue.Get(sessionID)
	if !ok {
		return models.QueueInfo{}, false
	}
	return models.QueueInfo{
		SessionID: sessionID,
		Status:    models.StatusWaiting,
		Priority:  e.Priority,
		WaitTime:  int64(d.sessions.Now().Sub(e.EnqueuedAt) / time.Second),
		Position:  d.queue.Position(sessionID),
	}, true
}

func (d *Desk) publishQueue() {
	d.pub.Publish(events.New(events.QueueUpdate, events.QueueUpdateData{Sessions: d.QueueView()}),
		events.ToAgents(), events.ToDashboards())
}

// DebugQueue reports the raw queue, its decorated view, the available
// agents and the result of an invariant check.
func (d *Desk) DebugQueue() events.QueueDebugData {
	problems := d.CheckInvariant()
	return events.QueueDebugData{
		Entries:         d.queue.Snapshot(),
		Sessions:        d.QueueView(),
		AvailableAgents: d.agents.ListAvailable(),
		Consistent:      len(problems) == 0,
		Problems:        problems,
		CheckedAt:       d.sessions.Now(),
	}
}

// ClearQueue closes every waiting session and returns the ids it closed.
func (d *Desk) ClearQueue() ([]string, error) {
	var ids []string
	for _, e := range d.queue.Snapshot() {
		closed, err := d.Close(System, e.SessionID)
		if err != nil {
			return ids, fmt.Errorf("desk: clear queue: %w", err)
		}
		if closed {
			ids = append(ids, e.SessionID)
		}
	}
	d.log.Info().Int("closed", len(ids)).Msg("queue cleared")
	d.publishQueue()
	return ids, nil
}

// CheckInvariant verifies that agent status and agent ownership agree in
// both directions and that the queue holds exactly the waiting sessions.
// It returns one line per violation.
func (d *Desk) CheckInvariant() []string {
	var problems []string
	for _, s := range d.sessions.Active() {
		unlock := d.locks.lock(s.ID)
		cur, err := d.sessions.Get(s.ID)
		if err == nil {
			problems = append(problems, d.checkSession(cur)...)
		}
		unlock()
	}
	for _, a := range d.agents.List() {
		for _, id := range a.Sessions {
			unlock := d.locks.lock(id)
			if d.agents.Owns(a.ID, id) {
				cur, err := d.sessions.Get(id)
				switch {
				case err != nil:
					problems = append(problems, fmt.Sprintf("agent %s owns unknown session %s", a.ID, id))
				case cur.Status != models.StatusAgent || cur.AssignedAgent != a.ID:
					problems = append(problems, fmt.Sprintf("agent %s owns session %s which is %s/%q",
						a.ID, id, cur.Status, cur.AssignedAgent))
				}
			}
			unlock()
		}
	}
	return problems
}

func (d *Desk) checkSession(s *models.Session) []string {
	var problems []string
	switch s.Status {
	case models.StatusAgent:
		if s.AssignedAgent == "" {
			problems = append(problems, fmt.Sprintf("session %s is agent without assignee", s.ID))
		} else if !d.agents.Owns(s.AssignedAgent, s.ID) {
			problems = append(problems, fmt.Sprintf("session %s assigned to %s who does not own it", s.ID, s.AssignedAgent))
		}
	default:
		if s.AssignedAgent != "" {
			problems = append(problems, fmt.Sprintf("session %s is %s but assigned to %s", s.ID, s.Status, s.AssignedAgent))
		}
	}
	queued := d.queue.Contains(s.ID)
	if queued != (s.Status == models.StatusWaiting) {
		problems = append(problems, fmt.Sprintf("session %s is %s but queued=%v", s.ID, s.Status, queued))
	}
	return problems
}

// Restore loads journaled state at startup. Waiting sessions are re-queued
// and agents come back offline owning their agent-status sessions. An
// assignee missing from agents is restored as an offline placeholder so
// ownership stays consistent.
func (d *Desk) Restore(sessions []*models.Session, agents []*models.Agent) {
	owned := make(map[string][]string)
	for _, s := range sessions {
		if s.Status == models.StatusClosed {
			continue
		}
		d.sessions.Restore(s)
		switch s.Status {
		case models.StatusWaiting:
			at := s.UpdatedAt
			if s.QueuedAt != nil {
				at = *s.QueuedAt
			}
			if err := d.queue.Insert(models.QueueEntry{
				SessionID:  s.ID,
				Priority:   s.Priority,
				Reason:     s.TransferReason,
				EnqueuedAt: at,
			}); err != nil {
				d.log.Warn().Err(err).Str("session", s.ID).Msg("restore: queue insert failed")
			}
		case models.StatusAgent:
			owned[s.AssignedAgent] = append(owned[s.AssignedAgent], s.ID)
		}
	}

	known := make(map[string]bool, len(agents))
	for _, a := range agents {
		known[a.ID] = true
		d.agents.Restore(a, owned[a.ID])
	}
	for id, ids := range owned {
		if known[id] {
			continue
		}
		d.log.Warn().Str("agent", id).Msg("restore: assignee missing, adding placeholder")
		d.agents.Restore(&models.Agent{ID: id, Name: id}, ids)
	}
	metrics.QueueLength.Set(float64(d.queue.Len()))
	d.log.Info().Int("sessions", len(sessions)).Int("agents", len(agents)).
		Int("queued", d.queue.Len()).Msg("state restored")
}

// Prune forgets closed sessions that closed more than olderThan ago.
func (d *Desk) Prune(olderThan time.Duration) int {
	n := d.sessions.Prune(d.sessions.Now().Add(-olderThan))
	if n > 0 {
		d.log.Info().Int("pruned", n).Msg("closed sessions pruned")
	}
	return n
}
