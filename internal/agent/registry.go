// Package agent tracks connected support agents, their availability and the
// sessions each one owns.
package agent

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/models"
)

var (
	// ErrNotFound is returned for an unknown agent id.
	ErrNotFound = errors.New("agent not found")
	// ErrUnavailable is returned when an agent cannot take a new session.
	ErrUnavailable = errors.New("agent unavailable")
)

// Journal persists agent records before they change in memory.
type Journal interface {
	SaveAgent(a *models.Agent) error
}

type nopJournal struct{}

func (nopJournal) SaveAgent(*models.Agent) error { return nil }

// RegistryOpts configures a Registry.
type RegistryOpts struct {
	Journal Journal
	// MaxSessions caps owned sessions per agent. Zero means unlimited.
	MaxSessions int
	Now         func() time.Time
	NewID       func() string
}

type record struct {
	agent *models.Agent
	owned map[string]struct{}
	// pending holds reserved sessions that count toward capacity but are
	// not yet owned.
	pending map[string]struct{}
}

func (r *record) snapshot() *models.Agent {
	a := r.agent.Clone()
	a.Sessions = make([]string, 0, len(r.owned))
	for id := range r.owned {
		a.Sessions = append(a.Sessions, id)
	}
	sort.Strings(a.Sessions)
	return a
}

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*record

	journal     Journal
	maxSessions int
	now         func() time.Time
	newID       func() string
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts RegistryOpts) *Registry {
	r := &Registry{
		agents:      make(map[string]*record),
		journal:     opts.Journal,
		maxSessions: opts.MaxSessions,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if r.journal == nil {
		r.journal = nopJournal{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// Register creates an agent, or reactivates agentID if it is already known.
// Reactivation keeps owned sessions and binds the new connection. Names
// need not be unique.
func (r *Registry) Register(connID, name, agentID string) (*models.Agent, error) {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if rec, ok := r.agents[agentID]; ok && agentID != "" {
		next := rec.agent.Clone()
		next.ConnID = connID
		next.Status = models.AgentAvailable
		next.LastActiveAt = now
		if name != "" {
			next.Name = name
		}
		if err := r.journal.SaveAgent(next); err != nil {
			return nil, fmt.Errorf("agent: reactivate %s: %w", agentID, err)
		}
		rec.agent = next
		return rec.snapshot(), nil
	}

	if name == "" {
		return nil, fmt.Errorf("agent: name is required")
	}
	a := &models.Agent{
		ID:           r.newID(),
		ConnID:       connID,
		Name:         name,
		Status:       models.AgentAvailable,
		JoinedAt:     now,
		LastActiveAt: now,
	}
	if err := r.journal.SaveAgent(a); err != nil {
		return nil, fmt.Errorf("agent: register %q: %w", name, err)
	}
	rec := &record{agent: a, owned: make(map[string]struct{}), pending: make(map[string]struct{})}
	r.agents[a.ID] = rec
	return rec.snapshot(), nil
}

// MarkAvailable makes the agent eligible for new assignments.
func (r *Registry) MarkAvailable(agentID string) (*models.Agent, error) {
	return r.setStatus(agentID, models.AgentAvailable)
}

// MarkBusy keeps the agent connected but ineligible for new assignments.
func (r *Registry) MarkBusy(agentID string) (*models.Agent, error) {
	return r.setStatus(agentID, models.AgentBusy)
}

// MarkOffline excludes the agent from assignment. Owned sessions are kept:
// going offline is not a close.
func (r *Registry) MarkOffline(agentID string) (*models.Agent, error) {
	return r.setStatus(agentID, models.AgentOffline)
}

func (r *Registry) setStatus(agentID string, status models.AgentStatus) (*models.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	next := rec.agent.Clone()
	next.Status = status
	next.LastActiveAt = r.now()
	if err := r.journal.SaveAgent(next); err != nil {
		return nil, fmt.Errorf("agent: mark %s %s: %w", agentID, status, err)
	}
	rec.agent = next
	return rec.snapshot(), nil
}

// Get returns a copy of the agent.
func (r *Registry) Get(agentID string) (*models.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	return rec.snapshot(), nil
}

// List returns every known agent ordered by join time.
func (r *Registry) List() []*models.Agent {
	return r.filter(func(*models.Agent) bool { return true })
}

// ListAvailable returns agents eligible for new assignments.
func (r *Registry) ListAvailable() []*models.Agent {
	return r.filter(func(a *models.Agent) bool { return a.Status == models.AgentAvailable })
}

func (r *Registry) filter(keep func(*models.Agent) bool) []*models.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Agent
	for _, rec := range r.agents {
		if keep(rec.agent) {
			out = append(out, rec.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Assign records sessionID as owned by agentID. The agent must be available
// and below its session cap.
func (r *Registry) Assign(agentID, sessionID string) error {
	if err := r.Reserve(agentID, sessionID); err != nil {
		return err
	}
	r.Commit(agentID, sessionID)
	return nil
}

// Reserve holds a slot on agentID for sessionID without making it owned.
// The agent must be available and below its session cap, counting other
// reservations. Follow with Commit or Cancel.
func (r *Registry) Reserve(agentID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("%w: %w: %s", ErrUnavailable, ErrNotFound, agentID)
	}
	if rec.agent.Status != models.AgentAvailable {
		return fmt.Errorf("%w: %s is %s", ErrUnavailable, rec.agent.Name, rec.agent.Status)
	}
	if r.maxSessions > 0 && len(rec.owned)+len(rec.pending) >= r.maxSessions {
		return fmt.Errorf("%w: %s is at capacity (%d sessions)", ErrUnavailable, rec.agent.Name, r.maxSessions)
	}
	rec.pending[sessionID] = struct{}{}
	return nil
}

// Commit turns a reservation into ownership.
func (r *Registry) Commit(agentID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[agentID]; ok {
		delete(rec.pending, sessionID)
		rec.owned[sessionID] = struct{}{}
		rec.agent.LastActiveAt = r.now()
	}
}

// Cancel drops a reservation.
func (r *Registry) Cancel(agentID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[agentID]; ok {
		delete(rec.pending, sessionID)
	}
}

// Release removes sessionID from the agent's owned set. Unknown agents and
// sessions are ignored.
func (r *Registry) Release(agentID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[agentID]; ok {
		delete(rec.owned, sessionID)
	}
}

// Owns reports whether agentID currently owns sessionID.
func (r *Registry) Owns(agentID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[agentID]
	if !ok {
		return false
	}
	_, owned := rec.owned[sessionID]
	return owned
}

// Touch refreshes the agent's last-active time.
func (r *Registry) Touch(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[agentID]; ok {
		rec.agent.LastActiveAt = r.now()
	}
}

// Restore installs a journaled agent with the given owned sessions. Restored
// agents start offline until they reconnect.
func (r *Registry) Restore(a *models.Agent, owned []string) {
	c := a.Clone()
	c.ConnID = ""
	c.Status = models.AgentOffline
	c.Sessions = nil
	rec := &record{agent: c, owned: make(map[string]struct{}, len(owned)), pending: make(map[string]struct{})}
	for _, id := range owned {
		rec.owned[id] = struct{}{}
	}
	r.mu.Lock()
	r.agents[c.ID] = rec
	r.mu.Unlock()
}

// Count returns the total number of agents and how many are available.
func (r *Registry) Count() (total, available int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.agents {
		total++
		if rec.agent.Status == models.AgentAvailable {
			available++
		}
	}
	return total, available
}
