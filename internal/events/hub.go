package events

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zulandar/switchboard/internal/metrics"
)

// ErrUnknownConn is returned when binding a connection that is not attached.
var ErrUnknownConn = errors.New("events: connection not attached")

// Role classifies a connection.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleAgent     Role = "agent"
	RoleDashboard Role = "dashboard"
)

// Publisher delivers events to the connections selected by targets.
type Publisher interface {
	Publish(ev Event, targets ...Target)
}

// Subscriber is one connected observer. Send must not block; it reports
// false when the event was dropped.
type Subscriber interface {
	ID() string
	Send(ev Event) bool
}

// Mirror receives a copy of every published event.
type Mirror interface {
	Record(ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev Event, targets ...Target)

func (f PublisherFunc) Publish(ev Event, targets ...Target) { f(ev, targets...) }

// Discard is a Publisher that drops everything.
var Discard Publisher = PublisherFunc(func(Event, ...Target) {})

type member struct {
	sub      Subscriber
	role     Role
	sessions map[string]struct{}
	agentID  string
}

// HubOpts configures a Hub.
type HubOpts struct {
	Logger zerolog.Logger
	Mirror Mirror
}

// Hub tracks connections and routes events to them.
type Hub struct {
	mu        sync.RWMutex
	members   map[string]*member
	bySession map[string]map[string]struct{}
	byAgent   map[string]map[string]struct{}

	log    zerolog.Logger
	mirror Mirror
}

// NewHub creates an empty Hub.
func NewHub(opts HubOpts) *Hub {
	return &Hub{
		members:   make(map[string]*member),
		bySession: make(map[string]map[string]struct{}),
		byAgent:   make(map[string]map[string]struct{}),
		log:       opts.Logger.With().Str("component", "hub").Logger(),
		mirror:    opts.Mirror,
	}
}

// Attach registers a connection. Attaching an existing ID replaces it.
func (h *Hub) Attach(sub Subscriber, role Role) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.members[sub.ID()]; ok {
		h.unbindLocked(sub.ID(), old)
	}
	h.members[sub.ID()] = &member{sub: sub, role: role, sessions: make(map[string]struct{})}
	metrics.ConnectedClients.WithLabelValues(string(role)).Inc()
	h.log.Debug().Str("conn", sub.ID()).Str("role", string(role)).Msg("attached")
}

// Detach removes a connection and all of its bindings. It never touches
// session or agent state.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[connID]
	if !ok {
		return
	}
	h.unbindLocked(connID, m)
	delete(h.members, connID)
	h.log.Debug().Str("conn", connID).Msg("detached")
}

func (h *Hub) unbindLocked(connID string, m *member) {
	for sid := range m.sessions {
		removeFrom(h.bySession, sid, connID)
	}
	if m.agentID != "" {
		removeFrom(h.byAgent, m.agentID, connID)
	}
	metrics.ConnectedClients.WithLabelValues(string(m.role)).Dec()
}

func removeFrom(idx map[string]map[string]struct{}, key, connID string) {
	set := idx[key]
	delete(set, connID)
	if len(set) == 0 {
		delete(idx, key)
	}
}

// BindSession subscribes a connection to a session's events.
func (h *Hub) BindSession(connID, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[connID]
	if !ok {
		return ErrUnknownConn
	}
	m.sessions[sessionID] = struct{}{}
	if h.bySession[sessionID] == nil {
		h.bySession[sessionID] = make(map[string]struct{})
	}
	h.bySession[sessionID][connID] = struct{}{}
	return nil
}

// BindAgent associates a connection with an agent identity, replacing any
// previous one.
func (h *Hub) BindAgent(connID, agentID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.members[connID]
	if !ok {
		return ErrUnknownConn
	}
	if m.agentID != "" {
		removeFrom(h.byAgent, m.agentID, connID)
	}
	m.agentID = agentID
	if agentID == "" {
		return nil
	}
	if h.byAgent[agentID] == nil {
		h.byAgent[agentID] = make(map[string]struct{})
	}
	h.byAgent[agentID][connID] = struct{}{}
	return nil
}

// Count returns the number of attached connections with the given role.
func (h *Hub) Count(role Role) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.members {
		if m.role == role {
			n++
		}
	}
	return n
}

// Publish delivers ev to every connection selected by targets, at most once
// per connection. Delivery happens outside the hub lock.
func (h *Hub) Publish(ev Event, targets ...Target) {
	subs := h.resolve(targets)
	for _, s := range subs {
		if s.Send(ev) {
			metrics.EventsDelivered.WithLabelValues(ev.Name).Inc()
		} else {
			metrics.EventsDropped.WithLabelValues(ev.Name).Inc()
			h.log.Warn().Str("conn", s.ID()).Str("event", ev.Name).Msg("event dropped")
		}
	}
	if h.mirror != nil {
		h.mirror.Record(ev)
	}
}

func (h *Hub) resolve(targets []Target) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []Subscriber
	add := func(connID string) {
		if _, dup := seen[connID]; dup {
			return
		}
		m, ok := h.members[connID]
		if !ok {
			return
		}
		seen[connID] = struct{}{}
		out = append(out, m.sub)
	}

	for _, t := range targets {
		switch t.kind {
		case targetConn:
			add(t.id)
		case targetSession:
			for id := range h.bySession[t.id] {
				add(id)
			}
		case targetAgent:
			for id := range h.byAgent[t.id] {
				add(id)
			}
		case targetAgents:
			for _, set := range h.byAgent {
				for id := range set {
					add(id)
				}
			}
		case targetDashboards:
			for id, m := range h.members {
				if m.role == RoleDashboard {
					add(id)
				}
			}
		}
	}
	return out
}
