// Package desk coordinates chat sessions between customers, the bot, the
// waiting queue and human agents. Every state-changing operation on a
// session runs under that session's lock, so operations on one session are
// serialized while different sessions proceed in parallel.
package desk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zulandar/switchboard/internal/agent"
	"github.com/zulandar/switchboard/internal/events"
	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/queue"
	"github.com/zulandar/switchboard/internal/session"
)

var (
	// ErrAlreadyAssigned is returned when a pickup targets a session that is
	// no longer waiting.
	ErrAlreadyAssigned = errors.New("session already assigned")
	// ErrAgentUnavailable is returned when the picking agent is unknown,
	// not available, or at capacity.
	ErrAgentUnavailable = agent.ErrUnavailable
	// ErrNotOwner is returned when an actor touches a session it does not own.
	ErrNotOwner = errors.New("not the owner of this session")
	// ErrBotInactive is returned for a bot reply after the session left bot mode.
	ErrBotInactive = errors.New("session is no longer handled by the bot")
)

const (
	statsWindow   = 24 * time.Hour
	notifyTimeout = 10 * time.Second
)

// Notifier is told when a customer starts waiting for an agent.
type Notifier interface {
	CustomerWaiting(ctx context.Context, sess *models.Session, position int) error
}

// KnowledgeStatsSource supplies the optional knowledge-base block of SystemStats.
type KnowledgeStatsSource interface {
	Stats(ctx context.Context) (*models.KnowledgeStats, error)
}

// Opts configures a Desk. Sessions, Queue and Agents are required.
type Opts struct {
	Sessions  *session.Store
	Queue     *queue.Queue
	Agents    *agent.Registry
	Publisher events.Publisher
	Notifier  Notifier
	Knowledge KnowledgeStatsSource
	Logger    zerolog.Logger

	// Greeting, when set, is appended as a bot message to every new session.
	Greeting string
}

// Desk owns the session store, queue and agent registry and is the only
// writer to them.
type Desk struct {
	sessions  *session.Store
	queue     *queue.Queue
	agents    *agent.Registry
	pub       events.Publisher
	notifier  Notifier
	knowledge KnowledgeStatsSource
	log       zerolog.Logger
	greeting  string

	locks keyedMutex
}

// New creates a Desk.
func New(opts Opts) *Desk {
	d := &Desk{
		sessions:  opts.Sessions,
		queue:     opts.Queue,
		agents:    opts.Agents,
		pub:       opts.Publisher,
		notifier:  opts.Notifier,
		knowledge: opts.Knowledge,
		log:       opts.Logger.With().Str("component", "desk").Logger(),
		greeting:  opts.Greeting,
		locks:     keyedMutex{locks: make(map[string]*refLock)},
	}
	if d.pub == nil {
		d.pub = events.Discard
	}
	return d
}

// Actor identifies who is performing an operation.
type Actor struct {
	Role ActorRole
	ID   string
}

// ActorRole classifies an Actor.
type ActorRole string

const (
	ActorCustomer ActorRole = "customer"
	ActorAgent    ActorRole = "agent"
	ActorSystem   ActorRole = "system"
)

// Customer returns an Actor for a customer id.
func Customer(id string) Actor { return Actor{Role: ActorCustomer, ID: id} }

// Agent returns an Actor for an agent id.
func Agent(id string) Actor { return Actor{Role: ActorAgent, ID: id} }

// System is the Actor used for administrative operations.
var System = Actor{Role: ActorSystem}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Session returns a copy of a session.
func (d *Desk) Session(sessionID string) (*models.Session, error) {
	return d.sessions.Get(sessionID)
}

// ActiveSessions returns summaries of every open session.
func (d *Desk) ActiveSessions() []*models.Session {
	return d.sessions.Active()
}

// Agents returns every known agent.
func (d *Desk) Agents() []*models.Agent {
	return d.agents.List()
}

// agentName resolves an agent's display name, falling back to its id.
func (d *Desk) agentName(agentID string) string {
	if a, err := d.agents.Get(agentID); err == nil && a.Name != "" {
		return a.Name
	}
	return agentID
}

// system appends a system message and publishes it. Failures are logged:
// announcements never fail the operation that triggered them.
func (d *Desk) system(sessionID, content string, targets ...events.Target) {
	msg, err := d.sessions.Append(sessionID, content, models.SenderSystem, nil)
	if err != nil {
		d.log.Warn().Err(err).Str("session", sessionID).Msg("system message failed")
		return
	}
	metrics.MessagesAppended.WithLabelValues(string(models.SenderSystem)).Inc()
	d.pub.Publish(events.New(events.MessageReceived, msg), targets...)
}
