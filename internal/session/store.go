package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/switchboard/internal/models"
)

// Journal receives every change before it is committed in memory. A journal
// error aborts the change.
type Journal interface {
	SaveSession(s *models.Session) error
	AppendMessage(m *models.Message) error
}

type nopJournal struct{}

func (nopJournal) SaveSession(*models.Session) error   { return nil }
func (nopJournal) AppendMessage(*models.Message) error { return nil }

// StoreOpts holds optional dependencies for a Store.
type StoreOpts struct {
	Journal Journal
	Now     func() time.Time
	NewID   func() string
}

// entry guards a single session. The store map lock is only held to look
// entries up, so work on different sessions proceeds in parallel.
type entry struct {
	mu sync.Mutex
	s  *models.Session
}

// Store is the in-memory owner of all sessions. Callers only ever receive
// clones; mutation goes through the methods below.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	journal Journal
	now     func() time.Time
	newID   func() string
}

// NewStore creates an empty Store.
func NewStore(opts StoreOpts) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		journal:  opts.Journal,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if s.journal == nil {
		s.journal = nopJournal{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Create starts a new session in bot status with no messages.
func (s *Store) Create(customerID, botContext string, metadata models.Metadata) (*models.Session, error) {
	now := s.now()
	sess := &models.Session{
		ID:         s.newID(),
		CustomerID: customerID,
		Status:     models.StatusBot,
		BotContext: botContext,
		Metadata:   metadata.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
		Messages:   []models.Message{},
	}
	if err := s.journal.SaveSession(sess); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &entry{s: sess}
	s.mu.Unlock()
	return sess.Clone(), nil
}

// Append adds a message to the end of a session's history. The message is
// journaled and visible to readers before Append returns.
func (s *Store) Append(sessionID, content string, sender models.Sender, metadata models.Metadata) (*models.Message, error) {
	if !sender.Valid() {
		return nil, fmt.Errorf("session: append: unknown sender %q", sender)
	}
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s.Status == models.StatusClosed {
		return nil, fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}

	now := s.now()
	msg := models.Message{
		ID:        s.newID(),
		SessionID: sessionID,
		Sequence:  len(e.s.Messages) + 1,
		Content:   content,
		Sender:    sender,
		Metadata:  metadata.Clone(),
		Timestamp: now,
	}
	if err := s.journal.AppendMessage(&msg); err != nil {
		return nil, fmt.Errorf("session: append to %s: %w", sessionID, err)
	}

	e.s.Messages = append(e.s.Messages, msg)
	e.s.UpdatedAt = now
	out := msg.Clone()
	return &out, nil
}

// SetStatus applies a lifecycle transition and returns the updated session.
func (s *Store) SetStatus(sessionID string, tr Transition) (*models.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := tr.check(e.s.Status); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}

	now := s.now()
	next := e.s.Clone()
	next.Status = tr.Status
	next.UpdatedAt = now
	next.AssignedAgent = ""
	switch tr.Status {
	case models.StatusWaiting:
		next.Priority = tr.Priority
		if next.Priority == "" {
			next.Priority = models.PriorityNormal
		}
		next.TransferReason = tr.Reason
		next.QueuedAt = &now
	case models.StatusAgent:
		next.AssignedAgent = tr.AssignedAgent
	case models.StatusClosed:
		next.ClosedAt = &now
	}

	if err := s.journal.SaveSession(next); err != nil {
		return nil, fmt.Errorf("session: set status of %s: %w", sessionID, err)
	}
	e.s = next
	return next.Clone(), nil
}

// Get returns a copy of the session.
func (s *Store) Get(sessionID string) (*models.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.Clone(), nil
}

// Restore installs a previously journaled session as-is. Used at startup.
func (s *Store) Restore(sess *models.Session) {
	c := sess.Clone()
	sort.SliceStable(c.Messages, func(i, j int) bool {
		return c.Messages[i].Sequence < c.Messages[j].Sequence
	})
	s.mu.Lock()
	s.sessions[c.ID] = &entry{s: c}
	s.mu.Unlock()
}

func (s *Store) entries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e)
	}
	return out
}

// Active returns summaries of every session that is not closed, oldest first.
func (s *Store) Active() []*models.Session {
	var out []*models.Session
	for _, e := range s.entries() {
		e.mu.Lock()
		if e.s.Status != models.StatusClosed {
			out = append(out, e.s.Summary())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts holds aggregate numbers over the store.
type Counts struct {
	Total         int
	Active        int
	MessagesSince int
	MessageCounts map[string]int
}

// Count returns totals, the number of non-closed sessions, and the number of
// messages appended at or after since.
func (s *Store) Count(since time.Time) Counts {
	c := Counts{MessageCounts: make(map[string]int)}
	for _, e := range s.entries() {
		e.mu.Lock()
		c.Total++
		if e.s.Status != models.StatusClosed {
			c.Active++
		}
		c.MessageCounts[e.s.ID] = len(e.s.Messages)
		for i := len(e.s.Messages) - 1; i >= 0; i-- {
			if e.s.Messages[i].Timestamp.Before(since) {
				break
			}
			c.MessagesSince++
		}
		e.mu.Unlock()
	}
	return c
}

// MessageCount returns the number of messages in a session, or 0 if unknown.
func (s *Store) MessageCount(sessionID string) int {
	e, err := s.lookup(sessionID)
	if err != nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.s.Messages)
}

// Prune drops closed sessions whose ClosedAt is before cutoff from memory.
// The journal keeps their transcripts.
func (s *Store) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.sessions {
		e.mu.Lock()
		drop := e.s.Status == models.StatusClosed && e.s.ClosedAt != nil && e.s.ClosedAt.Before(cutoff)
		e.mu.Unlock()
		if drop {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
