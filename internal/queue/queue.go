// Package queue holds the ordered backlog of sessions waiting for a human
// agent. Entries are ordered by priority tier, then by enqueue time, so a
// steady stream of high-priority entries can starve lower tiers.
package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

var (
	// ErrAlreadyQueued is returned when a session already has an entry.
	ErrAlreadyQueued = errors.New("session already queued")
	// ErrEmpty is returned by Peek on an empty queue.
	ErrEmpty = errors.New("queue is empty")
)

// Less reports whether a is served before b.
func Less(a, b models.QueueEntry) bool {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	return a.EnqueuedAt.Before(b.EnqueuedAt)
}

// Queue is safe for concurrent use. It never owns sessions; entries are
// weak references by id.
type Queue struct {
	mu      sync.Mutex
	entries []models.QueueEntry
	ids     map[string]struct{}
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{ids: make(map[string]struct{})}
}

// Insert places e at its ordered position. Entries that compare equal keep
// insertion order.
func (q *Queue) Insert(e models.QueueEntry) error {
	if e.SessionID == "" {
		return fmt.Errorf("queue: session id is required")
	}
	if e.Priority == "" {
		e.Priority = models.PriorityNormal
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.ids[e.SessionID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyQueued, e.SessionID)
	}
	i := sort.Search(len(q.entries), func(i int) bool {
		return Less(e, q.entries[i])
	})
	q.entries = append(q.entries, models.QueueEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
	q.ids[e.SessionID] = struct{}{}
	return nil
}

// Peek returns the head of the queue without removing it. Removal only
// happens through assignment or close.
func (q *Queue) Peek() (models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return models.QueueEntry{}, ErrEmpty
	}
	return q.entries[0], nil
}

// Remove deletes the entry for sessionID and reports whether one existed.
func (q *Queue) Remove(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.ids[sessionID]; !ok {
		return false
	}
	for i := range q.entries {
		if q.entries[i].SessionID == sessionID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.ids, sessionID)
	return true
}

// Contains reports whether sessionID has an entry.
func (q *Queue) Contains(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.ids[sessionID]
	return ok
}

// Get returns the entry for sessionID.
func (q *Queue) Get(sessionID string) (models.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.SessionID == sessionID {
			return e, true
		}
	}
	return models.QueueEntry{}, false
}

// Position returns the 1-based serving position of sessionID, or 0 if it is
// not queued.
func (q *Queue) Position(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.SessionID == sessionID {
			return i + 1
		}
	}
	return 0
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns the entries in serving order.
func (q *Queue) Snapshot() []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.QueueEntry(nil), q.entries...)
}

// Breakdown counts entries per priority tier.
func (q *Queue) Breakdown() models.QueueBreakdown {
	q.mu.Lock()
	defer q.mu.Unlock()
	var b models.QueueBreakdown
	for _, e := range q.entries {
		switch e.Priority {
		case models.PriorityHigh:
			b.High++
		case models.PriorityLow:
			b.Low++
		default:
			b.Normal++
		}
	}
	return b
}

// AvgWait returns the mean time the current entries have waited as of now.
func (q *Queue) AvgWait(now time.Time) time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return 0
	}
	var total time.Duration
	for _, e := range q.entries {
		total += now.Sub(e.EnqueuedAt)
	}
	return total / time.Duration(len(q.entries))
}
