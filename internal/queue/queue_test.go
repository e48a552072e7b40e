package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func entry(id string, p models.Priority, offset int) models.QueueEntry {
	return models.QueueEntry{SessionID: id, Priority: p, EnqueuedAt: t0.Add(time.Duration(offset) * time.Second)}
}

func ids(entries []models.QueueEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.SessionID
	}
	return out
}

func drain(t *testing.T, q *Queue) []string {
	t.Helper()
	var order []string
	for {
		head, err := q.Peek()
		if errors.Is(err, ErrEmpty) {
			return order
		}
		if err != nil {
			t.Fatalf("Peek: %v", err)
		}
		order = append(order, head.SessionID)
		q.Remove(head.SessionID)
	}
}

func TestOrdering_PriorityThenFIFO(t *testing.T) {
	q := New()
	q.Insert(entry("s1", models.PriorityHigh, 0))
	q.Insert(entry("s2", models.PriorityNormal, 1))
	q.Insert(entry("s3", models.PriorityHigh, 2))

	got := fmt.Sprint(drain(t, q))
	if got != "[s1 s3 s2]" {
		t.Errorf("serving order = %s, want [s1 s3 s2]", got)
	}
}

func TestOrdering_AllTiers(t *testing.T) {
	q := New()
	q.Insert(entry("low-old", models.PriorityLow, 0))
	q.Insert(entry("normal-new", models.PriorityNormal, 5))
	q.Insert(entry("normal-old", models.PriorityNormal, 1))
	q.Insert(entry("high", models.PriorityHigh, 9))

	got := fmt.Sprint(ids(q.Snapshot()))
	want := "[high normal-old normal-new low-old]"
	if got != want {
		t.Errorf("Snapshot = %s, want %s", got, want)
	}
}

func TestInsert_EqualTimesKeepInsertionOrder(t *testing.T) {
	q := New()
	q.Insert(entry("a", models.PriorityNormal, 0))
	q.Insert(entry("b", models.PriorityNormal, 0))
	q.Insert(entry("c", models.PriorityNormal, 0))

	if got := fmt.Sprint(ids(q.Snapshot())); got != "[a b c]" {
		t.Errorf("Snapshot = %s, want [a b c]", got)
	}
}

func TestInsert_AlreadyQueued(t *testing.T) {
	q := New()
	if err := q.Insert(entry("s1", models.PriorityNormal, 0)); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	err := q.Insert(entry("s1", models.PriorityHigh, 1))
	if !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("error = %v, want ErrAlreadyQueued", err)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
}

func TestInsert_DefaultsToNormal(t *testing.T) {
	q := New()
	q.Insert(models.QueueEntry{SessionID: "s1", EnqueuedAt: t0})
	e, _ := q.Get("s1")
	if e.Priority != models.PriorityNormal {
		t.Errorf("Priority = %q, want %q", e.Priority, models.PriorityNormal)
	}
}

func TestInsert_RequiresSessionID(t *testing.T) {
	if err := New().Insert(models.QueueEntry{}); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestPeek_DoesNotRemove(t *testing.T) {
	q := New()
	q.Insert(entry("s1", models.PriorityNormal, 0))
	q.Peek()
	q.Peek()
	if q.Len() != 1 {
		t.Errorf("Len = %d after Peek, want 1", q.Len())
	}
}

func TestPeek_Empty(t *testing.T) {
	if _, err := New().Peek(); !errors.Is(err, ErrEmpty) {
		t.Errorf("error = %v, want ErrEmpty", err)
	}
}

func TestRemove(t *testing.T) {
	q := New()
	q.Insert(entry("s1", models.PriorityNormal, 0))
	q.Insert(entry("s2", models.PriorityNormal, 1))

	if !q.Remove("s1") {
		t.Error("Remove(s1) = false, want true")
	}
	if q.Remove("s1") {
		t.Error("second Remove(s1) = true, want false")
	}
	if q.Contains("s1") {
		t.Error("s1 still queued")
	}
	// A removed session can be queued again.
	if err := q.Insert(entry("s1", models.PriorityLow, 2)); err != nil {
		t.Errorf("re-Insert: %v", err)
	}
}

func TestPosition_MatchesSnapshot(t *testing.T) {
	q := New()
	q.Insert(entry("s1", models.PriorityLow, 0))
	q.Insert(entry("s2", models.PriorityHigh, 1))
	q.Insert(entry("s3", models.PriorityNormal, 2))

	for i, e := range q.Snapshot() {
		if pos := q.Position(e.SessionID); pos != i+1 {
			t.Errorf("Position(%s) = %d, want %d", e.SessionID, pos, i+1)
		}
	}
	if q.Position("missing") != 0 {
		t.Error("Position of unknown session should be 0")
	}
}

func TestBreakdownAndAvgWait(t *testing.T) {
	q := New()
	q.Insert(entry("s1", models.PriorityHigh, 0))
	q.Insert(entry("s2", models.PriorityNormal, 10))
	q.Insert(entry("s3", models.PriorityNormal, 20))

	b := q.Breakdown()
	if b.High != 1 || b.Normal != 2 || b.Low != 0 {
		t.Errorf("Breakdown = %+v", b)
	}
	// Waits at t0+30s are 30s, 20s, 10s.
	if got := q.AvgWait(t0.Add(30 * time.Second)); got != 20*time.Second {
		t.Errorf("AvgWait = %v, want 20s", got)
	}
	if New().AvgWait(t0) != 0 {
		t.Error("AvgWait of empty queue should be 0")
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	q := New()
	q.Insert(entry("s1", models.PriorityNormal, 0))
	snap := q.Snapshot()
	snap[0].SessionID = "tampered"
	if head, _ := q.Peek(); head.SessionID != "s1" {
		t.Errorf("queue mutated through snapshot: %s", head.SessionID)
	}
}

func TestInsert_ConcurrentUnique(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := q.Insert(entry("same", models.PriorityNormal, i)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if ok != 1 {
		t.Errorf("successful inserts = %d, want 1", ok)
	}
}
