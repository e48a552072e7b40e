package router

import "sync"

// mailboxes runs submitted work sequentially per key, with one goroutine
// per busy key. Idle keys hold no goroutine.
type mailboxes struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
}

func newMailboxes() *mailboxes {
	return &mailboxes{queues: make(map[string][]func())}
}

func (m *mailboxes) submit(key string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, running := m.queues[key]
	m.queues[key] = append(q, fn)
	if !running {
		m.wg.Add(1)
		go m.drain(key)
	}
}

func (m *mailboxes) drain(key string) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		q := m.queues[key]
		if len(q) == 0 {
			delete(m.queues, key)
			m.mu.Unlock()
			return
		}
		fn := q[0]
		m.queues[key] = q[1:]
		m.mu.Unlock()
		fn()
	}
}

// wait blocks until every submitted job has run.
func (m *mailboxes) wait() {
	m.wg.Wait()
}
