package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a virtual-time scheduler. Callbacks only run from Advance or
// RunAll, on the caller's goroutine, in deadline order.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*manualTimer
}

type manualTimer struct {
	m        *Manual
	deadline time.Duration
	seq      uint64
	fn       func()
	stopped  bool
	fired    bool
}

// NewManual creates a virtual clock starting at zero.
func NewManual() *Manual {
	return &Manual{}
}

// AfterFunc schedules fn to run once virtual time reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{m: m, deadline: m.now + d, seq: m.seq, fn: fn}
	m.pending = append(m.pending, t)
	return t
}

// Now returns the elapsed virtual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of scheduled callbacks that have not run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Advance moves virtual time forward by d, running every callback whose
// deadline falls inside the window, including ones scheduled along the way.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	if m.now < target {
		m.now = target
	}
	m.mu.Unlock()
}

// RunAll runs callbacks until none are pending and returns the number run.
// Chains that never stop scheduling are cut off after limit callbacks.
func (m *Manual) RunAll(limit int) int {
	ran := 0
	for ran < limit {
		t := m.popDue(-1)
		if t == nil {
			break
		}
		t.fn()
		ran++
	}
	return ran
}

// popDue removes and returns the earliest timer due by target, advancing the
// clock to its deadline. A negative target means no bound.
func (m *Manual) popDue(target time.Duration) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil
	}
	sort.SliceStable(m.pending, func(i, j int) bool {
		if m.pending[i].deadline == m.pending[j].deadline {
			return m.pending[i].seq < m.pending[j].seq
		}
		return m.pending[i].deadline < m.pending[j].deadline
	})
	t := m.pending[0]
	if target >= 0 && t.deadline > target {
		return nil
	}
	m.pending = m.pending[1:]
	if t.deadline > m.now {
		m.now = t.deadline
	}
	t.fired = true
	return t
}

func (t *manualTimer) Stop() bool {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	return true
}
