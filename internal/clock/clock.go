// Package clock abstracts delayed callbacks so timing-driven components can
// be tested without sleeping.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending scheduled call
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d on its own goroutine
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wall struct{}

func (wall) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Wall schedules with time.AfterFunc
var Wall Scheduler = wall{}

// Manual is a Scheduler whose time only moves when Advance is called.
// Due callbacks run synchronously inside Advance, earliest first.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	m       *Manual
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now + max(d, 0), seq: m.seq, fn: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves time forward by d, firing every timer that comes due
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		sort.Slice(m.timers, func(i, j int) bool {
			if m.timers[i].at == m.timers[j].at {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at < m.timers[j].at
		})
		var next *manualTimer
		for len(m.timers) > 0 {
			t := m.timers[0]
			if t.stopped {
				m.timers = m.timers[1:]
				continue
			}
			if t.at <= target {
				next = t
				m.timers = m.timers[1:]
				t.stopped = true
				m.now = t.at
			}
			break
		}
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		next.fn()
	}
}

// Pending returns the number of timers that have not fired or been stopped
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
