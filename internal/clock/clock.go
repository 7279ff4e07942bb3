// Package clock abstracts wall-clock time so that timeline arithmetic can be
// driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time capability the timeline engine and media surfaces use.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f once after d has elapsed. f never runs on the caller's
	// stack.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Real is the production clock backed by package time.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a clock that only moves when Advance is called. Timers due within
// an Advance window fire synchronously, in deadline order, on the goroutine
// calling Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{clock: m, when: m.now.Add(d), seq: m.seq, fn: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer whose deadline is
// reached. Timers scheduled by fired callbacks also fire if they fall inside
// the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.popDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		if next.when.After(m.now) {
			m.now = next.when
		}
		m.mu.Unlock()

		next.fn()
	}
}

// Flush fires timers that are already due without moving the clock.
func (m *Manual) Flush() {
	m.Advance(0)
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manual) popDue(target time.Time) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].when.Equal(m.timers[j].when) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].when.Before(m.timers[j].when)
	})
	first := m.timers[0]
	if first.when.After(target) {
		return nil
	}
	m.timers = m.timers[1:]
	return first
}

func (m *Manual) remove(t *manualTimer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, candidate := range m.timers {
		if candidate == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}

type manualTimer struct {
	clock *Manual
	when  time.Time
	seq   uint64
	fn    func()
}

func (t *manualTimer) Stop() bool {
	return t.clock.remove(t)
}

// Seconds converts a float number of seconds into a time.Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
