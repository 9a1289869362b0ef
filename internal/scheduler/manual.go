package scheduler

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by explicit Tick calls. It records how many
// handles were scheduled and cancelled so tests can detect timer leaks.
type Manual struct {
	mu        sync.Mutex
	handles   []*manualHandle
	scheduled int
	cancelled int
}

type manualHandle struct {
	interval  time.Duration
	fn        func()
	cancelled bool
}

// NewManual creates a Manual scheduler.
func NewManual() *Manual {
	return &Manual{}
}

// ScheduleTick registers fn; it fires only when Tick is called.
func (m *Manual) ScheduleTick(interval time.Duration, fn func()) CancelFunc {
	h := &manualHandle{interval: interval, fn: fn}

	m.mu.Lock()
	m.handles = append(m.handles, h)
	m.scheduled++
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !h.cancelled {
			h.cancelled = true
			m.cancelled++
		}
	}
}

// Tick fires every live handle n times. A handle cancelled during a tick
// does not fire again, not even later within the same call.
func (m *Manual) Tick(n int) {
	for i := 0; i < n; i++ {
		m.mu.Lock()
		live := make([]*manualHandle, 0, len(m.handles))
		for _, h := range m.handles {
			if !h.cancelled {
				live = append(live, h)
			}
		}
		m.mu.Unlock()

		for _, h := range live {
			m.mu.Lock()
			fire := !h.cancelled
			m.mu.Unlock()
			if fire {
				h.fn()
			}
		}
	}
}

// Active returns the number of handles that have not been cancelled.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduled - m.cancelled
}

// Scheduled returns how many handles were ever scheduled.
func (m *Manual) Scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduled
}

// Cancelled returns how many handles were cancelled.
func (m *Manual) Cancelled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}
