// Package scheduler provides the repeating tick capability used by attempt
// sessions. Cancellation is explicit and owned by the caller.
package scheduler

import (
	"sync"
	"time"
)

// CancelFunc stops a scheduled tick. It is safe to call more than once and
// never blocks on an in-flight callback.
type CancelFunc func()

// Scheduler schedules fn to run every interval until the returned
// CancelFunc is called.
type Scheduler interface {
	ScheduleTick(interval time.Duration, fn func()) CancelFunc
}

// Ticker is the wall-clock Scheduler backed by time.Ticker.
type Ticker struct{}

// NewTicker creates a wall-clock Scheduler.
func NewTicker() *Ticker {
	return &Ticker{}
}

// ScheduleTick runs fn on its own goroutine once per interval.
func (Ticker) ScheduleTick(interval time.Duration, fn func()) CancelFunc {
	t := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				// A tick and a cancel can be ready together; cancel wins.
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}
