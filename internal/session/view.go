package session

import (
	"fmt"
	"time"

	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/review"
	"github.com/stemsi/exstem-academy/internal/scoring"
)

// MarkerState is the answered state of a question in the navigator.
type MarkerState string

const (
	MarkerAnswered   MarkerState = "answered"
	MarkerUnanswered MarkerState = "unanswered"
)

// Marker is one cell of the question navigator.
type Marker struct {
	Index   int         `json:"index"`
	State   MarkerState `json:"state"`
	Current bool        `json:"current"`
}

// QuestionView is the question currently on screen.
type QuestionView struct {
	Index    int      `json:"index"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
	Selected *string  `json:"selected,omitempty"`
}

// ViewState is the snapshot handed to the presentation layer.
type ViewState struct {
	TestID           string              `json:"test_id,omitempty"`
	Title            string              `json:"title,omitempty"`
	Status           model.AttemptStatus `json:"status"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Clock            string              `json:"clock"`
	CurrentIndex     int                 `json:"current_index"`
	Total            int                 `json:"total"`
	AnsweredCount    int                 `json:"answered_count"`
	Current          *QuestionView       `json:"current,omitempty"`
	Markers          []Marker            `json:"markers"`
	Result           *scoring.Summary    `json:"result,omitempty"`
	AutoSubmitted    bool                `json:"auto_submitted,omitempty"`
	PersistPending   bool                `json:"persist_pending,omitempty"`
	Review           *review.Review      `json:"review,omitempty"`
	Closed           bool                `json:"closed,omitempty"`
}

// FormatClock renders seconds as mm:ss. Minutes are not wrapped at 60.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// State returns the current view-state snapshot.
func (c *Controller) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Watch subscribes to view-state changes. The channel holds at most one
// pending state; a slow reader only ever sees the latest one. The channel
// is closed by the returned stop func or when the session closes.
func (c *Controller) Watch() (<-chan ViewState, func()) {
	ch := make(chan ViewState, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	stop := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(w)
		}
	}
	return ch, stop
}

// publishLocked pushes the current snapshot to every watcher without
// blocking. Sends happen under the controller lock so watchers observe
// states in order.
func (c *Controller) publishLocked() {
	if len(c.watchers) == 0 {
		return
	}
	state := c.snapshotLocked()
	for _, ch := range c.watchers {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

func (c *Controller) snapshotLocked() ViewState {
	a := &c.attempt
	vs := ViewState{
		Status:           a.Status,
		RemainingSeconds: a.RemainingSeconds,
		Clock:            FormatClock(a.RemainingSeconds),
		CurrentIndex:     a.CurrentIndex,
		AnsweredCount:    len(a.Answers),
		Markers:          []Marker{},
		Closed:           c.closed,
	}
	if c.test == nil {
		return vs
	}

	started := a.StartedAt
	vs.TestID = c.test.ID.String()
	vs.Title = c.test.Title
	vs.StartedAt = &started
	vs.Total = len(c.test.Questions)

	vs.Markers = make([]Marker, len(c.test.Questions))
	for i := range c.test.Questions {
		m := Marker{Index: i, State: MarkerUnanswered, Current: i == a.CurrentIndex}
		if _, ok := a.Answers[i]; ok {
			m.State = MarkerAnswered
		}
		vs.Markers[i] = m
	}

	q := c.test.Questions[a.CurrentIndex]
	qv := &QuestionView{Index: a.CurrentIndex, Prompt: q.Prompt, Options: q.Options}
	if sel, ok := a.Answers[a.CurrentIndex]; ok {
		qv.Selected = &sel
	}
	vs.Current = qv

	if c.result != nil {
		sum, err := scoring.Summarize(c.result.Score, c.result.Total)
		if err == nil {
			vs.Result = &sum
		}
		vs.AutoSubmitted = c.result.AutoSubmitted
		vs.PersistPending = c.persistErr != nil
	}

	if a.Status == model.AttemptStatusReviewing && c.result != nil {
		r := review.FromResult(c.test, c.result)
		vs.Review = &r
	}
	return vs
}
