package websocket

import "github.com/stemsi/exstem-academy/internal/session"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect      Action = "select"
	ActionClear       Action = "clear"
	ActionNavigate    Action = "navigate"
	ActionNext        Action = "next"
	ActionPrevious    Action = "previous"
	ActionSubmit      Action = "submit"
	ActionReviewEnter Action = "review_enter"
	ActionReviewExit  Action = "review_exit"
	ActionPing        Action = "ping"
)

// RequestPayload is every client message. Index is required by select,
// clear and navigate; Option only by select.
type RequestPayload struct {
	Action Action `json:"action"`
	Index  *int   `json:"index,omitempty"`
	Option string `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventSubmitted Event = "submitted"
	EventClosed    Event = "closed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse carries a view-state snapshot. One is pushed after every
// change, including each countdown tick.
type StateResponse struct {
	Event Event             `json:"event"`
	State session.ViewState `json:"state"`
}

// SubmittedResponse answers a submit action. Submitted is false when the
// attempt had already been submitted.
type SubmittedResponse struct {
	Event          Event `json:"event"`
	Submitted      bool  `json:"submitted"`
	PersistPending bool  `json:"persist_pending,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

type ClosedResponse struct {
	Event Event `json:"event"`
}
