package websocket

import "github.com/stemsi/exstem-proctor/internal/alert"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventAlert        Event = Event(alert.EventAlert)
	EventAlertCleared Event = Event(alert.EventAlertCleared)
	EventNavigate     Event = Event(alert.EventNavigate)
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// SessionEvent wraps a presenter event for the wire.
type SessionEvent struct {
	Event Event        `json:"event"`
	Data  *alert.Event `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// NewSessionEvent converts a hub event for the wire.
func NewSessionEvent(ev alert.Event) SessionEvent {
	return SessionEvent{Event: Event(ev.Type), Data: &ev}
}
