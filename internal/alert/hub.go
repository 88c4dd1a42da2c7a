// Package alert presents proctoring alerts and navigation requests to the
// UI. Every publication is a distinct event with its own sequence number,
// and the visible alert clears itself after the display duration.
package alert

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// EventType names a presenter event.
type EventType string

const (
	EventAlert        EventType = "alert"
	EventAlertCleared EventType = "alert_cleared"
	EventNavigate     EventType = "navigate"
)

// Event is delivered to subscribers of a session.
type Event struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"session_id"`
	Alert     *model.Alert `json:"alert,omitempty"`
	Route     *model.Route `json:"route,omitempty"`
	// Seq of the alert that was cleared.
	ClearedSeq uint64 `json:"cleared_seq,omitempty"`
}

const subscriberBuffer = 16

// Subscription receives a session's events until it is cancelled or the
// session is forgotten.
type Subscription struct {
	C <-chan Event

	ch        chan Event
	hub       *Hub
	sessionID string
	once      sync.Once
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.hub.unsubscribe(s)
}

type sessionState struct {
	last  *model.Alert
	route *model.Route
	timer *time.Timer
	subs  map[*Subscription]struct{}
}

// Hub fans presenter events out to per-session subscribers.
type Hub struct {
	mu       sync.Mutex
	seq      uint64
	display  time.Duration
	sessions map[string]*sessionState
	now      func() time.Time
	log      zerolog.Logger
}

// NewHub creates a Hub. display <= 0 keeps alerts until replaced.
func NewHub(display time.Duration, log zerolog.Logger) *Hub {
	return &Hub{
		display:  display,
		sessions: make(map[string]*sessionState),
		now:      time.Now,
		log:      log.With().Str("component", "alert_hub").Logger(),
	}
}

// Open registers a session. Events for sessions that were never opened,
// or were forgotten, are dropped.
func (h *Hub) Open(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[sessionID]; !ok {
		h.sessions[sessionID] = &sessionState{subs: make(map[*Subscription]struct{})}
	}
}

// Publish shows a as the session's current alert and returns it with its
// sequence number assigned. An identical alert published twice yields two
// events.
func (h *Hub) Publish(sessionID string, a model.Alert) model.Alert {
	h.mu.Lock()
	h.seq++
	a.Seq = h.seq
	a.SessionID = sessionID
	if a.IssuedAt.IsZero() {
		a.IssuedAt = h.now()
	}

	st, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		h.log.Debug().Str("session_id", sessionID).Msg("Alert for unknown session dropped")
		return a
	}
	shown := a
	st.last = &shown
	if st.timer != nil {
		st.timer.Stop()
	}
	if h.display > 0 {
		seq := a.Seq
		st.timer = time.AfterFunc(h.display, func() { h.expire(sessionID, seq) })
	}
	h.broadcast(st, Event{Type: EventAlert, SessionID: sessionID, Alert: &shown})
	h.mu.Unlock()

	metrics.RecordAlert(string(a.Severity))
	h.log.Debug().
		Str("session_id", sessionID).
		Uint64("seq", a.Seq).
		Str("severity", string(a.Severity)).
		Msg(a.Message)
	return a
}

// expire clears the visible alert if it is still the one that armed the timer.
func (h *Hub) expire(sessionID string, seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.sessions[sessionID]
	if !ok || st.last == nil || st.last.Seq != seq {
		return
	}
	st.last = nil
	st.timer = nil
	h.broadcast(st, Event{Type: EventAlertCleared, SessionID: sessionID, ClearedSeq: seq})
}

// Current returns the alert on screen, if any.
func (h *Hub) Current(sessionID string) *model.Alert {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.sessions[sessionID]
	if !ok || st.last == nil {
		return nil
	}
	a := *st.last
	return &a
}

// Navigate asks the UI to leave the exam screen. The latest route is kept
// for subscribers that connect afterwards.
func (h *Hub) Navigate(sessionID string, route model.Route) {
	h.mu.Lock()
	st, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	r := route
	st.route = &r
	h.broadcast(st, Event{Type: EventNavigate, SessionID: sessionID, Route: &r})
	h.mu.Unlock()

	h.log.Info().Str("session_id", sessionID).Str("view", string(route.View)).Msg("Navigation requested")
}

// Route returns the last navigation requested for the session.
func (h *Hub) Route(sessionID string) *model.Route {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.sessions[sessionID]
	if !ok || st.route == nil {
		return nil
	}
	r := *st.route
	return &r
}

// Subscribe attaches to a session's events. A pending alert or route is
// replayed first so late subscribers see the current screen. The
// subscription of an unknown session is already closed.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, hub: h, sessionID: sessionID}

	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.sessions[sessionID]
	if !ok {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	st.subs[sub] = struct{}{}
	if st.last != nil {
		a := *st.last
		ch <- Event{Type: EventAlert, SessionID: sessionID, Alert: &a}
	}
	if st.route != nil {
		r := *st.route
		ch <- Event{Type: EventNavigate, SessionID: sessionID, Route: &r}
	}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if st, ok := h.sessions[sub.sessionID]; ok {
		delete(st.subs, sub)
	}
	sub.once.Do(func() { close(sub.ch) })
}

// Len returns the number of open sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Forget drops all state for a session and closes its subscriptions.
func (h *Hub) Forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	for sub := range st.subs {
		sub.once.Do(func() { close(sub.ch) })
	}
	delete(h.sessions, sessionID)
}

// broadcast never blocks: a subscriber whose buffer is full misses the event.
// Callers hold h.mu.
func (h *Hub) broadcast(st *sessionState, ev Event) {
	for sub := range st.subs {
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn().Str("session_id", ev.SessionID).Str("type", string(ev.Type)).Msg("Subscriber too slow, event dropped")
		}
	}
}
