package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrExternalSource is returned when frames are pushed to a session whose
// capture source is not fed by the UI.
var ErrExternalSource = errors.New("session captures from an external source")

// FrameOptions configure the per-session frame buffers.
type FrameOptions struct {
	MaxAge   time.Duration
	MaxBytes int64
	// Shared, when set, replaces the per-session buffers (kiosk cameras).
	Shared capture.Source
}

// Alert sinks that keep per-session state implement these.
type (
	opener interface {
		Open(sessionID string)
	}
	forgetter interface {
		Forget(sessionID string)
	}
)

type entry struct {
	ctrl   *Controller
	frames *capture.FrameBuffer
}

// Manager holds the live controllers of the shell, keyed by session id.
// Finished sessions stay until closed so the UI can read their result.
type Manager struct {
	deps   Deps
	opts   Options
	frames FrameOptions
	log    zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager creates a Manager. deps.Source is ignored: each session gets
// its own frame buffer unless frames.Shared is set.
func NewManager(deps Deps, opts Options, frames FrameOptions, log zerolog.Logger) *Manager {
	return &Manager{
		deps:     deps,
		opts:     opts,
		frames:   frames,
		log:      log,
		sessions: make(map[string]*entry),
	}
}

// Start opens and initializes a session. A session that cannot start is
// discarded and the *RedirectError is returned.
func (m *Manager) Start(ctx context.Context, examID string, supplied *model.Exam) (*Controller, error) {
	deps := m.deps
	e := &entry{}
	if m.frames.Shared != nil {
		deps.Source = m.frames.Shared
	} else {
		e.frames = capture.NewFrameBuffer(m.frames.MaxAge, m.frames.MaxBytes)
		deps.Source = e.frames
	}

	ctrl := New(examID, deps, m.opts, m.log)
	e.ctrl = ctrl
	if o, ok := m.deps.Alerts.(opener); ok {
		o.Open(ctrl.ID())
	}

	if err := ctrl.Initialize(ctx, supplied); err != nil {
		ctrl.Close()
		m.forget(ctrl.ID())
		return ctrl, err
	}

	m.mu.Lock()
	m.sessions[ctrl.ID()] = e
	m.mu.Unlock()
	metrics.SessionOpened()
	return ctrl, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.ctrl, nil
}

// PutFrame stores the UI's latest camera frame for the session.
func (m *Manager) PutFrame(id, image string) error {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return ErrSessionNotFound
	}
	if e.frames == nil {
		return ErrExternalSource
	}
	return e.frames.PutDataURL(image)
}

// Close abandons and removes a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.ctrl.Close()
	m.forget(id)
	metrics.SessionClosed()
	return nil
}

// CloseAll closes every session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, e := range sessions {
		wg.Add(1)
		go func(id string, e *entry) {
			defer wg.Done()
			e.ctrl.Close()
			m.forget(id)
			metrics.SessionClosed()
		}(id, e)
	}
	wg.Wait()
}

// Len returns the number of sessions held.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) forget(id string) {
	if f, ok := m.deps.Alerts.(forgetter); ok {
		f.Forget(id)
	}
}
