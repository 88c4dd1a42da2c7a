package session

import (
	"context"
	"sync"
	"time"
)

// Task runs fn on a fixed interval until stopped. A Task runs at most once:
// after Stop it cannot be restarted.
type Task struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
}

// NewTask creates a stopped Task.
func NewTask(name string, interval time.Duration, fn func(ctx context.Context)) *Task {
	return &Task{name: name, interval: interval, fn: fn}
}

// Start launches the loop under ctx. It reports false when the task was
// already started or stopped.
func (t *Task) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started || t.stopped || t.interval <= 0 {
		return false
	}
	t.started = true

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.run(ctx, t.done)
	return true
}

func (t *Task) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stop may race with a tick already in the channel.
			if ctx.Err() != nil {
				return
			}
			t.fn(ctx)
		}
	}
}

// Stop cancels the loop without waiting for it. Stopping twice, or from
// inside fn, is fine.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.cancel != nil {
		t.cancel()
	}
}

// Running reports whether the loop was started and not stopped.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.stopped
}

// Wait blocks until the loop goroutine has returned. Must not be called
// from inside fn.
func (t *Task) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done != nil {
		<-done
	}
}
