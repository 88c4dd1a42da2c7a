// Package capture provides the still-image sources the proctoring loop
// samples from.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrNotReady means the source has no usable frame right now. The capture
// loop skips the tick silently.
var ErrNotReady = errors.New("capture source not ready")

// Source produces still-image snapshots on demand.
type Source interface {
	Snapshot(ctx context.Context) (model.Frame, error)
}

// FrameBuffer holds the latest frame pushed by the UI's camera. Frames older
// than maxAge are treated as missing: the camera stopped feeding us.
type FrameBuffer struct {
	mu       sync.RWMutex
	frame    model.Frame
	at       time.Time
	maxAge   time.Duration
	maxBytes int64
	now      func() time.Time
}

// NewFrameBuffer creates an empty FrameBuffer. maxAge <= 0 never expires frames.
func NewFrameBuffer(maxAge time.Duration, maxBytes int64) *FrameBuffer {
	return &FrameBuffer{maxAge: maxAge, maxBytes: maxBytes, now: time.Now}
}

// Put validates and stores the latest camera frame.
func (b *FrameBuffer) Put(data []byte) error {
	frame, err := NewFrame(data, b.maxBytes)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.frame = frame
	b.at = b.now()
	b.mu.Unlock()
	return nil
}

// PutDataURL decodes a browser screenshot and stores it.
func (b *FrameBuffer) PutDataURL(s string) error {
	data, err := DecodeDataURL(s)
	if err != nil {
		return err
	}
	return b.Put(data)
}

// Snapshot returns the latest frame.
func (b *FrameBuffer) Snapshot(_ context.Context) (model.Frame, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.frame.Data) == 0 {
		return model.Frame{}, ErrNotReady
	}
	if b.maxAge > 0 && b.now().Sub(b.at) > b.maxAge {
		return model.Frame{}, ErrNotReady
	}
	return b.frame, nil
}

// Reset drops the stored frame.
func (b *FrameBuffer) Reset() {
	b.mu.Lock()
	b.frame = model.Frame{}
	b.at = time.Time{}
	b.mu.Unlock()
}

// DirSource cycles through the images of a directory. Kiosks point it at a
// folder an external camera daemon keeps writing to.
type DirSource struct {
	dir      string
	maxBytes int64
	mu       sync.Mutex
	next     int
}

// NewDirSource checks that dir exists.
func NewDirSource(dir string, maxBytes int64) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("capture dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("capture dir %s is not a directory", dir)
	}
	return &DirSource{dir: dir, maxBytes: maxBytes}, nil
}

// Snapshot reads the next image in name order, wrapping around.
func (s *DirSource) Snapshot(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}

	files, err := ListImages(s.dir)
	if err != nil {
		return model.Frame{}, err
	}
	if len(files) == 0 {
		return model.Frame{}, ErrNotReady
	}

	s.mu.Lock()
	name := files[s.next%len(files)]
	s.next++
	s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return model.Frame{}, fmt.Errorf("read %s: %w", name, err)
	}
	return NewFrame(data, s.maxBytes)
}

// ListImages returns the names of the image files in dir, sorted.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list capture dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !allowedExtension(filepath.Ext(e.Name())) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}
