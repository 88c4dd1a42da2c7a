package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jpegBytes = []byte("\xFF\xD8\xFF\xE0\x00\x10JFIF\x00\x01fake-jpeg-body")
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRfake-png-body")
)

func TestFrameBufferNotReadyUntilPut(t *testing.T) {
	buf := NewFrameBuffer(0, 0)

	_, err := buf.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, buf.Put(jpegBytes))
	frame, err := buf.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", frame.MIME)
	assert.Equal(t, jpegBytes, frame.Data)

	buf.Reset()
	_, err = buf.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestFrameBufferStaleFrame(t *testing.T) {
	buf := NewFrameBuffer(10*time.Second, 0)
	clock := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	buf.now = func() time.Time { return clock }

	require.NoError(t, buf.Put(jpegBytes))

	clock = clock.Add(9 * time.Second)
	_, err := buf.Snapshot(context.Background())
	assert.NoError(t, err)

	clock = clock.Add(2 * time.Second)
	_, err = buf.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestFrameBufferRejectsBadFrames(t *testing.T) {
	buf := NewFrameBuffer(0, 16)

	assert.ErrorIs(t, buf.Put(nil), ErrEmptyFrame)
	assert.ErrorIs(t, buf.Put([]byte("plain text, not an image")), ErrFileTooLarge)

	small := NewFrameBuffer(0, 0)
	assert.ErrorIs(t, small.Put([]byte("plain text")), ErrUnsupportedFileType)
}

func TestDataURLRoundTrip(t *testing.T) {
	frame, err := NewFrame(pngBytes, 0)
	require.NoError(t, err)

	url := EncodeDataURL(frame)
	assert.Contains(t, url, "data:image/png;base64,")

	data, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	_, err = DecodeDataURL("data:image/png,rawbytes")
	assert.ErrorIs(t, err, ErrMalformedDataURL)

	_, err = DecodeDataURL("!!!")
	assert.ErrorIs(t, err, ErrMalformedDataURL)
}

func TestFrameBufferPutDataURL(t *testing.T) {
	buf := NewFrameBuffer(0, 0)
	require.NoError(t, buf.PutDataURL(EncodeDataURL(mustFrame(t, jpegBytes))))

	frame, err := buf.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, frame.Data)
}

func TestDirSourceCycles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), pngBytes, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), jpegBytes, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	src, err := NewDirSource(dir, 0)
	require.NoError(t, err)

	ctx := context.Background()
	var mimes []string
	for i := 0; i < 3; i++ {
		frame, err := src.Snapshot(ctx)
		require.NoError(t, err)
		mimes = append(mimes, frame.MIME)
	}
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/jpeg"}, mimes)
}

func TestDirSourceEmpty(t *testing.T) {
	src, err := NewDirSource(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = src.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = NewDirSource(filepath.Join(t.TempDir(), "missing"), 0)
	assert.Error(t, err)
}

func mustFrame(t *testing.T, data []byte) model.Frame {
	t.Helper()
	frame, err := NewFrame(data, 0)
	require.NoError(t, err)
	return frame
}
