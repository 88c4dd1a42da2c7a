package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Sentinel errors for captured frames.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrEmptyFrame          = errors.New("empty frame")
	ErrMalformedDataURL    = errors.New("malformed data URL")
)

// Allowed image MIME types.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// DetectType sniffs the frame's MIME type and rejects non-images.
func DetectType(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFrame
	}
	contentType := http.DetectContentType(data)
	if _, ok := allowedMIMETypes[contentType]; !ok {
		return "", fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}
	return contentType, nil
}

// NewFrame validates data and wraps it as a frame. maxBytes <= 0 disables the
// size check.
func NewFrame(data []byte, maxBytes int64) (model.Frame, error) {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return model.Frame{}, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), maxBytes)
	}
	mime, err := DetectType(data)
	if err != nil {
		return model.Frame{}, err
	}
	return model.Frame{Data: data, MIME: mime}, nil
}

// EncodeDataURL renders a frame the way browsers produce screenshots:
// "data:image/jpeg;base64,...".
func EncodeDataURL(f model.Frame) string {
	mime := f.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// DecodeDataURL accepts a data URL or a bare base64 payload.
func DecodeDataURL(s string) ([]byte, error) {
	payload := strings.TrimSpace(s)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return nil, ErrMalformedDataURL
		}
		payload = payload[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataURL, err)
	}
	return data, nil
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func allowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	if ext == ".jpeg" {
		return true
	}
	for _, e := range allowedMIMETypes {
		if e == ext {
			return true
		}
	}
	return false
}
