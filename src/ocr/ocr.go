package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"context-capture/src/screenshot"
)

const (
	// MsgRecognitionFailed is the only failure text callers ever see.
	MsgRecognitionFailed = "Text recognition failed, please try again"
	// MsgNoText accompanies a successful result with no recognized text.
	MsgNoText = "No text found in image"

	DefaultTimeout = 30 * time.Second
)

var (
	ErrMissingKey  = errors.New("OCR API key not configured")
	ErrUnavailable = errors.New("OCR provider unavailable in this build")
)

// Result is the provider-neutral OCR outcome. Success=false implies Text=="".
type Result struct {
	Text       string `json:"text"`
	Confidence int    `json:"confidence"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Provider extracts text from an encoded image.
type Provider interface {
	Name() string
	ExtractText(ctx context.Context, img screenshot.ImagePayload) (Result, error)
}

// Options carries everything a provider needs at construction time.
type Options struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

type Factory func(Options) Provider

var registry = map[string]Factory{
	"ocrspace":     func(o Options) Provider { return newOCRSpace(o) },
	"googlevision": func(o Options) Provider { return newGoogleVision(o) },
	"tesseract":    func(o Options) Provider { return newTesseract(o) },
}

// Providers lists registered provider ids in sorted order.
func Providers() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New builds a fresh provider for id.
func New(id string, opts Options) (Provider, error) {
	f, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("unknown OCR provider %q", id)
	}
	return f(opts), nil
}
