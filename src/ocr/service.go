package ocr

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"context-capture/src/logutil"
	"context-capture/src/screenshot"
)

// Config selects the active provider and supplies credentials keyed by provider id.
type Config struct {
	Provider   string
	APIKeys    map[string]string
	Endpoints  map[string]string
	HTTPClient *http.Client
}

// Service dispatches to the active provider and normalizes every outcome.
type Service struct {
	mu       sync.RWMutex
	provider Provider
	name     string
}

func NewService() *Service {
	return &Service{}
}

// Configure replaces the active provider with a freshly built one. An unknown
// id leaves the service without a provider; later calls fail normalized.
func (s *Service) Configure(cfg Config) error {
	p, err := New(cfg.Provider, Options{
		APIKey:     cfg.APIKeys[cfg.Provider],
		Endpoint:   cfg.Endpoints[cfg.Provider],
		HTTPClient: cfg.HTTPClient,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
	s.name = cfg.Provider
	if err != nil {
		return err
	}
	log.Printf("OCR: provider set to %s (key %s)", cfg.Provider, logutil.RedactKey(cfg.APIKeys[cfg.Provider]))
	return nil
}

// ProviderName returns the configured provider id.
func (s *Service) ProviderName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// ExtractText never returns an error: internal failures collapse into
// MsgRecognitionFailed and empty recognition into a successful MsgNoText result.
func (s *Service) ExtractText(ctx context.Context, img screenshot.ImagePayload) Result {
	s.mu.RLock()
	p := s.provider
	name := s.name
	s.mu.RUnlock()

	if p == nil {
		log.Printf("OCR: no provider configured (%q)", name)
		return failed()
	}

	res, err := p.ExtractText(ctx, img)
	if err != nil {
		log.Printf("OCR: %s extraction failed: %v", name, err)
		return failed()
	}
	res.Text = strings.TrimSpace(res.Text)
	if res.Text == "" {
		return Result{Success: true, Error: MsgNoText}
	}
	res.Success = true
	res.Error = ""
	res.Confidence = clamp(res.Confidence)
	log.Printf("OCR: %s recognized %d chars (confidence %d)", name, len(res.Text), res.Confidence)
	return res
}

func failed() Result {
	return Result{Success: false, Error: MsgRecognitionFailed}
}

// httpStatusError is shared by the remote providers for non-2xx replies.
type httpStatusError struct {
	Provider string
	Status   int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s request failed: %d", e.Provider, e.Status)
}
