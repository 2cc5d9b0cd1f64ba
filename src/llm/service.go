package llm

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"context-capture/src/logutil"
)

// Config selects the active provider. Models and Endpoints are optional per-provider overrides.
type Config struct {
	Provider   string
	APIKeys    map[string]string
	Models     map[string]string
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

// Configure replaces the active provider with a freshly built one.
func (s *Service) Configure(cfg Config) error {
	p, err := New(cfg.Provider, Options{
		APIKey:     cfg.APIKeys[cfg.Provider],
		Model:      cfg.Models[cfg.Provider],
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
	log.Printf("LLM: provider set to %s (key %s)", cfg.Provider, logutil.RedactKey(cfg.APIKeys[cfg.Provider]))
	return nil
}

func (s *Service) ProviderName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// GenerateSummary never returns an error: every internal failure becomes
// MsgSummaryFailed. A successful summary is returned trimmed and unvalidated.
func (s *Service) GenerateSummary(ctx context.Context, text string) SummaryResult {
	s.mu.RLock()
	p := s.provider
	name := s.name
	s.mu.RUnlock()

	if p == nil {
		log.Printf("LLM: no provider configured (%q)", name)
		return SummaryResult{Error: MsgSummaryFailed}
	}

	log.Printf("LLM: summarizing %d chars with %s", len(text), name)
	summary, err := p.Summarize(ctx, text)
	if err != nil {
		log.Printf("LLM: %s summarization failed: %v", name, err)
		return SummaryResult{Error: MsgSummaryFailed}
	}
	return SummaryResult{Summary: strings.TrimSpace(summary), Success: true}
}

const selfTestText = "This is a test text for LLM summarization. It contains multiple sentences to test the summarization capabilities. The summary should be generated in exactly 3 lines."

// SelfTest summarizes a fixed sample and checks it fits in three lines.
func (s *Service) SelfTest(ctx context.Context) bool {
	res := s.GenerateSummary(ctx, selfTestText)
	ok := res.Success && len(strings.Split(res.Summary, "\n")) <= 3
	log.Printf("LLM: self-test with %s: success=%v", s.ProviderName(), ok)
	return ok
}
