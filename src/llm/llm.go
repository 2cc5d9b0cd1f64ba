package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

const (
	// MsgSummaryFailed is the only failure text callers ever see.
	MsgSummaryFailed = "Summary generation failed, check network and API key"

	summaryPrompt = "Summarize the following text in exactly 3 lines, focusing on key points:\n\n"
	maxOutput     = 150
	temperature   = 0.3

	DefaultTimeout = 30 * time.Second
)

var (
	ErrMissingKey  = errors.New("LLM API key not configured")
	ErrEmptyResult = errors.New("no response from provider")
)

// SummaryResult is the provider-neutral summary outcome.
type SummaryResult struct {
	Summary string `json:"summary"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// APIError is a non-2xx reply or an error object embedded in a 2xx reply.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	if e.Status == 0 {
		return fmt.Sprintf("%s API error: %s", e.Provider, msg)
	}
	return fmt.Sprintf("%s API request failed: %d - %s", e.Provider, e.Status, msg)
}

// Provider turns text into a short summary.
type Provider interface {
	Name() string
	Summarize(ctx context.Context, text string) (string, error)
}

type Options struct {
	APIKey     string
	Model      string
	Endpoint   string
	HTTPClient *http.Client
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (o Options) model(def string) string {
	if o.Model != "" {
		return o.Model
	}
	return def
}

type Factory func(Options) Provider

var registry = map[string]Factory{
	"openai":    func(o Options) Provider { return newOpenAI(o) },
	"anthropic": func(o Options) Provider { return newAnthropic(o) },
	"gemini":    func(o Options) Provider { return newGemini(o) },
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

func New(id string, opts Options) (Provider, error) {
	f, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", id)
	}
	return f(opts), nil
}

// TruncateText keeps text within maxTokens, approximating one token as four
// characters. Longer text is cut to maxTokens*4-3 characters plus "...".
func TruncateText(text string, maxTokens int) string {
	maxChars := maxTokens * 4
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	if maxChars < 3 {
		return string(runes[:max(maxChars, 0)])
	}
	return string(runes[:maxChars-3]) + "..."
}

func prompt(text string, budget int) string {
	return summaryPrompt + TruncateText(text, budget)
}
