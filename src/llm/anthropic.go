package llm

import (
	"context"
	"strings"
)

const (
	anthropicURL          = "https://api.anthropic.com/v1/messages"
	anthropicVersion      = "2023-06-01"
	anthropicDefaultModel = "claude-3-haiku-20240307"
	anthropicMaxTokens    = 4096 * 3
)

type anthropic struct {
	apiKey   string
	model    string
	endpoint string
	opts     Options
}

func newAnthropic(o Options) *anthropic {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = anthropicURL
	}
	return &anthropic{apiKey: o.APIKey, model: o.model(anthropicDefaultModel), endpoint: endpoint, opts: o}
}

func (p *anthropic) Name() string { return "anthropic" }

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *anthropic) Summarize(ctx context.Context, text string) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingKey
	}

	req := messagesRequest{
		Model:     p.model,
		MaxTokens: maxOutput,
		Messages:  []chatMessage{{Role: "user", Content: prompt(text, anthropicMaxTokens)}},
	}

	var resp messagesResponse
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	if err := postJSON(ctx, p.opts.client(), "Anthropic", p.endpoint, headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", ErrEmptyResult
	}
	return strings.TrimSpace(resp.Content[0].Text), nil
}
