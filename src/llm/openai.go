package llm

import (
	"context"
	"strings"
)

const (
	openAIURL          = "https://api.openai.com/v1/chat/completions"
	openAIDefaultModel = "gpt-3.5-turbo"
	openAIMaxTokens    = 4096 * 3
)

type openAI struct {
	apiKey   string
	model    string
	endpoint string
	opts     Options
}

func newOpenAI(o Options) *openAI {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = openAIURL
	}
	return &openAI{apiKey: o.APIKey, model: o.model(openAIDefaultModel), endpoint: endpoint, opts: o}
}

func (p *openAI) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *openAI) Summarize(ctx context.Context, text string) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingKey
	}

	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a helpful assistant that summarizes text in exactly 3 lines, focusing on key points."},
			{Role: "user", Content: prompt(text, openAIMaxTokens)},
		},
		MaxTokens:   maxOutput,
		Temperature: temperature,
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := postJSON(ctx, p.opts.client(), "OpenAI", p.endpoint, headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResult
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
