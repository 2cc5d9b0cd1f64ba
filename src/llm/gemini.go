package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const (
	geminiURLFormat    = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"
	geminiDefaultModel = "gemini-pro"
	geminiMaxTokens    = 8192 * 3
)

type gemini struct {
	apiKey   string
	endpoint string
	opts     Options
}

func newGemini(o Options) *gemini {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(geminiURLFormat, o.model(geminiDefaultModel))
	}
	return &gemini{apiKey: o.APIKey, endpoint: endpoint, opts: o}
}

func (p *gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *gemini) Summarize(ctx context.Context, text string) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingKey
	}

	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt(text, geminiMaxTokens)}}}},
	}
	req.GenerationConfig.MaxOutputTokens = maxOutput
	req.GenerationConfig.Temperature = temperature

	var resp geminiResponse
	endpoint := p.endpoint + "?key=" + url.QueryEscape(p.apiKey)
	if err := postJSON(ctx, p.opts.client(), "Gemini", endpoint, nil, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResult
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", nil
	}
	return strings.TrimSpace(parts[0].Text), nil
}
