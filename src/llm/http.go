package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// errorBody matches the {"error":{"message":...}} envelope all three APIs use.
type errorBody struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (b errorBody) message() string {
	if b.Error == nil {
		return ""
	}
	return b.Error.Message
}

// postJSON sends payload and decodes a 2xx reply into out. Non-2xx replies
// become *APIError with the message pulled from the body when present.
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s API request failed: %w", provider, stripURL(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return &APIError{Provider: provider, Status: resp.StatusCode, Message: eb.message()}
	}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Error != nil {
		return &APIError{Provider: provider, Message: eb.message()}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return nil
}

// stripURL drops the request URL (Gemini carries the key in it) from transport errors.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
