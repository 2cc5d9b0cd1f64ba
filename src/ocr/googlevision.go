package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"context-capture/src/screenshot"
)

const (
	googleVisionURL = "https://vision.googleapis.com/v1/images:annotate"
	// fallbackConfidence is reported when no word-level confidence exists.
	fallbackConfidence = 85
)

type googleVision struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func newGoogleVision(o Options) *googleVision {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = googleVisionURL
	}
	return &googleVision{apiKey: o.APIKey, endpoint: endpoint, client: o.client()}
}

func (p *googleVision) Name() string { return "googlevision" }

type visionRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type visionResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text  string `json:"text"`
			Pages []struct {
				Blocks []struct {
					Paragraphs []struct {
						Words []visionWord `json:"words"`
					} `json:"paragraphs"`
				} `json:"blocks"`
			} `json:"pages"`
		} `json:"fullTextAnnotation"`
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

type visionWord struct {
	Confidence *float64 `json:"confidence"`
	Symbols    []struct {
		Confidence *float64 `json:"confidence"`
	} `json:"symbols"`
}

func (p *googleVision) ExtractText(ctx context.Context, img screenshot.ImagePayload) (Result, error) {
	if p.apiKey == "" {
		return Result{}, ErrMissingKey
	}

	payload, err := json.Marshal(visionRequest{Requests: []visionImageRequest{{
		Image:    visionImage{Content: img.Base64()},
		Features: []visionFeature{{Type: "TEXT_DETECTION", MaxResults: 1}},
	}}})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"?key="+url.QueryEscape(p.apiKey), bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("Google Vision request failed: %w", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &httpStatusError{Provider: "Google Vision", Status: resp.StatusCode}
	}

	var data visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Result{}, fmt.Errorf("failed to decode Google Vision response: %w", err)
	}
	if len(data.Responses) == 0 {
		return Result{}, nil
	}
	first := data.Responses[0]
	if first.Error != nil {
		return Result{}, fmt.Errorf("Google Vision error %d: %s", first.Error.Code, first.Error.Message)
	}

	if fta := first.FullTextAnnotation; fta != nil && fta.Text != "" {
		var words, symbols []float64
		for _, page := range fta.Pages {
			for _, block := range page.Blocks {
				for _, para := range block.Paragraphs {
					for _, w := range para.Words {
						if w.Confidence != nil {
							words = append(words, *w.Confidence)
						}
						for _, s := range w.Symbols {
							if s.Confidence != nil {
								symbols = append(symbols, *s.Confidence)
							}
						}
					}
				}
			}
		}
		return Result{Text: fta.Text, Confidence: scaledMean(words, symbols)}, nil
	}

	if len(first.TextAnnotations) > 0 {
		return Result{Text: first.TextAnnotations[0].Description, Confidence: fallbackConfidence}, nil
	}
	return Result{}, nil
}

// scaledMean converts 0..1 scores to a rounded 0..100 mean, preferring word
// scores over symbol scores.
func scaledMean(words, symbols []float64) int {
	scores := words
	if len(scores) == 0 {
		scores = symbols
	}
	if len(scores) == 0 {
		return fallbackConfidence
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return clamp(int(math.Round(sum / float64(len(scores)) * 100)))
}

// stripURL drops the request URL (which carries the key) from transport errors.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
