package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"context-capture/src/screenshot"
)

const ocrSpaceURL = "https://api.ocr.space/parse/image"

type ocrSpace struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func newOCRSpace(o Options) *ocrSpace {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = ocrSpaceURL
	}
	return &ocrSpace{apiKey: o.APIKey, endpoint: endpoint, client: o.client()}
}

func (p *ocrSpace) Name() string { return "ocrspace" }

type ocrSpaceResponse struct {
	ParsedResults         []ocrSpaceParsed `json:"ParsedResults"`
	IsErroredOnProcessing bool             `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage  `json:"ErrorMessage"`
}

type ocrSpaceParsed struct {
	ParsedText  string           `json:"ParsedText"`
	TextOverlay *ocrSpaceOverlay `json:"TextOverlay"`
}

type ocrSpaceOverlay struct {
	Lines []struct {
		Words []Word `json:"Words"`
	} `json:"Lines"`
}

func (p *ocrSpace) ExtractText(ctx context.Context, img screenshot.ImagePayload) (Result, error) {
	if p.apiKey == "" {
		return Result{}, ErrMissingKey
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := [][2]string{
		{"apikey", p.apiKey},
		{"base64Image", img.DataURL()},
		{"language", "eng"},
		{"isOverlayRequired", "false"},
		{"filetype", fileType(img.MIMEType)},
		{"detectOrientation", "true"},
		{"scale", "true"},
		{"OCREngine", "2"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return Result{}, fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("OCR.space request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &httpStatusError{Provider: "OCR.space", Status: resp.StatusCode}
	}

	var data ocrSpaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Result{}, fmt.Errorf("failed to decode OCR.space response: %w", err)
	}
	if data.IsErroredOnProcessing {
		msg := errorMessage(data.ErrorMessage)
		if msg == "" {
			msg = "OCR processing failed"
		}
		return Result{}, fmt.Errorf("OCR.space: %s", msg)
	}
	if len(data.ParsedResults) == 0 {
		return Result{}, nil
	}

	texts := make([]string, 0, len(data.ParsedResults))
	fragments := make([][]float64, 0, len(data.ParsedResults))
	for _, r := range data.ParsedResults {
		texts = append(texts, r.ParsedText)
		var confs []float64
		if r.TextOverlay != nil {
			for _, line := range r.TextOverlay.Lines {
				for _, word := range line.Words {
					confs = append(confs, word.Confidence)
				}
			}
		}
		fragments = append(fragments, confs)
	}

	return Result{
		Text:       strings.TrimSpace(strings.Join(texts, "\n")),
		Confidence: OverallConfidence(fragments),
	}, nil
}

// errorMessage accepts ErrorMessage as either a string or an array of strings.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func fileType(mime string) string {
	if mime == screenshot.MIMEJPEG {
		return "jpg"
	}
	return "png"
}
