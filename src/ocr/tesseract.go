//go:build tesseract

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"context-capture/src/screenshot"
)

type tesseract struct{}

func newTesseract(Options) Provider { return &tesseract{} }

func (p *tesseract) Name() string { return "tesseract" }

// ExtractText runs the local engine; no credential is needed.
func (p *tesseract) ExtractText(ctx context.Context, img screenshot.ImagePayload) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage("eng"); err != nil {
		return Result{}, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(img.Data); err != nil {
		return Result{}, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	var confs []float64
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil {
		for _, b := range boxes {
			confs = append(confs, b.Confidence)
		}
	}

	return Result{Text: text, Confidence: OverallConfidence([][]float64{confs})}, nil
}
