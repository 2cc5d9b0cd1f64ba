//go:build !tesseract

package ocr

import (
	"context"

	"context-capture/src/screenshot"
)

// tesseract is a placeholder when the binary is built without libtesseract.
type tesseract struct{}

func newTesseract(Options) Provider { return &tesseract{} }

func (p *tesseract) Name() string { return "tesseract" }

func (p *tesseract) ExtractText(context.Context, screenshot.ImagePayload) (Result, error) {
	return Result{}, ErrUnavailable
}
