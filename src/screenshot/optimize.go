package screenshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log"

	"github.com/nfnt/resize"
)

const (
	MaxOCRDimension = 1024
	ocrJPEGQuality  = 80
)

// OptimizeForOCR bounds the payload size: the longer side is scaled down to
// MaxOCRDimension when needed and the result is re-encoded as JPEG. Any failure
// returns img unchanged.
func OptimizeForOCR(img ImagePayload) ImagePayload {
	out, err := optimize(img)
	if err != nil {
		log.Printf("Screenshot: optimize skipped, passing original through: %v", err)
		return img
	}
	return out
}

func optimize(img ImagePayload) (ImagePayload, error) {
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return ImagePayload{}, fmt.Errorf("decode: %w", err)
	}
	w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), MaxOCRDimension)
	if w != src.Bounds().Dx() || h != src.Bounds().Dy() {
		src = resize.Resize(uint(w), uint(h), src, resize.Lanczos3)
	}

	// JPEG has no alpha channel; flatten onto white so transparent padding
	// does not turn black.
	flat := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(flat, flat.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), src, src.Bounds().Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: ocrJPEGQuality}); err != nil {
		return ImagePayload{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return ImagePayload{MIMEType: MIMEJPEG, Data: buf.Bytes()}, nil
}

// fitWithin scales (w,h) uniformly so the longer side equals max, only when
// either side exceeds it.
func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	ratio := min(float64(max)/float64(w), float64(max)/float64(h))
	nw := int(float64(w)*ratio + 0.5)
	nh := int(float64(h)*ratio + 0.5)
	return maxInt(nw, 1), maxInt(nh, 1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
