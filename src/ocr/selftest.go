package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"context-capture/src/screenshot"
)

const selfTestText = "Test OCR"

// TestImage renders label in black on a 200x50 white PNG.
func TestImage(label string) (screenshot.ImagePayload, error) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 50))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 30),
	}
	d.DrawString(label)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return screenshot.ImagePayload{}, fmt.Errorf("failed to encode test image: %w", err)
	}
	return screenshot.ImagePayload{MIMEType: screenshot.MIMEPNG, Data: buf.Bytes()}, nil
}

// SelfTest runs a rendered sample through the active provider and reports
// whether "test" came back.
func (s *Service) SelfTest(ctx context.Context) bool {
	img, err := TestImage(selfTestText)
	if err != nil {
		log.Printf("OCR: self-test failed: %v", err)
		return false
	}
	res := s.ExtractText(ctx, img)
	ok := res.Success && strings.Contains(strings.ToLower(res.Text), "test")
	log.Printf("OCR: self-test with %s: success=%v", s.ProviderName(), ok)
	return ok
}
