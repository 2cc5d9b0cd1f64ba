//go:build !tesseract

package ocr

import (
	"context"
	"errors"
	"testing"
)

func TestTesseractUnavailableWithoutTag(t *testing.T) {
	p, err := New("tesseract", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.ExtractText(context.Background(), testImage); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	s := NewService()
	if err := s.Configure(Config{Provider: "tesseract"}); err != nil {
		t.Fatal(err)
	}
	if res := s.ExtractText(context.Background(), testImage); res.Error != MsgRecognitionFailed || res.Success {
		t.Fatalf("expected normalized failure, got %+v", res)
	}
}
