// Package overlay shows the region selection on top of a frozen screenshot of
// the virtual screen. Windows gets a topmost popup window; other platforms
// keep the fallback surface.
package overlay

import (
	"image"

	"context-capture/src/region"
)

const (
	hintSelecting  = "Drag to select a region   ESC cancel"
	hintConfirming = "ENTER capture   ESC cancel   drag again to redo"

	// Pen colours are COLORREF (0x00BBGGRR).
	penSelecting  = 0x0000FF
	penConfirming = 0x00FF00
	hintColour    = 0x00FFFF
)

func hintText(confirming bool) string {
	if confirming {
		return hintConfirming
	}
	return hintSelecting
}

func penColour(confirming bool) uint32 {
	if confirming {
		return penConfirming
	}
	return penSelecting
}

// toBGRA converts img to top-down 32-bit BGRA rows, the layout of a DIB
// section with a negative height.
func toBGRA(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		row := img.PixOffset(b.Min.X, b.Min.Y+y)
		src := img.Pix[row : row+w*4]
		dst := out[y*w*4 : (y+1)*w*4]
		for x := 0; x < w*4; x += 4 {
			dst[x] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x]
			dst[x+3] = src[x+3]
		}
	}
	return out
}

func rectCoords(r region.Region) (left, top, right, bottom int32) {
	return int32(r.X), int32(r.Y), int32(r.X + r.Width), int32(r.Y + r.Height)
}
