package screenshot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"log"

	"github.com/kbinani/screenshot"

	"context-capture/src/region"
)

// CaptureError reports a failed privileged capture or an undecodable raster.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Grabber produces a full-viewport raster from the privileged side.
type Grabber interface {
	CaptureViewport(ctx context.Context) (ImagePayload, error)
}

// DisplayGrabber captures the union of all active displays.
type DisplayGrabber struct{}

func (DisplayGrabber) CaptureViewport(ctx context.Context) (ImagePayload, error) {
	if err := ctx.Err(); err != nil {
		return ImagePayload{}, err
	}
	img, err := Capture()
	if err != nil {
		return ImagePayload{}, &CaptureError{Op: "viewport", Err: err}
	}
	data, err := encodePNG(img)
	if err != nil {
		return ImagePayload{}, &CaptureError{Op: "encode", Err: err}
	}
	return ImagePayload{MIMEType: MIMEPNG, Data: data}, nil
}

// Capture captures the entire virtual screen across all active displays
func Capture() (*image.RGBA, error) {
	bounds, err := VirtualBounds()
	if err != nil {
		return nil, err
	}
	return screenshot.CaptureRect(bounds)
}

// VirtualBounds returns the union of all active display bounds.
func VirtualBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}

// ViewportOrigin is the top-left of the virtual screen in absolute desktop
// coordinates. It is negative when a monitor sits left of or above the primary.
func ViewportOrigin() image.Point {
	b, err := VirtualBounds()
	if err != nil {
		return image.Point{}
	}
	return b.Min
}

// CaptureVisibleTab crops r out of a full-viewport raster. Region coordinates
// are relative to the top-left of the full image. The result is a PNG of
// exactly r.Width x r.Height; pixels outside the source stay transparent. A
// region that starts outside the raster or is larger than it is rejected.
func CaptureVisibleTab(full ImagePayload, r region.Region) (ImagePayload, error) {
	if err := r.Validate(1); err != nil {
		return ImagePayload{}, &CaptureError{Op: "crop", Err: err}
	}
	src, format, err := image.Decode(bytes.NewReader(full.Data))
	if err != nil {
		return ImagePayload{}, &CaptureError{Op: "decode", Err: err}
	}

	sb := src.Bounds()
	if r.X >= sb.Dx() || r.Y >= sb.Dy() || r.Width > sb.Dx() || r.Height > sb.Dy() {
		return ImagePayload{}, &CaptureError{Op: "crop", Err: fmt.Errorf("region %s outside %dx%d viewport", r, sb.Dx(), sb.Dy())}
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(dst, dst.Bounds(), src, image.Pt(sb.Min.X+r.X, sb.Min.Y+r.Y), draw.Src)

	data, err := encodePNG(dst)
	if err != nil {
		return ImagePayload{}, &CaptureError{Op: "encode", Err: err}
	}
	log.Printf("Screenshot: cropped %s from %dx%d %s", r, sb.Dx(), sb.Dy(), format)
	return ImagePayload{MIMEType: MIMEPNG, Data: data}, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}
