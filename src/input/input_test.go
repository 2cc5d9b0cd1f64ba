package input

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	gohook "github.com/robotn/gohook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-capture/src/region"
	"context-capture/src/screenshot"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		ev   gohook.Event
		want Action
		ok   bool
	}{
		{"left press", gohook.Event{Kind: gohook.MouseHold, Button: 1, X: 10, Y: 20}, Action{Kind: Down, X: 10, Y: 20}, true},
		{"right press ignored", gohook.Event{Kind: gohook.MouseHold, Button: 2}, Action{}, false},
		{"drag", gohook.Event{Kind: gohook.MouseDrag, X: 30, Y: 40}, Action{Kind: Move, X: 30, Y: 40}, true},
		{"release", gohook.Event{Kind: gohook.MouseDown, Button: 1, X: 50, Y: 60}, Action{Kind: Up, X: 50, Y: 60}, true},
		{"escape rawcode", gohook.Event{Kind: gohook.KeyHold, Rawcode: 27}, Action{Kind: Cancel}, true},
		{"escape keycode", gohook.Event{Kind: gohook.KeyHold, Keycode: 1}, Action{Kind: Cancel}, true},
		{"enter", gohook.Event{Kind: gohook.KeyHold, Rawcode: 13}, Action{Kind: Confirm}, true},
		{"other key", gohook.Event{Kind: gohook.KeyHold, Rawcode: 65, Keycode: 30}, Action{}, false},
		{"move", gohook.Event{Kind: gohook.MouseMove}, Action{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Translate(tt.ev)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

type recordingPointer struct {
	calls []string
}

func (p *recordingPointer) PointerDown(x, y int) { p.calls = append(p.calls, "down") }
func (p *recordingPointer) PointerMove(x, y int) { p.calls = append(p.calls, "move") }
func (p *recordingPointer) PointerUp(x, y int)   { p.calls = append(p.calls, "up") }
func (p *recordingPointer) Confirm() bool {
	p.calls = append(p.calls, "confirm")
	return true
}

func TestDispatcher(t *testing.T) {
	p := &recordingPointer{}
	cancelled := 0
	active := true
	d := Dispatcher{Pointer: p, OnCancel: func() { cancelled++ }, Active: func() bool { return active }}

	d.Handle(gohook.Event{Kind: gohook.MouseHold, Button: 1})
	d.Handle(gohook.Event{Kind: gohook.MouseDrag})
	d.Handle(gohook.Event{Kind: gohook.MouseDown, Button: 1})
	d.Handle(gohook.Event{Kind: gohook.KeyHold, Rawcode: 13})
	d.Handle(gohook.Event{Kind: gohook.KeyHold, Rawcode: 27})
	assert.Equal(t, []string{"down", "move", "up", "confirm"}, p.calls)
	assert.Equal(t, 1, cancelled)

	active = false
	d.Handle(gohook.Event{Kind: gohook.MouseHold, Button: 1})
	assert.Len(t, p.calls, 4)
}

type nopSurface struct{}

func (nopSurface) Install() error              { return nil }
func (nopSurface) Remove()                     {}
func (nopSurface) DrawSelection(region.Region) {}
func (nopSurface) HideSelection()              {}
func (nopSurface) ShowConfirm(region.Region)   {}

// A monitor left of and above the primary gives the virtual screen a negative
// origin; hook coordinates must be shifted before they index the raster.
func TestDispatcherNegativeOriginCropsUnderPointer(t *testing.T) {
	origin := image.Pt(-200, -100)
	raster := image.NewRGBA(image.Rect(0, 0, 400, 300))
	red := color.RGBA{R: 255, A: 255}
	raster.SetRGBA(50, 50, red)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, raster))
	full := screenshot.ImagePayload{MIMEType: screenshot.MIMEPNG, Data: buf.Bytes()}

	sel := region.NewSelector(nopSurface{}, 10)
	var got region.Region
	require.True(t, sel.Start(func(r region.Region) { got = r }))
	d := Dispatcher{Pointer: sel, Origin: origin}

	// Desktop (-180,-80) is raster (20,20).
	d.Handle(gohook.Event{Kind: gohook.MouseHold, Button: 1, X: -180, Y: -80})
	d.Handle(gohook.Event{Kind: gohook.MouseDrag, X: -80, Y: 0})
	d.Handle(gohook.Event{Kind: gohook.MouseDown, Button: 1, X: -80, Y: 0})
	d.Handle(gohook.Event{Kind: gohook.KeyHold, Rawcode: 13})

	assert.Equal(t, region.Region{X: 20, Y: 20, Width: 100, Height: 100}, got)

	out, err := screenshot.CaptureVisibleTab(full, got)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	r, g, b, a := img.At(30, 30).RGBA()
	assert.Equal(t, []uint32{255, 0, 0, 255}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
}
