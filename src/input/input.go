// Package input turns global hook events into region-selector actions.
package input

import (
	"image"

	gohook "github.com/robotn/gohook"
)

type Kind int

const (
	None Kind = iota
	Down
	Move
	Up
	Cancel
	Confirm
)

// Action is one selector input in screen coordinates.
type Action struct {
	Kind Kind
	X, Y int
}

const (
	leftButton = 1

	rawEscape = 27 // VK_ESCAPE
	rawEnter  = 13 // VK_RETURN
	// uiohook virtual key codes
	vcEscape = 0x0001
	vcEnter  = 0x001C
)

// Translate maps one hook event to an action. gohook names a mouse press
// MouseHold and a release MouseDown. Keys arrive as both KeyHold and KeyDown
// on some platforms; Confirm and Cancel are idempotent.
func Translate(ev gohook.Event) (Action, bool) {
	switch ev.Kind {
	case gohook.MouseHold:
		if ev.Button == leftButton {
			return Action{Kind: Down, X: int(ev.X), Y: int(ev.Y)}, true
		}
	case gohook.MouseDrag:
		return Action{Kind: Move, X: int(ev.X), Y: int(ev.Y)}, true
	case gohook.MouseDown:
		if ev.Button == leftButton {
			return Action{Kind: Up, X: int(ev.X), Y: int(ev.Y)}, true
		}
	case gohook.KeyHold, gohook.KeyDown:
		switch {
		case ev.Rawcode == rawEscape || ev.Keycode == vcEscape:
			return Action{Kind: Cancel}, true
		case ev.Rawcode == rawEnter || ev.Keycode == vcEnter:
			return Action{Kind: Confirm}, true
		}
	}
	return Action{}, false
}

// Pointer is the selector side of the translation.
type Pointer interface {
	PointerDown(x, y int)
	PointerMove(x, y int)
	PointerUp(x, y int)
	Confirm() bool
}

// Dispatcher forwards translated events to the active selection.
type Dispatcher struct {
	Pointer Pointer
	// OnCancel handles Escape; the selector alone cannot report cancellation.
	OnCancel func()
	// Active reports whether a selection is in progress. Events are ignored otherwise.
	Active func() bool
	// Origin is the top-left of the captured viewport in desktop coordinates.
	// Pointer positions are shifted by it so they index the viewport raster.
	Origin image.Point
}

// Handle is a gohook tap.
func (d Dispatcher) Handle(ev gohook.Event) {
	if d.Active != nil && !d.Active() {
		return
	}
	a, ok := Translate(ev)
	if !ok {
		return
	}
	d.Apply(a)
}

func (d Dispatcher) Apply(a Action) {
	x, y := a.X-d.Origin.X, a.Y-d.Origin.Y
	switch a.Kind {
	case Down:
		d.Pointer.PointerDown(x, y)
	case Move:
		d.Pointer.PointerMove(x, y)
	case Up:
		d.Pointer.PointerUp(x, y)
	case Confirm:
		d.Pointer.Confirm()
	case Cancel:
		if d.OnCancel != nil {
			d.OnCancel()
		}
	}
}
