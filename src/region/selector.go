package region

import (
	"log"
	"sync"
)

// State is the selector's position in the Idle -> Selecting -> Confirming cycle.
type State int

const (
	StateIdle State = iota
	StateSelecting
	StateConfirming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelecting:
		return "selecting"
	case StateConfirming:
		return "confirming"
	default:
		return "unknown"
	}
}

// Surface is the visual side of a selection session: the full-viewport overlay,
// the live rectangle and the confirmation affordance.
type Surface interface {
	Install() error
	Remove()
	DrawSelection(r Region)
	HideSelection()
	ShowConfirm(r Region)
}

// Selector is the interactive region-selection state machine. At most one
// session is active at a time; all methods are safe for concurrent use.
type Selector struct {
	mu        sync.Mutex
	surface   Surface
	minSize   int
	state     State
	dragging  bool
	startX    int
	startY    int
	current   Region
	onCapture func(Region)
}

// NewSelector creates an idle selector. minSize <= 0 selects DefaultMinSize.
func NewSelector(surface Surface, minSize int) *Selector {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Selector{surface: surface, minSize: minSize}
}

// Start installs the overlay and begins a session. It returns false, and does
// nothing, when a session is already active.
func (s *Selector) Start(onCapture func(Region)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		log.Printf("Selector: start ignored, session already %s", s.state)
		return false
	}
	if err := s.surface.Install(); err != nil {
		log.Printf("Selector: failed to install overlay: %v", err)
		return false
	}
	s.state = StateSelecting
	s.dragging = false
	s.current = Region{}
	s.onCapture = onCapture
	log.Printf("Selector: session started (min size %dpx)", s.minSize)
	return true
}

// Stop tears the session down without invoking the callback.
func (s *Selector) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Cancel is the escape path: accepted in any non-idle state, never calls back.
func (s *Selector) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return
	}
	log.Printf("Selector: cancelled while %s", s.state)
	s.teardownLocked()
}

// State returns the current state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the rectangle being drawn or awaiting confirmation.
func (s *Selector) Current() Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// PointerDown begins a drag at (x, y). A pending confirmation is discarded.
func (s *Selector) PointerDown(x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return
	}
	s.state = StateSelecting
	s.dragging = true
	s.startX, s.startY = x, y
	s.current = Region{X: x, Y: y}
	s.surface.DrawSelection(s.current)
}

// PointerMove updates the live rectangle while dragging.
func (s *Selector) PointerMove(x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSelecting || !s.dragging {
		return
	}
	s.current = FromPoints(s.startX, s.startY, x, y)
	s.surface.DrawSelection(s.current)
}

// PointerUp ends the drag. Rectangles under the minimum size are discarded and
// the selector keeps waiting for a new drag.
func (s *Selector) PointerUp(x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSelecting || !s.dragging {
		return
	}
	s.dragging = false
	s.current = FromPoints(s.startX, s.startY, x, y)
	if !s.current.Meets(s.minSize) {
		log.Printf("Selector: discarded %dx%d selection (min %dpx)", s.current.Width, s.current.Height, s.minSize)
		s.current = Region{}
		s.surface.HideSelection()
		return
	}
	s.state = StateConfirming
	s.surface.ShowConfirm(s.current)
}

// Confirm emits the pending region and returns the selector to idle. It reports
// whether a region was emitted.
func (s *Selector) Confirm() bool {
	s.mu.Lock()
	if s.state != StateConfirming {
		s.mu.Unlock()
		return false
	}
	r := s.current
	cb := s.onCapture
	s.teardownLocked()
	s.mu.Unlock()

	log.Printf("Selector: region confirmed: %s", r)
	if cb != nil {
		cb(r)
	}
	return true
}

func (s *Selector) teardownLocked() {
	if s.state == StateIdle {
		return
	}
	s.surface.Remove()
	s.state = StateIdle
	s.dragging = false
	s.current = Region{}
	s.onCapture = nil
}
