// Package popup is the desktop rendering of the selection surface and the
// results overlays. Overlays are logged and handed to an optional notifier
// (the tray tooltip in the resident process).
package popup

import (
	"log"
	"sort"
	"sync"

	"context-capture/src/region"
	"context-capture/src/results"
)

const maxNotifyLen = 200

// Notifier surfaces a short message to the user.
type Notifier func(title, text string)

// Renderer implements results.Renderer.
type Renderer struct {
	Notify Notifier

	mu      sync.Mutex
	visible map[uint64]results.Overlay
}

func NewRenderer(notify Notifier) *Renderer {
	return &Renderer{Notify: notify, visible: map[uint64]results.Overlay{}}
}

func (r *Renderer) Show(o results.Overlay) {
	r.mu.Lock()
	if r.visible == nil {
		r.visible = map[uint64]results.Overlay{}
	}
	r.visible[o.ID] = o
	r.mu.Unlock()

	log.Printf("Popup: show %s #%d at (%d,%d): %q", o.Kind, o.ID, o.X, o.Y, truncateForLog(o.Text, 50))
	if r.Notify != nil {
		r.Notify(title(o.Kind), truncateForLog(o.Text, maxNotifyLen))
	}
}

func (r *Renderer) Remove(id uint64) {
	r.mu.Lock()
	_, ok := r.visible[id]
	delete(r.visible, id)
	r.mu.Unlock()
	if ok {
		log.Printf("Popup: removed #%d", id)
	}
}

// Visible returns the overlays currently shown, oldest first.
func (r *Renderer) Visible() []results.Overlay {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]results.Overlay, 0, len(r.visible))
	for _, o := range r.visible {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func title(k results.Kind) string {
	switch k {
	case results.KindLoading:
		return "Processing..."
	case results.KindError:
		return "Capture failed"
	default:
		return "Summary"
	}
}

func truncateForLog(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// Surface implements region.Surface for the global-hook input path: the
// pointer is tracked system-wide so there is no window to install.
type Surface struct {
	Notify Notifier

	mu        sync.Mutex
	installed bool
	selection region.Region
}

func (s *Surface) Install() error {
	s.mu.Lock()
	s.installed = true
	s.selection = region.Region{}
	s.mu.Unlock()
	log.Printf("Popup: selection surface installed")
	if s.Notify != nil {
		s.Notify("Select a region", "Drag to select, Enter to confirm, Esc to cancel")
	}
	return nil
}

func (s *Surface) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed = false
	s.selection = region.Region{}
}

func (s *Surface) DrawSelection(r region.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = r
}

func (s *Surface) HideSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = region.Region{}
}

func (s *Surface) ShowConfirm(r region.Region) {
	s.mu.Lock()
	s.selection = r
	s.mu.Unlock()
	log.Printf("Popup: confirm selection %s", r)
	if s.Notify != nil {
		s.Notify("Capture region?", r.String()+" - press Enter to capture")
	}
}

// Installed reports whether a selection session is active and its rectangle.
func (s *Surface) Installed() (bool, region.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed, s.selection
}
