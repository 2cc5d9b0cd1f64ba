package results

import (
	"errors"
	"log"
	"sync"
	"time"

	"context-capture/src/clipboard"
	"context-capture/src/region"
)

const (
	DefaultResultsTTL = 30 * time.Second
	DefaultErrorTTL   = 10 * time.Second

	// anchorGap is the vertical distance between the region and the overlay.
	anchorGap = 10
)

var (
	ErrNoResults = errors.New("no results overlay visible")
	ErrNoError   = errors.New("no error overlay visible")
)

type Kind int

const (
	KindLoading Kind = iota + 1
	KindResults
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindResults:
		return "results"
	case KindError:
		return "error"
	}
	return "none"
}

// Overlay is one rendered panel. Text is the summary or the error message.
type Overlay struct {
	ID   uint64
	Kind Kind
	X    int
	Y    int
	Text string
}

// Renderer draws and removes overlays. Styling is entirely up to the renderer.
type Renderer interface {
	Show(o Overlay)
	Remove(id uint64)
}

type Options struct {
	ResultsTTL time.Duration
	ErrorTTL   time.Duration
	// OnRetry re-runs region selection after the user retries from an error.
	OnRetry func()
}

// UI keeps at most one overlay visible. Auto-dismiss timers are bound to the
// overlay id so a stale timer never removes a newer overlay.
type UI struct {
	mu       sync.Mutex
	renderer Renderer
	copier   clipboard.Copier
	opts     Options
	current  *Overlay
	timer    *time.Timer
	nextID   uint64
}

func New(r Renderer, c clipboard.Copier, opts Options) *UI {
	if opts.ResultsTTL <= 0 {
		opts.ResultsTTL = DefaultResultsTTL
	}
	if opts.ErrorTTL <= 0 {
		opts.ErrorTTL = DefaultErrorTTL
	}
	return &UI{renderer: r, copier: c, opts: opts}
}

// Anchor returns the overlay position below r.
func Anchor(r region.Region) (x, y int) {
	return r.X, r.Y + r.Height + anchorGap
}

// SetRetry replaces the retry callback.
func (u *UI) SetRetry(f func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.opts.OnRetry = f
}

func (u *UI) ShowLoading(r region.Region) {
	u.show(KindLoading, "Processing...", r, 0)
}

func (u *UI) ShowResults(summary string, r region.Region) {
	u.show(KindResults, summary, r, u.opts.ResultsTTL)
}

func (u *UI) ShowError(msg string, r region.Region) {
	u.show(KindError, msg, r, u.opts.ErrorTTL)
}

func (u *UI) show(kind Kind, text string, r region.Region, ttl time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.hideLocked()
	u.nextID++
	x, y := Anchor(r)
	o := Overlay{ID: u.nextID, Kind: kind, X: x, Y: y, Text: text}
	u.current = &o
	u.renderer.Show(o)

	if ttl > 0 {
		id := o.ID
		u.timer = time.AfterFunc(ttl, func() { u.dismiss(id) })
	}
}

func (u *UI) dismiss(id uint64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current == nil || u.current.ID != id {
		return
	}
	log.Printf("Results: %s overlay %d expired", u.current.Kind, id)
	u.hideLocked()
}

// Hide removes whatever overlay is visible.
func (u *UI) Hide() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.hideLocked()
}

func (u *UI) hideLocked() {
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
	if u.current != nil {
		u.renderer.Remove(u.current.ID)
		u.current = nil
	}
}

// Current returns the visible overlay, if any.
func (u *UI) Current() (Overlay, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current == nil {
		return Overlay{}, false
	}
	return *u.current, true
}

// Retry hides the error overlay and re-triggers region selection.
func (u *UI) Retry() error {
	u.mu.Lock()
	if u.current == nil || u.current.Kind != KindError {
		u.mu.Unlock()
		return ErrNoError
	}
	u.hideLocked()
	retry := u.opts.OnRetry
	u.mu.Unlock()

	if retry != nil {
		retry()
	}
	return nil
}

// Copy writes the visible summary to the clipboard.
func (u *UI) Copy() error {
	u.mu.Lock()
	if u.current == nil || u.current.Kind != KindResults {
		u.mu.Unlock()
		return ErrNoResults
	}
	text := u.current.Text
	u.mu.Unlock()

	if err := u.copier.Copy(text); err != nil {
		log.Printf("Results: copy failed: %v", err)
		return err
	}
	log.Printf("Results: copied %d chars to clipboard", len(text))
	return nil
}
