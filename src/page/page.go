// Package page is the per-viewport context: it owns the region selector and the
// results overlays, crops captured viewports and relays confirmed regions to
// the background orchestrator.
package page

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"context-capture/src/clipboard"
	"context-capture/src/messages"
	"context-capture/src/region"
	"context-capture/src/results"
	"context-capture/src/router"
	"context-capture/src/screenshot"
	"context-capture/src/session"
)

const (
	MsgCropFailed  = "Failed to crop image"
	MsgUnknownType = "Unknown message type"
)

type Options struct {
	Router         *router.Router
	TabID          int
	Surface        region.Surface
	Renderer       results.Renderer
	Copier         clipboard.Copier
	MinSize        int
	OptimizeForOCR bool
	ResultsTTL     time.Duration
	ErrorTTL       time.Duration
}

type Agent struct {
	opts      Options
	contextID string
	selector  *region.Selector
	ui        *results.UI

	mu sync.Mutex
	// selecting is the attempt whose region is being chosen.
	selecting *session.Attempt
	// inflight holds confirmed attempts by capture id until their outcome arrives.
	inflight map[string]*session.Attempt
	// current is the capture whose overlays own the results UI.
	current string
}

func New(opts Options) *Agent {
	if opts.Copier == nil {
		opts.Copier = clipboard.Default()
	}
	a := &Agent{
		opts:      opts,
		contextID: messages.PageContext(opts.TabID),
		selector:  region.NewSelector(opts.Surface, opts.MinSize),
		inflight:  make(map[string]*session.Attempt),
	}
	a.ui = results.New(opts.Renderer, opts.Copier, results.Options{
		ResultsTTL: opts.ResultsTTL,
		ErrorTTL:   opts.ErrorTTL,
		OnRetry:    func() { a.Begin(nil) },
	})
	return a
}

func (a *Agent) ContextID() string { return a.contextID }

// Selector exposes the state machine to the input source.
func (a *Agent) Selector() *region.Selector { return a.selector }

// UI exposes the results overlays (copy / retry actions).
func (a *Agent) UI() *results.UI { return a.ui }

// Run registers the page context and answers requests until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	ch, err := a.opts.Router.Register(a.contextID, 8)
	if err != nil {
		return err
	}
	defer a.opts.Router.Unregister(a.contextID)
	log.Printf("Page %d: ready", a.opts.TabID)
	for {
		select {
		case <-ctx.Done():
			a.Cancel()
			return ctx.Err()
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			router.Respond(env, a.Handle(ctx, env))
		}
	}
}

// Handle answers one request addressed to this page. A panicking handler
// becomes a failed response.
func (a *Agent) Handle(ctx context.Context, env messages.Envelope) (resp messages.Response) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Page %d: handler for %T panicked: %v", a.opts.TabID, env.Message, p)
			resp = messages.Fail(fmt.Sprintf("internal error: %v", p))
		}
	}()

	switch m := env.Message.(type) {
	case messages.StartCapture:
		a.Begin(nil)
		return messages.OK(messages.Ack{Success: true})
	case messages.CropImage:
		return a.crop(m)
	case messages.ShowResults:
		a.showResults(m)
		return messages.OK(messages.Ack{Success: true})
	default:
		return messages.Fail(MsgUnknownType)
	}
}

// Begin starts region selection. target, when set, receives the outcome of
// this attempt. It reports false if a selection is already in progress; the
// target is then failed immediately. Captures already confirmed keep running
// and report to their own targets.
func (a *Agent) Begin(target session.Target) bool {
	attempt := session.NewAttempt(target)
	if a.selector.State() != region.StateIdle {
		attempt.Fail(errors.New("selection already in progress"))
		return false
	}

	a.mu.Lock()
	prev, prevCurrent := a.selecting, a.current
	a.selecting = attempt
	a.current = ""
	a.mu.Unlock()

	if !a.selector.Start(func(r region.Region) { a.onConfirm(attempt, r) }) {
		a.mu.Lock()
		if a.selecting == attempt {
			a.selecting, a.current = prev, prevCurrent
		}
		a.mu.Unlock()
		attempt.Fail(errors.New("selection already in progress"))
		return false
	}

	a.ui.Hide()
	log.Printf("Page %d: capture %s started", a.opts.TabID, attempt.ID)
	return true
}

// Cancel aborts an in-progress selection and reports the cancellation.
func (a *Agent) Cancel() {
	if a.selector.State() == region.StateIdle {
		return
	}
	a.selector.Cancel()

	a.mu.Lock()
	at := a.selecting
	a.selecting = nil
	a.mu.Unlock()
	at.Cancel()
}

// onConfirm runs on the selector's caller goroutine. The CAPTURE_REGION round
// trip goes to its own goroutine so this page keeps answering CROP_IMAGE and
// SHOW_RESULTS while the background works.
func (a *Agent) onConfirm(attempt *session.Attempt, r region.Region) {
	a.mu.Lock()
	if a.selecting == attempt {
		a.selecting = nil
	}
	a.inflight[attempt.ID] = attempt
	a.current = attempt.ID
	a.mu.Unlock()

	a.ui.ShowLoading(r)
	go func() {
		resp, err := a.opts.Router.Request(context.Background(), a.contextID, messages.ContextBackground,
			messages.CaptureRegion{Region: r, TabID: a.opts.TabID, CaptureID: attempt.ID})
		msg := ""
		switch {
		case err != nil:
			msg = err.Error()
		case resp.Failed():
			msg = resp.Err
		}

		at, isCurrent := a.take(attempt.ID)
		if msg == "" {
			// SHOW_RESULTS normally resolves the attempt first.
			at.Fail(errors.New("capture finished without results"))
			return
		}
		log.Printf("Page %d: capture %s failed: %s", a.opts.TabID, attempt.ID, msg)
		if isCurrent {
			a.ui.ShowError(msg, r)
		}
		at.Fail(errors.New(msg))
	}()
}

// showResults renders a summary when it belongs to the capture that owns the
// UI, and delivers it to the attempt that requested it.
func (a *Agent) showResults(m messages.ShowResults) {
	if m.CaptureID == "" {
		a.ui.ShowResults(m.Summary, m.Region)
		return
	}
	at, isCurrent := a.take(m.CaptureID)
	if isCurrent {
		a.ui.ShowResults(m.Summary, m.Region)
	} else {
		log.Printf("Page %d: results for capture %s arrived after a newer capture", a.opts.TabID, m.CaptureID)
	}
	at.Succeed(m.Summary)
}

// take removes the in-flight attempt id and reports whether it still owns the UI.
// The returned attempt is nil if it was already resolved.
func (a *Agent) take(id string) (*session.Attempt, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	at := a.inflight[id]
	delete(a.inflight, id)
	return at, a.current == id && a.selector.State() == region.StateIdle
}

func (a *Agent) crop(m messages.CropImage) messages.Response {
	img, err := screenshot.CaptureVisibleTab(m.ImageData, m.Region)
	if err != nil {
		log.Printf("Page %d: crop failed: %v", a.opts.TabID, err)
		return messages.Fail(MsgCropFailed)
	}
	if a.opts.OptimizeForOCR {
		img = screenshot.OptimizeForOCR(img)
	}
	return messages.OK(messages.CropResult{CroppedImage: img})
}
