package page

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-capture/src/messages"
	"context-capture/src/region"
	"context-capture/src/results"
	"context-capture/src/router"
	"context-capture/src/screenshot"
	"context-capture/src/session"
)

type nopSurface struct{}

func (nopSurface) Install() error { return nil }
func (nopSurface) Remove() {}
func (nopSurface) DrawSelection(region.Region) {}
func (nopSurface) HideSelection() {}
func (nopSurface) ShowConfirm(region.Region) {}

type recordingRenderer struct {
	mu    sync.Mutex
	shown []results.Overlay
}

func (r *recordingRenderer) Show(o results.Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, o)
}

func (r *recordingRenderer) Remove(uint64) {}

func (r *recordingRenderer) last() (results.Overlay, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.shown) == 0 {
		return results.Overlay{}, false
	}
	return r.shown[len(r.shown)-1], true
}

type nopCopier struct{}

func (nopCopier) Copy(string) error { return nil }

type outcome struct {
	summary string
	err     error
}

type chanTarget chan outcome

func (c chanTarget) OnSuccess(s string) error {
	c <- outcome{summary: s}
	return nil
}

func (c chanTarget) OnFailure(err error) error {
	c <- outcome{err: err}
	return nil
}

func testPNG(t *testing.T, w, h int) screenshot.ImagePayload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return screenshot.ImagePayload{MIMEType: screenshot.MIMEPNG, Data: buf.Bytes()}
}

func newAgent(t *testing.T, rt *router.Router) (*Agent, *recordingRenderer) {
	t.Helper()
	rend := &recordingRenderer{}
	a := New(Options{
		Router:   rt,
		TabID:    1,
		Surface:  nopSurface{},
		Renderer: rend,
		Copier:   nopCopier{},
		MinSize:  10,
	})
	return a, rend
}

func selectRegion(a *Agent) {
	sel := a.Selector()
	sel.PointerDown(10, 10)
	sel.PointerMove(60, 50)
	sel.PointerUp(60, 50)
	sel.Confirm()
}

func TestCropImage(t *testing.T) {
	a, _ := newAgent(t, router.NewRouter())
	resp := a.Handle(context.Background(), messages.Envelope{Message: messages.CropImage{
		ImageData: testPNG(t, 200, 100),
		Region:    region.Region{X: 10, Y: 20, Width: 50, Height: 40},
	}})
	require.False(t, resp.Failed(), resp.Err)

	var crop messages.CropResult
	require.NoError(t, resp.Into(&crop))
	img, err := png.Decode(bytes.NewReader(crop.CroppedImage.Data))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())
}

func TestCropImageFailure(t *testing.T) {
	a, _ := newAgent(t, router.NewRouter())
	resp := a.Handle(context.Background(), messages.Envelope{Message: messages.CropImage{
		ImageData: screenshot.ImagePayload{MIMEType: screenshot.MIMEPNG, Data: []byte("garbage")},
		Region:    region.Region{Width: 10, Height: 10},
	}})
	assert.Equal(t, MsgCropFailed, resp.Err)
}

func TestUnknownMessage(t *testing.T) {
	a, _ := newAgent(t, router.NewRouter())
	resp := a.Handle(context.Background(), messages.Envelope{Message: messages.GetSettings{}})
	assert.Equal(t, MsgUnknownType, resp.Err)
}

func TestStartCaptureStartsSelector(t *testing.T) {
	a, _ := newAgent(t, router.NewRouter())
	resp := a.Handle(context.Background(), messages.Envelope{Message: messages.StartCapture{TabID: 1}})
	require.False(t, resp.Failed())
	assert.Equal(t, region.StateSelecting, a.Selector().State())

	// A second start while selecting leaves the session in place.
	assert.False(t, a.Begin(nil))
	assert.Equal(t, region.StateSelecting, a.Selector().State())
}

// fakeBackground answers CAPTURE_REGION by cropping through the page and
// then either showing results or failing with failMsg.
func fakeBackground(ctx context.Context, t *testing.T, rt *router.Router, failMsg string) {
	ch, err := rt.Register(messages.ContextBackground, 4)
	require.NoError(t, err)
	full := testPNG(t, 100, 100)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				req := env.Message.(messages.CaptureRegion)
				page := messages.PageContext(req.TabID)
				crop, err := rt.Request(ctx, messages.ContextBackground, page, messages.CropImage{
					ImageData: full,
					Region:    req.Region,
				})
				if err != nil || crop.Failed() {
					router.Respond(env, messages.Fail("crop failed"))
					continue
				}
				if failMsg != "" {
					router.Respond(env, messages.Fail(failMsg))
					continue
				}
				show, err := rt.Request(ctx, messages.ContextBackground, page, messages.ShowResults{Summary: "one\ntwo", Region: req.Region, CaptureID: req.CaptureID})
				if err != nil || show.Failed() {
					router.Respond(env, messages.Fail("show failed"))
					continue
				}
				router.Respond(env, messages.OK(messages.Ack{Success: true}))
			}
		}
	}()
}

func waitOutcome(t *testing.T, c chanTarget) outcome {
	t.Helper()
	select {
	case o := <-c:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for capture outcome")
		return outcome{}
	}
}

func TestCaptureFlowDeliversSummary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt := router.NewRouter()
	defer rt.Shutdown()

	a, rend := newAgent(t, rt)
	fakeBackground(ctx, t, rt, "")
	go a.Run(ctx)
	require.Eventually(t, func() bool {
		for _, c := range rt.Contexts() {
			if c == a.ContextID() {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	target := make(chanTarget, 2)
	require.True(t, a.Begin(target))
	selectRegion(a)

	got := waitOutcome(t, target)
	require.NoError(t, got.err)
	assert.Equal(t, "one\ntwo", got.summary)

	o, ok := rend.last()
	require.True(t, ok)
	assert.Equal(t, results.KindResults, o.Kind)
	assert.Equal(t, 10, o.X)
	assert.Equal(t, 10+40+10, o.Y)
}

func TestCaptureFlowShowsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt := router.NewRouter()
	defer rt.Shutdown()

	a, rend := newAgent(t, rt)
	fakeBackground(ctx, t, rt, "No text found in image")
	go a.Run(ctx)
	require.Eventually(t, func() bool { return len(rt.Contexts()) == 2 }, time.Second, 10*time.Millisecond)

	target := make(chanTarget, 2)
	require.True(t, a.Begin(target))
	selectRegion(a)

	got := waitOutcome(t, target)
	require.Error(t, got.err)
	assert.Equal(t, "No text found in image", got.err.Error())

	o, ok := rend.last()
	require.True(t, ok)
	assert.Equal(t, results.KindError, o.Kind)
	assert.Equal(t, "No text found in image", o.Text)
}

func TestCancelReportsCancellation(t *testing.T) {
	a, _ := newAgent(t, router.NewRouter())
	target := make(chanTarget, 1)
	require.True(t, a.Begin(target))

	a.Cancel()
	got := waitOutcome(t, target)
	assert.True(t, errors.Is(got.err, session.ErrSelectionCancelled))
	assert.Equal(t, region.StateIdle, a.Selector().State())
}

func TestRetryRestartsSelection(t *testing.T) {
	a, _ := newAgent(t, router.NewRouter())
	a.UI().ShowError("boom", region.Region{Width: 10, Height: 10})
	require.NoError(t, a.UI().Retry())
	assert.Equal(t, region.StateSelecting, a.Selector().State())
}

type panickingRenderer struct{}

func (panickingRenderer) Show(results.Overlay) { panic("renderer exploded") }
func (panickingRenderer) Remove(uint64)        {}

func TestHandlePanicBecomesFailure(t *testing.T) {
	a := New(Options{
		Router:   router.NewRouter(),
		TabID:    1,
		Surface:  nopSurface{},
		Renderer: panickingRenderer{},
		Copier:   nopCopier{},
		MinSize:  10,
	})
	resp := a.Handle(context.Background(), messages.Envelope{Message: messages.ShowResults{Summary: "x"}})
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Err, "renderer exploded")

	// The agent keeps answering after a panicking handler.
	resp = a.Handle(context.Background(), messages.Envelope{Message: messages.CropImage{
		ImageData: testPNG(t, 20, 20),
		Region:    region.Region{Width: 10, Height: 10},
	}})
	assert.False(t, resp.Failed(), resp.Err)
}

func TestCropImageOutsideViewport(t *testing.T) {
	a, _ := newAgent(t, router.NewRouter())
	resp := a.Handle(context.Background(), messages.Envelope{Message: messages.CropImage{
		ImageData: testPNG(t, 100, 100),
		Region:    region.Region{X: 0, Y: 0, Width: 1 << 30, Height: 1 << 30},
	}})
	assert.Equal(t, MsgCropFailed, resp.Err)
}

func TestStaleResultsReachOnlyTheirAttempt(t *testing.T) {
	rt := router.NewRouter()
	defer rt.Shutdown()

	// A background that holds every CAPTURE_REGION until the test releases it.
	ch, err := rt.Register(messages.ContextBackground, 4)
	require.NoError(t, err)

	a, rend := newAgent(t, rt)
	first := make(chanTarget, 2)
	require.True(t, a.Begin(first))
	selectRegion(a)

	var held messages.Envelope
	select {
	case held = <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("capture request never reached the background")
	}
	firstID := held.Message.(messages.CaptureRegion).CaptureID
	require.NotEmpty(t, firstID)

	second := make(chanTarget, 2)
	require.True(t, a.Begin(second))

	resp := a.Handle(context.Background(), messages.Envelope{Message: messages.ShowResults{
		Summary:   "summary of first",
		Region:    region.Region{X: 10, Y: 10, Width: 50, Height: 40},
		CaptureID: firstID,
	}})
	require.False(t, resp.Failed())

	got := waitOutcome(t, first)
	require.NoError(t, got.err)
	assert.Equal(t, "summary of first", got.summary)

	select {
	case o := <-second:
		t.Fatalf("newer attempt resolved by stale results: %+v", o)
	default:
	}
	assert.Equal(t, region.StateSelecting, a.Selector().State())

	rend.mu.Lock()
	for _, o := range rend.shown {
		assert.NotEqual(t, results.KindResults, o.Kind)
	}
	rend.mu.Unlock()

	router.Respond(held, messages.OK(messages.Ack{Success: true}))
	a.Cancel()
	got = waitOutcome(t, second)
	assert.True(t, errors.Is(got.err, session.ErrSelectionCancelled))
}

func TestRunUnregistersOnExit(t *testing.T) {
	rt := router.NewRouter()
	defer rt.Shutdown()
	a, _ := newAgent(t, rt)

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- a.Run(ctx) }()
		require.Eventually(t, func() bool { return len(rt.Contexts()) == 1 }, time.Second, 10*time.Millisecond)
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
		assert.Empty(t, rt.Contexts())
	}
}
