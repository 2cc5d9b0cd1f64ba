package background

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context-capture/src/messages"
	"context-capture/src/ocr"
	"context-capture/src/region"
	"context-capture/src/router"
	"context-capture/src/screenshot"
	"context-capture/src/settings"
)

const (
	ocrSpaceOK = `{"ParsedResults":[{"ParsedText":"Some captured text","TextOverlay":{"Lines":[{"Words":[{"WordText":"Some","Confidence":90}]}]}}],"IsErroredOnProcessing":false}`
	ocrSpaceNo = `{"ParsedResults":[{"ParsedText":"   "}],"IsErroredOnProcessing":false}`
	openAIOK   = `{"choices":[{"message":{"role":"assistant","content":"line one\nline two"}}]}`
)

type fakeGrabber struct {
	img screenshot.ImagePayload
	err error
}

func (g fakeGrabber) CaptureViewport(context.Context) (screenshot.ImagePayload, error) {
	return g.img, g.err
}

func pngPayload(t *testing.T, w, h int) screenshot.ImagePayload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return screenshot.ImagePayload{MIMEType: screenshot.MIMEPNG, Data: buf.Bytes()}
}

func jsonServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakePage answers CROP_IMAGE and SHOW_RESULTS for tab 1 and records the
// summaries it was asked to show.
type fakePage struct {
	mu       sync.Mutex
	shown    []messages.ShowResults
	started  int
	cropFail string
}

func (p *fakePage) run(ctx context.Context, t *testing.T, rt *router.Router) {
	ch, err := rt.Register(messages.PageContext(1), 4)
	require.NoError(t, err)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				p.mu.Lock()
				switch m := env.Message.(type) {
				case messages.CropImage:
					if p.cropFail != "" {
						router.Respond(env, messages.Fail(p.cropFail))
						break
					}
					img, err := screenshot.CaptureVisibleTab(m.ImageData, m.Region)
					if err != nil {
						router.Respond(env, messages.Fail("Failed to crop image"))
						break
					}
					router.Respond(env, messages.OK(messages.CropResult{CroppedImage: img}))
				case messages.ShowResults:
					p.shown = append(p.shown, m)
					router.Respond(env, messages.OK(messages.Ack{Success: true}))
				case messages.StartCapture:
					p.started++
					router.Respond(env, messages.OK(messages.Ack{Success: true}))
				default:
					router.Respond(env, messages.Fail(MsgUnknownType))
				}
				p.mu.Unlock()
			}
		}
	}()
}

type harness struct {
	rt    *router.Router
	store *settings.MemoryStore
	orch  *Orchestrator
	page  *fakePage
}

func newHarness(t *testing.T, ocrBody, llmBody string, grab fakeGrabber) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ocrSrv := jsonServer(t, ocrBody)
	llmSrv := jsonServer(t, llmBody)

	rt := router.NewRouter()
	t.Cleanup(rt.Shutdown)
	store := settings.NewMemoryStore(settings.Settings{
		OCRService: "ocrspace",
		LLMService: "openai",
		Theme:      settings.ThemeSystem,
		APIKeys: map[string]string{
			"ocrspace": "ocr-space-test-key",
			"openai":   "sk-test-0123456789abcdefghij",
		},
	})
	orch := New(Options{
		Router:       rt,
		Store:        store,
		Grabber:      grab,
		OCREndpoints: map[string]string{"ocrspace": ocrSrv.URL},
		LLMEndpoints: map[string]string{"openai": llmSrv.URL},
		DefaultTabID: 1,
	})
	require.NoError(t, orch.Init(ctx))

	page := &fakePage{}
	page.run(ctx, t, rt)
	go orch.Run(ctx)
	require.Eventually(t, func() bool { return len(rt.Contexts()) == 2 }, time.Second, 10*time.Millisecond)

	return &harness{rt: rt, store: store, orch: orch, page: page}
}

func (h *harness) request(t *testing.T, msg messages.Message) messages.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := h.rt.Request(ctx, messages.PageContext(1), messages.ContextBackground, msg)
	require.NoError(t, err)
	return resp
}

var testRegion = region.Region{X: 10, Y: 10, Width: 80, Height: 60}

func TestCaptureRegionPipeline(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{img: pngPayload(t, 200, 200)})

	resp := h.request(t, messages.CaptureRegion{Region: testRegion, TabID: 1})
	require.False(t, resp.Failed(), resp.Err)

	var ack messages.Ack
	require.NoError(t, resp.Into(&ack))
	assert.True(t, ack.Success)

	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	require.Len(t, h.page.shown, 1)
	assert.Equal(t, "line one\nline two", h.page.shown[0].Summary)
	assert.Equal(t, testRegion, h.page.shown[0].Region)
}

func TestCaptureRegionEchoesCaptureID(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{img: pngPayload(t, 200, 200)})

	resp := h.request(t, messages.CaptureRegion{Region: testRegion, TabID: 1, CaptureID: "capture-a"})
	require.False(t, resp.Failed(), resp.Err)

	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	require.Len(t, h.page.shown, 1)
	assert.Equal(t, "capture-a", h.page.shown[0].CaptureID)
}

func TestCaptureRegionNoText(t *testing.T) {
	h := newHarness(t, ocrSpaceNo, openAIOK, fakeGrabber{img: pngPayload(t, 200, 200)})

	resp := h.request(t, messages.CaptureRegion{Region: testRegion, TabID: 1})
	assert.Equal(t, ocr.MsgNoText, resp.Err)
	assert.Empty(t, h.page.shown)
}

func TestCaptureRegionOCRFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{img: pngPayload(t, 200, 200)})
	h.orch.opts.OCREndpoints = map[string]string{"ocrspace": srv.URL}
	require.NoError(t, h.orch.Init(context.Background()))

	resp := h.request(t, messages.CaptureRegion{Region: testRegion, TabID: 1})
	assert.Equal(t, ocr.MsgRecognitionFailed, resp.Err)
}

func TestCaptureRegionCropError(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{img: pngPayload(t, 200, 200)})
	h.page.mu.Lock()
	h.page.cropFail = "Failed to crop image"
	h.page.mu.Unlock()

	resp := h.request(t, messages.CaptureRegion{Region: testRegion, TabID: 1})
	assert.Equal(t, "Failed to crop image", resp.Err)
}

func TestCaptureRegionGrabError(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{err: errors.New("no displays")})

	resp := h.request(t, messages.CaptureRegion{Region: testRegion, TabID: 1})
	assert.Equal(t, "no displays", resp.Err)
}

func TestUnknownMessageType(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{})
	resp := h.request(t, messages.CropImage{})
	assert.Equal(t, MsgUnknownType, resp.Err)
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{})
	h.orch.handlers[messages.TypeLLMRequest] = func(context.Context, messages.Envelope) messages.Response {
		panic("handler exploded")
	}

	resp := h.request(t, messages.LLMRequest{Text: "x"})
	assert.Equal(t, "handler exploded", resp.Err)

	// The dispatcher keeps serving after the panic.
	resp = h.request(t, messages.TestAPI{Service: "nope"})
	require.False(t, resp.Failed())
}

func TestGetSettingsRedactsKeys(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{})
	resp := h.request(t, messages.GetSettings{})
	require.False(t, resp.Failed())

	var payload messages.SettingsPayload
	require.NoError(t, resp.Into(&payload))
	assert.Equal(t, "ocrspace", payload.Settings.OCRService)
	assert.NotEqual(t, "sk-test-0123456789abcdefghij", payload.Settings.APIKeys["openai"])
	assert.NotEmpty(t, payload.Settings.APIKeys["openai"])
}

func TestSaveSettingsReconfigures(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{})
	provider := "googlevision"
	resp := h.request(t, messages.SaveSettings{Patch: settings.Patch{OCRService: &provider}})
	require.False(t, resp.Failed(), resp.Err)

	s, err := h.store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "googlevision", s.OCRService)
	assert.Equal(t, "googlevision", h.orch.ocr.ProviderName())
}

func TestOCRAndLLMRequests(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{})

	resp := h.request(t, messages.OCRRequest{ImageData: pngPayload(t, 20, 20)})
	var res ocr.Result
	require.NoError(t, resp.Into(&res))
	assert.True(t, res.Success)
	assert.Equal(t, "Some captured text", res.Text)

	resp = h.request(t, messages.LLMRequest{Text: "Some captured text"})
	var sum struct {
		Summary string `json:"summary"`
		Success bool   `json:"success"`
	}
	require.NoError(t, resp.Into(&sum))
	assert.True(t, sum.Success)
	assert.Equal(t, "line one\nline two", sum.Summary)
}

func TestTestAPIUnknownService(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{})
	resp := h.request(t, messages.TestAPI{Service: "video"})

	var res messages.TestAPIResult
	require.NoError(t, resp.Into(&res))
	assert.False(t, res.Success)
}

func TestTestAPILLM(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{})
	resp := h.request(t, messages.TestAPI{Service: messages.ServiceLLM})

	var res messages.TestAPIResult
	require.NoError(t, resp.Into(&res))
	assert.True(t, res.Success)
}

func TestStartCaptureForwardsToPage(t *testing.T) {
	h := newHarness(t, ocrSpaceOK, openAIOK, fakeGrabber{})
	resp := h.request(t, messages.StartCapture{})
	require.False(t, resp.Failed(), resp.Err)

	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	assert.Equal(t, 1, h.page.started)
}

func TestRunReleasesContextOnExit(t *testing.T) {
	rt := router.NewRouter()
	defer rt.Shutdown()
	orch := New(Options{Router: rt, Store: settings.NewMemoryStore(settings.Settings{}), Workers: 1})

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- orch.Run(ctx) }()
		require.Eventually(t, func() bool { return len(rt.Contexts()) == 1 }, time.Second, 10*time.Millisecond)
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
		assert.Empty(t, rt.Contexts())
	}
}
