// Package background is the privileged coordinator: it owns the OCR and LLM
// services and sequences capture requests coming from page contexts.
package background

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strings"

	"context-capture/src/llm"
	"context-capture/src/messages"
	"context-capture/src/ocr"
	"context-capture/src/router"
	"context-capture/src/screenshot"
	"context-capture/src/settings"
	"context-capture/src/worker"
)

const (
	MsgUnknownType = "Unknown message type"
	MsgCaptureFail = "Capture failed"
)

// HandlerFunc answers one request. It must not panic past the dispatcher,
// but if it does the panic is turned into a failed Response.
type HandlerFunc func(ctx context.Context, env messages.Envelope) messages.Response

// Options wires the orchestrator to its collaborators. Models, endpoints and
// the HTTP client are optional provider overrides.
type Options struct {
	Router       *router.Router
	Store        settings.Store
	Grabber      screenshot.Grabber
	HTTPClient   *http.Client
	LLMModels    map[string]string
	OCREndpoints map[string]string
	LLMEndpoints map[string]string
	DefaultTabID int
	// Workers bounds concurrent handlers. Zero picks max(NumCPU, 4).
	Workers int
}

type Orchestrator struct {
	opts     Options
	ocr      *ocr.Service
	llm      *llm.Service
	handlers map[messages.Type]HandlerFunc
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts: opts,
		ocr:  ocr.NewService(),
		llm:  llm.NewService(),
	}
	o.handlers = map[messages.Type]HandlerFunc{
		messages.TypeCaptureRegion: o.handleCaptureRegion,
		messages.TypeOCRRequest:    o.handleOCRRequest,
		messages.TypeLLMRequest:    o.handleLLMRequest,
		messages.TypeGetSettings:   o.handleGetSettings,
		messages.TypeSaveSettings:  o.handleSaveSettings,
		messages.TypeTestAPI:       o.handleTestAPI,
		messages.TypeStartCapture:  o.handleStartCapture,
	}
	return o
}

// Init reads the settings store once and pushes provider selection and
// credentials into both services. No reference to the settings is kept.
func (o *Orchestrator) Init(ctx context.Context) error {
	s, err := o.opts.Store.Get(ctx)
	if err != nil {
		log.Printf("Background: settings unavailable, using defaults: %v", err)
	}

	var errs []string
	if err := o.ocr.Configure(ocr.Config{
		Provider:   s.OCRService,
		APIKeys:    s.APIKeys,
		Endpoints:  o.opts.OCREndpoints,
		HTTPClient: o.opts.HTTPClient,
	}); err != nil {
		errs = append(errs, err.Error())
	}
	if err := o.llm.Configure(llm.Config{
		Provider:   s.LLMService,
		APIKeys:    s.APIKeys,
		Models:     o.opts.LLMModels,
		Endpoints:  o.opts.LLMEndpoints,
		HTTPClient: o.opts.HTTPClient,
	}); err != nil {
		errs = append(errs, err.Error())
	}

	ocrOK, llmOK := settings.HasValidAPIKeys(s)
	log.Printf("Background: initialized (ocr=%s key=%v, llm=%s key=%v)", s.OCRService, ocrOK, s.LLMService, llmOK)
	if len(errs) > 0 {
		return fmt.Errorf("background init: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Run registers the background context and serves requests until ctx is done
// or the router closes the channel. Requests are handled on a worker pool so a
// slow provider call never blocks the receive loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	ch, err := o.opts.Router.Register(messages.ContextBackground, 32)
	if err != nil {
		return err
	}
	defer o.opts.Router.Unregister(messages.ContextBackground)
	n := o.opts.Workers
	if n <= 0 {
		n = max(runtime.NumCPU(), 4)
	}
	pool := worker.New(n, n)
	defer pool.Close()

	log.Printf("Background: started (%d workers)", n)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-ch:
			if !ok {
				log.Printf("Background: channel closed, exiting")
				return nil
			}
			if err := pool.Submit(ctx, func() {
				router.Respond(env, o.Handle(ctx, env))
			}); err != nil {
				router.Respond(env, messages.Fail(err.Error()))
			}
		}
	}
}

// Handle dispatches one envelope. Panics and unknown types become failed responses.
func (o *Orchestrator) Handle(ctx context.Context, env messages.Envelope) (resp messages.Response) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Background: handler for %s panicked: %v", env.Message.Type(), p)
			resp = messages.Fail(fmt.Sprint(p))
		}
	}()

	h, ok := o.handlers[env.Message.Type()]
	if !ok {
		return messages.Fail(MsgUnknownType)
	}
	return h(ctx, env)
}

func (o *Orchestrator) handleCaptureRegion(ctx context.Context, env messages.Envelope) messages.Response {
	req, ok := env.Message.(messages.CaptureRegion)
	if !ok {
		return messages.Fail(MsgCaptureFail)
	}
	page := messages.PageContext(req.TabID)

	full, err := o.opts.Grabber.CaptureViewport(ctx)
	if err != nil {
		log.Printf("Background: viewport capture failed: %v", err)
		return messages.Fail(err.Error())
	}

	cropResp, err := o.opts.Router.Request(ctx, messages.ContextBackground, page, messages.CropImage{ImageData: full, Region: req.Region})
	if err != nil {
		return messages.Fail(err.Error())
	}
	if cropResp.Failed() {
		return messages.Fail(cropResp.Err)
	}
	var crop messages.CropResult
	if err := cropResp.Into(&crop); err != nil {
		return messages.Fail(err.Error())
	}

	ocrRes := o.ocr.ExtractText(ctx, crop.CroppedImage)
	if !ocrRes.Success || strings.TrimSpace(ocrRes.Text) == "" {
		msg := ocrRes.Error
		if msg == "" {
			msg = ocr.MsgNoText
		}
		return messages.Fail(msg)
	}

	sum := o.llm.GenerateSummary(ctx, ocrRes.Text)
	if !sum.Success {
		msg := sum.Error
		if msg == "" {
			msg = "Failed to generate summary"
		}
		return messages.Fail(msg)
	}

	showResp, err := o.opts.Router.Request(ctx, messages.ContextBackground, page, messages.ShowResults{Summary: sum.Summary, Region: req.Region, CaptureID: req.CaptureID})
	if err != nil {
		return messages.Fail(err.Error())
	}
	if showResp.Failed() {
		return messages.Fail(showResp.Err)
	}
	log.Printf("Background: capture for %s complete", page)
	return messages.OK(messages.Ack{Success: true})
}

func (o *Orchestrator) handleOCRRequest(ctx context.Context, env messages.Envelope) messages.Response {
	req, _ := env.Message.(messages.OCRRequest)
	return messages.OK(o.ocr.ExtractText(ctx, req.ImageData))
}

func (o *Orchestrator) handleLLMRequest(ctx context.Context, env messages.Envelope) messages.Response {
	req, _ := env.Message.(messages.LLMRequest)
	return messages.OK(o.llm.GenerateSummary(ctx, req.Text))
}

// handleGetSettings never returns raw credentials.
func (o *Orchestrator) handleGetSettings(ctx context.Context, _ messages.Envelope) messages.Response {
	s, err := o.opts.Store.Get(ctx)
	if err != nil {
		return messages.Fail(err.Error())
	}
	return messages.OK(messages.SettingsPayload{Settings: s.Redacted()})
}

func (o *Orchestrator) handleSaveSettings(ctx context.Context, env messages.Envelope) messages.Response {
	req, _ := env.Message.(messages.SaveSettings)
	if _, err := o.opts.Store.Save(ctx, req.Patch); err != nil {
		log.Printf("Background: save settings failed: %v", err)
		return messages.Fail("Failed to save settings")
	}
	if err := o.Init(ctx); err != nil {
		log.Printf("Background: re-init after save: %v", err)
	}
	return messages.OK(messages.Ack{Success: true})
}

func (o *Orchestrator) handleTestAPI(ctx context.Context, env messages.Envelope) messages.Response {
	req, _ := env.Message.(messages.TestAPI)
	switch req.Service {
	case messages.ServiceOCR:
		return messages.OK(messages.TestAPIResult{Success: o.ocr.SelfTest(ctx)})
	case messages.ServiceLLM:
		return messages.OK(messages.TestAPIResult{Success: o.llm.SelfTest(ctx)})
	default:
		return messages.OK(messages.TestAPIResult{Success: false})
	}
}

// handleStartCapture forwards the request to the target page (icon click equivalent).
func (o *Orchestrator) handleStartCapture(ctx context.Context, env messages.Envelope) messages.Response {
	req, _ := env.Message.(messages.StartCapture)
	tab := req.TabID
	if tab == 0 {
		tab = o.opts.DefaultTabID
	}
	resp, err := o.opts.Router.Request(ctx, messages.ContextBackground, messages.PageContext(tab), messages.StartCapture{TabID: tab})
	if err != nil {
		return messages.Fail(err.Error())
	}
	return resp
}
