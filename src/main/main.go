package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"context-capture/src/background"
	"context-capture/src/bridge"
	"context-capture/src/clipboard"
	"context-capture/src/config"
	"context-capture/src/eventloop"
	"context-capture/src/logutil"
	"context-capture/src/messages"
	"context-capture/src/page"
	"context-capture/src/overlay"
	"context-capture/src/popup"
	"context-capture/src/process"
	"context-capture/src/router"
	"context-capture/src/runtimeinit"
	"context-capture/src/screenshot"
	"context-capture/src/session"
	"context-capture/src/singleinstance"
	"context-capture/src/tray"
)

const (
	appTitle     = "Context Capture"
	defaultTabID = 1
)

type mainOptions struct {
	runOnce    bool
	runOnceStd bool
	message    string
	envPath    string
	ocrService string
	llmService string
}

func (o mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		EnvPathOverride:    o.envPath,
		OCRServiceOverride: o.ocrService,
		LLMServiceOverride: o.llmService,
	}
}

type runOnceClient interface {
	TryRunOnce(ctx context.Context, outputToStdout bool) (bool, string, error)
}

func main() {
	enableDPIAwareness()
	// systray and the global hook expect the main OS thread.
	runtime.LockOSThread()

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(normalizeLegacyArgs(os.Args)[1:])
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "context-capture",
		Short:         "Select a screen region, OCR it and summarize it",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case opts.message != "":
				return runMessage(*opts, singleinstance.NewClient())
			case opts.runOnce || opts.runOnceStd:
				stdout := opts.runOnceStd
				return handleRunOnceWithDelegation(stdout, singleinstance.NewClient(), func() error {
					return runStandalone(*opts, stdout)
				})
			default:
				return runResident(*opts)
			}
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.runOnce, "run-once", false, "Capture once and copy the summary to the clipboard")
	f.BoolVar(&opts.runOnceStd, "run-once-std", false, "Capture once and print the summary to stdout")
	f.StringVar(&opts.message, "message", "", `Send one wire message, e.g. '{"type":"TEST_API","data":{"service":"ocr"}}'`)
	f.StringVar(&opts.envPath, "env", "", "Path to a .env file (highest precedence)")
	f.StringVar(&opts.ocrService, "ocr", "", "OCR provider override (ocrspace, googlevision, tesseract)")
	f.StringVar(&opts.llmService, "llm", "", "LLM provider override (openai, anthropic, gemini)")
	return cmd
}

// normalizeLegacyArgs maps single-dash long flags to their cobra form.
func normalizeLegacyArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 1; i < len(out); i++ {
		arg := out[i]
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && len(arg) > 2 {
			out[i] = "-" + arg
		}
	}
	return out
}

// handleRunOnceWithDelegation hands the capture to a resident if one is
// listening, otherwise runs fallback.
func handleRunOnceWithDelegation(outputToStdout bool, client runOnceClient, fallback func() error) error {
	// Load .env early so SINGLEINSTANCE_PORT_* apply to the scan.
	_, _ = config.Load()

	delegated, text, err := client.TryRunOnce(context.Background(), outputToStdout)
	switch {
	case err != nil:
		log.Printf("Delegation error: %v; falling back to standalone", err)
		return fallback()
	case !delegated:
		log.Printf("No resident detected, running standalone")
		return fallback()
	}
	log.Printf("Delegated to resident")
	if outputToStdout {
		fmt.Print(text)
	}
	return nil
}

type messageClient interface {
	SendMessage(ctx context.Context, raw []byte) (bool, []byte, error)
}

// runMessage sends one wire message to the resident, or handles it in-process
// when no resident is running.
func runMessage(opts mainOptions, client messageClient) error {
	raw := []byte(opts.message)
	msg, err := messages.Decode(raw)
	if err != nil {
		return err
	}

	_, _ = config.Load()
	ctx := context.Background()
	if delegated, out, err := client.SendMessage(ctx, raw); err == nil && delegated {
		fmt.Println(string(out))
		return nil
	} else if err != nil {
		log.Printf("Delegation error: %v; handling in-process", err)
	}

	rt, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{LoadOptions: opts.loadOptions(), SetupLogging: logutil.Setup})
	if err != nil {
		return err
	}
	orch := newOrchestrator(router.NewRouter(), rt)
	if err := orch.Init(ctx); err != nil {
		log.Printf("Background init: %v", err)
	}
	out, err := messages.EncodeResponse(orch.Handle(ctx, messages.Envelope{From: messages.ContextCLI, To: messages.ContextBackground, Message: msg}))
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newOrchestrator(rt *router.Router, r *runtimeinit.Runtime) *background.Orchestrator {
	return background.New(background.Options{
		Router:       rt,
		Store:        r.Store,
		Grabber:      screenshot.DisplayGrabber{},
		HTTPClient:   r.HTTPClient,
		LLMModels:    r.LLMModels(),
		DefaultTabID: defaultTabID,
	})
}

// app is the wired set of contexts shared by the resident and standalone modes.
type app struct {
	rt     *runtimeinit.Runtime
	router *router.Router
	orch   *background.Orchestrator
	page   *page.Agent
	procs  *process.Supervisor
}

func newApp(ctx context.Context, opts mainOptions) (*app, error) {
	rt, err := runtimeinit.Bootstrap(ctx, runtimeinit.Options{
		LoadOptions:   opts.loadOptions(),
		SetupLogging:  logutil.Setup,
		InitClipboard: true,
	})
	if err != nil {
		return nil, err
	}
	logDisplays()

	rtr := router.NewRouter()
	orch := newOrchestrator(rtr, rt)
	if err := orch.Init(ctx); err != nil {
		log.Printf("Background init: %v", err)
	}
	cfg := rt.Config
	agent := page.New(page.Options{
		Router:         rtr,
		TabID:          defaultTabID,
		Surface:        overlay.New(&popup.Surface{Notify: tray.Notify}),
		Renderer:       popup.NewRenderer(tray.Notify),
		Copier:         clipboard.Default(),
		MinSize:        cfg.MinSelectionSize,
		OptimizeForOCR: cfg.OptimizeForOCR,
		ResultsTTL:     time.Duration(cfg.ResultsTTLSec) * time.Second,
		ErrorTTL:       time.Duration(cfg.ErrorTTLSec) * time.Second,
	})

	procs := process.NewSupervisor(ctx)
	if err := procs.Go(messages.ContextBackground, orch.Run); err != nil {
		return nil, err
	}
	if err := procs.Go(agent.ContextID(), agent.Run); err != nil {
		procs.Stop()
		return nil, err
	}
	return &app{rt: rt, router: rtr, orch: orch, page: agent, procs: procs}, nil
}

// close stops every supervised process before tearing down the router.
func (a *app) close() {
	a.procs.Stop()
	a.router.Shutdown()
}

func runResident(opts mainOptions) error {
	// Load .env early so SINGLEINSTANCE_PORT_* are available for pre-flight.
	_, _ = config.Load()
	startPort := singleinstance.ConfiguredPortRange().Start
	listener, err := net.Listen("tcp", singleinstance.Addr(startPort))
	if err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if port, ok := singleinstance.DetectResidentPort(ctx); ok {
			fmt.Printf("one is already running on port %d\n", port)
			return fmt.Errorf("resident already running")
		}
		return fmt.Errorf("port %d is in use by another program: %w", startPort, err)
	}
	_ = listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.rt.Config

	tooltip := fmt.Sprintf("%s - Press %s to capture", appTitle, cfg.Hotkey)
	loop := eventloop.New(eventloop.Options{
		Router:         a.router,
		Page:           a.page,
		Copier:         clipboard.Default(),
		DefaultTooltip: tooltip,
	})

	switch {
	case cfg.BridgeAddr == "":
	case cfg.BridgeToken == "":
		log.Printf("Bridge: BRIDGE_ADDR set without BRIDGE_TOKEN, not starting")
	default:
		b := bridge.New(bridge.Options{
			Router:        a.router,
			Token:         cfg.BridgeToken,
			AllowedOrigin: cfg.BridgeOrigin,
			AllowRemote:   cfg.BridgeAllowRemote,
		})
		if err := a.procs.Go("bridge", func(ctx context.Context) error {
			return b.ListenAndServe(ctx, cfg.BridgeAddr)
		}); err != nil {
			return err
		}
	}

	trayIcon, err := tray.New(tray.Config{
		Title:     appTitle,
		Tooltip:   tooltip,
		Hotkey:    cfg.Hotkey,
		OnCapture: loop.TriggerCapture,
		OnCopy:    func() { _ = a.page.UI().Copy() },
		OnRetry:   func() { _ = a.page.UI().Retry() },
		OnTestOCR: func() { testService(ctx, a.router, messages.ServiceOCR) },
		OnTestLLM: func() { testService(ctx, a.router, messages.ServiceLLM) },
		OnExit:    cancel,
	})
	if err != nil {
		return err
	}
	go trayIcon.Run()
	defer trayIcon.Destroy()

	loop.StartHotkey(ctx, cfg.Hotkey)

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	log.Printf("%s initialized (ocr=%s, llm=%s, hotkey=%s)", appTitle, cfg.OCRService, cfg.LLMService, cfg.Hotkey)
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("event loop stopped: %w", err)
	}
	return nil
}

// runStandalone performs a single capture without a resident and exits.
func runStandalone(opts mainOptions, outputToStdout bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	done := make(chan error, 1)
	var target session.Target = session.ClipboardTarget{Copier: clipboard.Default()}
	if outputToStdout {
		target = session.StdoutTarget{}
	}
	loop := eventloop.New(eventloop.Options{Router: a.router, Page: a.page})
	loop.StartHotkey(ctx, a.rt.Config.Hotkey)

	if !a.page.Begin(outcomeTarget{Target: target, done: done}) {
		return fmt.Errorf("failed to start region selection")
	}
	return <-done
}

// outcomeTarget forwards to Target and reports completion.
type outcomeTarget struct {
	session.Target
	done chan<- error
}

// A failed delivery is reported through OnFailure.
func (t outcomeTarget) OnSuccess(summary string) error {
	if err := t.Target.OnSuccess(summary); err != nil {
		return err
	}
	t.done <- nil
	return nil
}

func (t outcomeTarget) OnFailure(err error) error {
	_ = t.Target.OnFailure(err)
	t.done <- err
	return nil
}

func testService(ctx context.Context, rt *router.Router, service string) {
	resp, err := rt.Request(ctx, messages.ContextTray, messages.ContextBackground, messages.TestAPI{Service: service})
	if err != nil {
		log.Printf("Test %s: %v", service, err)
		return
	}
	var res messages.TestAPIResult
	_ = resp.Into(&res)
	status := "failed"
	if res.Success {
		status = "ok"
	}
	tray.Notify("Test "+strings.ToUpper(service), status)
	log.Printf("Test %s: success=%v", service, res.Success)
}

func logDisplays() {
	b, err := screenshot.VirtualBounds()
	if err != nil {
		log.Printf("Screenshot: %v", err)
		return
	}
	log.Printf("Screenshot: virtual screen %v", b)
}
