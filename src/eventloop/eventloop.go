package eventloop

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"context-capture/src/clipboard"
	"context-capture/src/hotkey"
	"context-capture/src/input"
	"context-capture/src/messages"
	"context-capture/src/page"
	"context-capture/src/region"
	"context-capture/src/router"
	"context-capture/src/screenshot"
	"context-capture/src/session"
	"context-capture/src/singleinstance"
	"context-capture/src/tray"
)

const defaultMessageTimeout = 60 * time.Second

type Options struct {
	Router *router.Router
	Page   *page.Agent
	Copier clipboard.Copier
	// Server defaults to singleinstance.NewServer().
	Server         singleinstance.Server
	MessageTimeout time.Duration
	DefaultTooltip string
	// Origin reports the viewport's top-left in desktop coordinates.
	// Defaults to screenshot.ViewportOrigin.
	Origin func() image.Point
}

// Loop is the resident coordinator: it turns hotkey presses into
// START_CAPTURE requests and serves delegated --run-once clients.
type Loop struct {
	opts     Options
	srv      singleinstance.Server
	hotkeyCh chan struct{}
}

func New(opts Options) *Loop {
	if opts.MessageTimeout <= 0 {
		opts.MessageTimeout = defaultMessageTimeout
	}
	if opts.Server == nil {
		opts.Server = singleinstance.NewServer()
	}
	if opts.DefaultTooltip == "" {
		opts.DefaultTooltip = "Context Capture"
	}
	if opts.Origin == nil {
		opts.Origin = screenshot.ViewportOrigin
	}
	return &Loop{
		opts:     opts,
		srv:      opts.Server,
		hotkeyCh: make(chan struct{}, 4),
	}
}

// TriggerCapture requests a capture as if the hotkey had been pressed.
func (l *Loop) TriggerCapture() {
	select {
	case l.hotkeyCh <- struct{}{}:
	default:
	}
}

// StartHotkey registers the global hotkey and routes pointer and key events
// to the page's selector while a selection is active.
func (l *Loop) StartHotkey(ctx context.Context, combo string) {
	if combo == "" {
		return
	}
	sel := l.opts.Page.Selector()
	dispatch := input.Dispatcher{
		Pointer:  sel,
		OnCancel: l.opts.Page.Cancel,
		Active:   func() bool { return sel.State() != region.StateIdle },
		Origin:   l.opts.Origin(),
	}
	log.Printf("Input: viewport origin %v", dispatch.Origin)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		if err := hotkey.Listen(ctx, combo, l.TriggerCapture, dispatch.Handle); err != nil && ctx.Err() == nil {
			log.Printf("Hotkey: listener stopped: %v", err)
		}
	}()
}

// Start binds the singleinstance server.
func (l *Loop) Start(ctx context.Context) error {
	if err := l.srv.Start(ctx); err != nil {
		return err
	}
	if p := l.srv.Port(); p > 0 {
		log.Printf("Resident listening on 127.0.0.1:%d", p)
		tray.SetAboutExtra(fmt.Sprintf("Resident TCP port: %d", p))
	}
	return nil
}

// Run starts the server and serves until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.Start(ctx); err != nil {
		return err
	}
	return l.Serve(ctx)
}

// Serve processes hotkey presses and client connections. Start must have succeeded.
func (l *Loop) Serve(ctx context.Context) error {
	defer l.srv.Close()

	reqCh := make(chan singleinstance.Conn, 4)
	go func() {
		defer close(reqCh)
		for {
			conn, err := l.srv.Next(ctx)
			if err != nil {
				return
			}
			reqCh <- conn
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.hotkeyCh:
			go l.handleHotkey(ctx)
		case conn, ok := <-reqCh:
			if !ok {
				return nil
			}
			l.handleConn(ctx, conn)
		}
	}
}

func (l *Loop) handleHotkey(ctx context.Context) {
	resp, err := l.opts.Router.Request(ctx, messages.ContextTray, messages.ContextBackground, messages.StartCapture{})
	switch {
	case err != nil:
		log.Printf("handleHotkey: start capture failed: %v", err)
	case resp.Failed():
		log.Printf("handleHotkey: start capture refused: %s", resp.Err)
	}
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	req := conn.Request()
	if req.Mode == singleinstance.ModeMessage {
		go l.handleMessage(ctx, conn)
		return
	}
	target := tooltipTarget{
		Target: session.DelegatedTarget{
			Conn:           conn,
			OutputToStdout: req.OutputToStdout(),
			Copier:         l.opts.Copier,
		},
		tooltip: l.opts.DefaultTooltip,
	}
	// Begin reports a busy selector to the target itself.
	if l.opts.Page.Begin(target) {
		tray.UpdateTooltip(l.opts.DefaultTooltip + ": select a region")
	}
}

// tooltipTarget restores the tray tooltip once the attempt resolves.
type tooltipTarget struct {
	session.Target
	tooltip string
}

func (t tooltipTarget) OnSuccess(summary string) error {
	defer tray.UpdateTooltip(t.tooltip)
	return t.Target.OnSuccess(summary)
}

func (t tooltipTarget) OnFailure(err error) error {
	defer tray.UpdateTooltip(t.tooltip)
	return t.Target.OnFailure(err)
}

// handleMessage relays one wire message to the background and writes the
// response JSON back to the client.
func (l *Loop) handleMessage(ctx context.Context, conn singleinstance.Conn) {
	defer conn.Close()

	msg, err := messages.Decode(conn.Request().Message)
	if err != nil {
		_ = conn.RespondError(err.Error())
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, l.opts.MessageTimeout)
	defer cancel()

	resp, err := l.opts.Router.Request(reqCtx, messages.ContextCLI, messages.ContextBackground, msg)
	if err != nil {
		_ = conn.RespondError(err.Error())
		return
	}
	out, err := messages.EncodeResponse(resp)
	if err != nil {
		_ = conn.RespondError(err.Error())
		return
	}
	_ = conn.RespondSuccess(string(out))
}
