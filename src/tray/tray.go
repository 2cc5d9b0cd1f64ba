// Package tray is the resident process's system tray menu, the desktop
// equivalent of the extension icon and popup.
package tray

import (
	"fmt"
	"log"
	"sync"

	"github.com/getlantern/systray"
)

type Config struct {
	Title   string
	Tooltip string
	Hotkey  string
	// Menu actions; nil entries are omitted.
	OnCapture func()
	OnCopy    func()
	OnRetry   func()
	OnTestOCR func()
	OnTestLLM func()
	OnExit    func()
}

type Tray struct {
	cfg  Config
	quit chan struct{}
}

var (
	mu         sync.Mutex
	ready      bool
	aboutExtra string
	baseTip    string
)

func New(cfg Config) (*Tray, error) {
	if cfg.Title == "" {
		return nil, fmt.Errorf("tray title is required")
	}
	return &Tray{cfg: cfg, quit: make(chan struct{})}, nil
}

// Run blocks on the systray loop.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Destroy quits the systray loop.
func (t *Tray) Destroy() {
	mu.Lock()
	r := ready
	mu.Unlock()
	if r {
		systray.Quit()
	}
}

func (t *Tray) onReady() {
	if icon := Icon(); icon != nil {
		systray.SetIcon(icon)
	}
	systray.SetTitle(t.cfg.Title)
	systray.SetTooltip(t.cfg.Tooltip)

	mu.Lock()
	ready = true
	baseTip = t.cfg.Tooltip
	mu.Unlock()

	items := []struct {
		title, tip string
		action     func()
	}{
		{"Capture region", "Select a region to summarize", t.cfg.OnCapture},
		{"Copy summary", "Copy the visible summary", t.cfg.OnCopy},
		{"Retry", "Retry after a failed capture", t.cfg.OnRetry},
		{"Test OCR", "Check the configured OCR provider", t.cfg.OnTestOCR},
		{"Test LLM", "Check the configured LLM provider", t.cfg.OnTestLLM},
	}
	for _, it := range items {
		if it.action == nil {
			continue
		}
		item := systray.AddMenuItem(it.title, it.tip)
		go t.serve(item, it.action)
	}

	systray.AddSeparator()
	about := systray.AddMenuItem("About", "About "+t.cfg.Title)
	go t.serve(about, func() { log.Printf("Tray: %s", AboutText(t.cfg.Title, t.cfg.Hotkey)) })
	mQuit := systray.AddMenuItem("Quit", "Quit the application")
	go func() {
		select {
		case <-mQuit.ClickedCh:
			systray.Quit()
		case <-t.quit:
		}
	}()
	log.Printf("Tray: ready")
}

func (t *Tray) serve(item *systray.MenuItem, action func()) {
	for {
		select {
		case <-item.ClickedCh:
			action()
		case <-t.quit:
			return
		}
	}
}

func (t *Tray) onExit() {
	mu.Lock()
	ready = false
	mu.Unlock()
	close(t.quit)
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

// UpdateTooltip changes the tooltip; an empty string restores the default.
func UpdateTooltip(tip string) {
	mu.Lock()
	defer mu.Unlock()
	if !ready {
		return
	}
	if tip == "" {
		tip = baseTip
	}
	systray.SetTooltip(tip)
}

// Notify is a popup.Notifier backed by the tooltip.
func Notify(title, text string) {
	UpdateTooltip(title + ": " + text)
}

// SetAboutExtra appends a line (e.g. the resident port) to the About text.
func SetAboutExtra(s string) {
	mu.Lock()
	defer mu.Unlock()
	aboutExtra = s
}

func AboutText(title, hotkey string) string {
	mu.Lock()
	defer mu.Unlock()
	text := title
	if hotkey != "" {
		text += fmt.Sprintf("\nHotkey: %s", hotkey)
	}
	if aboutExtra != "" {
		text += "\n" + aboutExtra
	}
	return text
}
