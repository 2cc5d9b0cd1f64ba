package hotkey

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// Matcher tracks key state for one hotkey combination.
type Matcher struct {
	mu     sync.Mutex
	config string
	keys   []keyState
}

// NewMatcher parses a combination such as "Ctrl+Alt+S".
func NewMatcher(hotkeyConfig string) (*Matcher, error) {
	m := &Matcher{config: hotkeyConfig}
	for _, name := range parseHotkey(hotkeyConfig) {
		rawcodes := keyNameToRawcodes(name)
		if len(rawcodes) == 0 {
			return nil, fmt.Errorf("cannot map key %q in hotkey %q", name, hotkeyConfig)
		}
		m.keys = append(m.keys, keyState{name: name, rawcodes: rawcodes})
	}
	if len(m.keys) == 0 {
		return nil, fmt.Errorf("no valid keys in hotkey %q", hotkeyConfig)
	}
	return m, nil
}

// Feed updates key state from ev and reports whether the full combination
// is now held. State resets after a match.
func (m *Matcher) Feed(ev gohook.Event) bool {
	if ev.Kind != gohook.KeyDown && ev.Kind != gohook.KeyUp {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	down := ev.Kind == gohook.KeyDown
	for i := range m.keys {
		for _, rc := range m.keys[i].rawcodes {
			if ev.Rawcode == rc {
				m.keys[i].pressed = down
				break
			}
		}
	}
	if !down {
		return false
	}
	for _, k := range m.keys {
		if !k.pressed {
			return false
		}
	}
	for i := range m.keys {
		m.keys[i].pressed = false
	}
	return true
}

// Listen starts the global hook, calls onHotkey whenever the combination is
// pressed and forwards every event to tap (may be nil). It blocks until ctx
// is done or the hook stops.
func Listen(ctx context.Context, hotkeyConfig string, onHotkey func(), tap func(gohook.Event)) error {
	m, err := NewMatcher(hotkeyConfig)
	if err != nil {
		return err
	}

	evChan := gohook.Start()
	if evChan == nil {
		return fmt.Errorf("gohook.Start returned nil channel")
	}
	defer gohook.End()
	log.Printf("Hotkey: listening for %s", hotkeyConfig)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-evChan:
			if !ok {
				log.Printf("Hotkey: event channel closed")
				return nil
			}
			if m.Feed(ev) {
				log.Printf("Hotkey: %s activated", hotkeyConfig)
				if onHotkey != nil {
					go onHotkey()
				}
			}
			if tap != nil {
				tap(ev)
			}
		}
	}
}

// parseHotkey converts "Ctrl+Alt+q" to normalized key names.
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "win", "cmd", "super":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}
	return keys
}

var namedKeys = map[string][]uint16{
	"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":   {164, 165}, // VK_LMENU, VK_RMENU
	"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":   {91, 92},   // VK_LWIN, VK_RWIN

	"space":     {32},
	"enter":     {13},
	"return":    {13},
	"esc":       {27},
	"escape":    {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"del":       {46},
	"insert":    {45},
	"ins":       {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pgup":      {33},
	"pagedown":  {34},
	"pgdn":      {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

// keyNameToRawcodes maps a key name to Windows virtual key codes. Modifiers
// map to both left and right variants.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))
	switch keyName {
	case "win", "super":
		keyName = "cmd"
	}
	if codes, ok := namedKeys[keyName]; ok {
		return codes
	}

	if len(keyName) == 1 {
		c := keyName[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16('A' + c - 'a')}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c)}
		}
	}

	// F1..F24 are VK 0x70..0x87.
	if strings.HasPrefix(keyName, "f") {
		if n, err := strconv.Atoi(keyName[1:]); err == nil && n >= 1 && n <= 24 {
			return []uint16{uint16(111 + n)}
		}
	}

	log.Printf("Hotkey: unknown key name '%s', cannot map to rawcode", keyName)
	return nil
}
