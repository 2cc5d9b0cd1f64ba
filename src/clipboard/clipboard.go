package clipboard

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.design/x/clipboard"
)

var ErrUnavailable = errors.New("clipboard unavailable")

// Copier places text on the system clipboard.
type Copier interface {
	Copy(text string) error
}

var (
	writeMu  sync.Mutex
	initOnce sync.Once
	initErr  error
)

func Init() error {
	initOnce.Do(func() {
		initErr = clipboard.Init()
		if initErr != nil {
			log.Printf("Clipboard: native clipboard unavailable: %v", initErr)
		}
	})
	return initErr
}

// System is the primary mechanism backed by the native clipboard API.
type System struct{}

// Copy performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func (System) Copy(text string) error {
	if err := Init(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// Chain tries Primary and falls back to Fallback when the primary fails.
type Chain struct {
	Primary  Copier
	Fallback Copier
}

func (c Chain) Copy(text string) error {
	err := c.Primary.Copy(text)
	if err == nil {
		return nil
	}
	if c.Fallback == nil {
		return err
	}
	log.Printf("Clipboard: primary copy failed (%v), using fallback", err)
	if ferr := c.Fallback.Copy(text); ferr != nil {
		return fmt.Errorf("copy failed: primary: %v; fallback: %w", err, ferr)
	}
	return nil
}

// Default returns the native clipboard with the command-line fallback.
func Default() Copier {
	return Chain{Primary: System{}, Fallback: NewCommand()}
}
