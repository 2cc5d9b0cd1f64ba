package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"context-capture/src/clipboard"
	"context-capture/src/singleinstance"
)

var ErrSelectionCancelled = errors.New("selection cancelled")

// Target receives the outcome of one capture attempt.
type Target interface {
	OnSuccess(summary string) error
	OnFailure(err error) error
}

// Attempt is the state of one capture, from selection start to its outcome.
// It is owned by whichever component is active and reports to its Target
// exactly once.
type Attempt struct {
	ID     string
	target Target
	once   sync.Once
}

func NewAttempt(target Target) *Attempt {
	return &Attempt{ID: uuid.NewString(), target: target}
}

// Succeed delivers the summary. Later calls are ignored.
func (a *Attempt) Succeed(summary string) {
	if a == nil {
		return
	}
	a.once.Do(func() {
		if a.target == nil {
			return
		}
		if err := a.target.OnSuccess(summary); err != nil {
			log.Printf("Session %s: delivery error: %v", a.ID, err)
			_ = a.target.OnFailure(err)
		}
	})
}

// Fail delivers err. Later calls are ignored.
func (a *Attempt) Fail(err error) {
	if a == nil {
		return
	}
	a.once.Do(func() {
		if a.target == nil {
			return
		}
		if err := a.target.OnFailure(err); err != nil {
			log.Printf("Session %s: failure delivery error: %v", a.ID, err)
		}
	})
}

// Cancel reports ErrSelectionCancelled.
func (a *Attempt) Cancel() { a.Fail(ErrSelectionCancelled) }

type ClipboardTarget struct {
	Copier clipboard.Copier
}

func (t ClipboardTarget) OnSuccess(summary string) error {
	c := t.Copier
	if c == nil {
		c = clipboard.Default()
	}
	return c.Copy(summary)
}

func (ClipboardTarget) OnFailure(err error) error {
	return nil
}

type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(summary string) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprint(w, summary)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}

// DelegatedTarget answers a --run-once client over its singleinstance connection
// and closes it afterwards.
type DelegatedTarget struct {
	Conn           singleinstance.Conn
	OutputToStdout bool
	Copier         clipboard.Copier
}

func (t DelegatedTarget) OnSuccess(summary string) error {
	if t.Conn == nil {
		return errors.New("delegated target missing connection")
	}
	if t.OutputToStdout {
		defer t.Conn.Close()
		return t.Conn.RespondSuccess(summary)
	}
	if err := (ClipboardTarget{Copier: t.Copier}).OnSuccess(summary); err != nil {
		return fmt.Errorf("clipboard error: %w", err)
	}
	defer t.Conn.Close()
	return t.Conn.RespondSuccess("")
}

func (t DelegatedTarget) OnFailure(err error) error {
	if t.Conn == nil {
		return nil
	}
	defer t.Conn.Close()
	if err == nil {
		return t.Conn.RespondError("unknown session error")
	}
	return t.Conn.RespondError(err.Error())
}
