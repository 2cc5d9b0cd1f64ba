package session

import (
	"bytes"
	"errors"
	"testing"

	"context-capture/src/singleinstance"
)

type recordingTarget struct {
	successes []string
	failures  []error
	failOnce  error
}

func (r *recordingTarget) OnSuccess(s string) error {
	r.successes = append(r.successes, s)
	return r.failOnce
}

func (r *recordingTarget) OnFailure(err error) error {
	r.failures = append(r.failures, err)
	return nil
}

func TestAttemptDeliversOnce(t *testing.T) {
	target := &recordingTarget{}
	a := NewAttempt(target)
	if a.ID == "" {
		t.Fatal("expected attempt id")
	}

	a.Succeed("summary")
	a.Fail(errors.New("late"))
	a.Cancel()

	if len(target.successes) != 1 || len(target.failures) != 0 {
		t.Fatalf("expected single success, got %v / %v", target.successes, target.failures)
	}
}

func TestAttemptCancel(t *testing.T) {
	target := &recordingTarget{}
	a := NewAttempt(target)
	a.Cancel()
	if len(target.failures) != 1 || !errors.Is(target.failures[0], ErrSelectionCancelled) {
		t.Fatalf("expected cancellation, got %v", target.failures)
	}
}

func TestAttemptDeliveryErrorReportsFailure(t *testing.T) {
	target := &recordingTarget{failOnce: errors.New("clipboard error")}
	NewAttempt(target).Succeed("x")
	if len(target.failures) != 1 {
		t.Fatalf("expected delivery failure to be reported, got %v", target.failures)
	}
}

func TestNilAttemptIsSafe(t *testing.T) {
	var a *Attempt
	a.Succeed("x")
	a.Cancel()
}

func TestStdoutTarget(t *testing.T) {
	var buf bytes.Buffer
	if err := (StdoutTarget{Writer: &buf}).OnSuccess("a\nb\nc"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "a\nb\nc" {
		t.Fatalf("got %q", buf.String())
	}
}

type fakeConn struct {
	success, errMsg string
	responded       bool
	closed          bool
}

func (c *fakeConn) Request() singleinstance.Request { return singleinstance.Request{} }
func (c *fakeConn) RespondSuccess(text string) error {
	c.success, c.responded = text, true
	return nil
}
func (c *fakeConn) RespondError(msg string) error {
	c.errMsg, c.responded = msg, true
	return nil
}
func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeCopier struct{ text string }

func (f *fakeCopier) Copy(text string) error {
	f.text = text
	return nil
}

func TestDelegatedTarget(t *testing.T) {
	conn := &fakeConn{}
	if err := (DelegatedTarget{Conn: conn, OutputToStdout: true}).OnSuccess("sum"); err != nil {
		t.Fatal(err)
	}
	if conn.success != "sum" || !conn.closed {
		t.Fatalf("unexpected conn state %+v", conn)
	}

	conn = &fakeConn{}
	copier := &fakeCopier{}
	if err := (DelegatedTarget{Conn: conn, Copier: copier}).OnSuccess("sum"); err != nil {
		t.Fatal(err)
	}
	if copier.text != "sum" || conn.success != "" || !conn.responded {
		t.Fatalf("expected clipboard delivery and empty success, got %+v", conn)
	}

	conn = &fakeConn{}
	_ = (DelegatedTarget{Conn: conn}).OnFailure(ErrSelectionCancelled)
	if conn.errMsg != "selection cancelled" || !conn.closed {
		t.Fatalf("unexpected conn state %+v", conn)
	}
}
