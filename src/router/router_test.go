package router

import (
	"context"
	"testing"
	"time"

	"context-capture/src/messages"
)

func TestRegisterTwiceFails(t *testing.T) {
	r := NewRouter()
	defer r.Shutdown()

	if _, err := r.Register("page:1", 1); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Register("page:1", 1); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRequestResponse(t *testing.T) {
	r := NewRouter()
	defer r.Shutdown()

	ch, err := r.Register(messages.ContextBackground, 4)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for env := range ch {
			if env.ID == "" {
				t.Error("expected envelope id")
			}
			Respond(env, messages.OK(messages.Ack{Success: true}))
			Respond(env, messages.Fail("second response is dropped"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := r.Request(ctx, "test", messages.ContextBackground, messages.GetSettings{})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Failed() {
		t.Fatalf("unexpected failure: %s", resp.Err)
	}
}

func TestRequestUnknownContext(t *testing.T) {
	r := NewRouter()
	defer r.Shutdown()

	if _, err := r.Request(context.Background(), "test", "page:9", messages.StartCapture{}); err == nil {
		t.Fatal("expected error for unregistered context")
	}
}

func TestRequestHonorsContext(t *testing.T) {
	r := NewRouter()
	defer r.Shutdown()

	if _, err := r.Register("silent", 1); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := r.Request(ctx, "test", "silent", messages.StartCapture{}); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestShutdown(t *testing.T) {
	r := NewRouter()
	ch, _ := r.Register("a", 1)
	r.Shutdown()

	if r.IsHealthy() {
		t.Error("router should be unhealthy after shutdown")
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if len(r.Contexts()) != 0 {
		t.Error("expected no contexts after shutdown")
	}
}

func TestContextsSorted(t *testing.T) {
	r := NewRouter()
	defer r.Shutdown()
	r.Register("page:2", 1)
	r.Register("background", 1)
	r.Unregister("page:2")
	r.Register("page:1", 1)

	got := r.Contexts()
	if len(got) != 2 || got[0] != "background" || got[1] != "page:1" {
		t.Fatalf("unexpected contexts %v", got)
	}
}
