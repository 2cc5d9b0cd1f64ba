package router

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"context-capture/src/messages"
)

const sendTimeout = 5 * time.Second

// ChannelInfo holds information about a context channel
type ChannelInfo struct {
	Channel   chan messages.Envelope
	ContextID string
	Active    bool
}

// Router carries envelopes between execution contexts.
type Router struct {
	channels    map[string]*ChannelInfo
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	logMessages bool
}

func NewRouter() *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		channels:    make(map[string]*ChannelInfo),
		ctx:         ctx,
		cancel:      cancel,
		logMessages: true,
	}
}

// Register registers a context with the router
func (r *Router) Register(contextID string, bufferSize int) (<-chan messages.Envelope, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[contextID]; exists {
		return nil, fmt.Errorf("context %s already registered", contextID)
	}

	ch := make(chan messages.Envelope, bufferSize)
	r.channels[contextID] = &ChannelInfo{
		Channel:   ch,
		ContextID: contextID,
		Active:    true,
	}

	log.Printf("Router: Registered context %s with buffer size %d", contextID, bufferSize)
	return ch, nil
}

// Unregister removes a context from the router
func (r *Router) Unregister(contextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, exists := r.channels[contextID]; exists {
		info.Active = false
		close(info.Channel)
		delete(r.channels, contextID)
		log.Printf("Router: Unregistered context %s", contextID)
	}
}

// Send delivers a fire-and-forget envelope (or one whose Reply the caller manages).
func (r *Router) Send(envelope messages.Envelope) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if envelope.ID == "" {
		envelope.ID = uuid.NewString()
	}
	if r.logMessages {
		log.Printf("Router: %s -> %s: %s [%s]", envelope.From, envelope.To, envelope.Message.Type(), envelope.ID)
	}

	info, exists := r.channels[envelope.To]
	if !exists {
		return fmt.Errorf("context %s not found", envelope.To)
	}
	if !info.Active {
		return fmt.Errorf("context %s is not active", envelope.To)
	}

	select {
	case info.Channel <- envelope:
		return nil
	case <-time.After(sendTimeout):
		return fmt.Errorf("timeout sending message to context %s", envelope.To)
	case <-r.ctx.Done():
		return fmt.Errorf("router is shutting down")
	}
}

// Request sends msg and waits for the single Response. Delivery failures are
// returned as errors; handler failures arrive as a failed Response.
func (r *Router) Request(ctx context.Context, from, to string, msg messages.Message) (messages.Response, error) {
	reply := make(chan messages.Response, 1)
	env := messages.Envelope{
		ID:      uuid.NewString(),
		From:    from,
		To:      to,
		Message: msg,
		Reply:   reply,
	}
	if err := r.Send(env); err != nil {
		return messages.Response{}, err
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-ctx.Done():
		return messages.Response{}, ctx.Err()
	case <-r.ctx.Done():
		return messages.Response{}, fmt.Errorf("router is shutting down")
	}
}

// Respond delivers resp to the envelope's requester, if any. Reply channels
// are buffered for one response so this never blocks.
func Respond(env messages.Envelope, resp messages.Response) {
	if env.Reply == nil {
		return
	}
	select {
	case env.Reply <- resp:
	default:
		log.Printf("Router: dropped duplicate response for %s [%s]", env.Message.Type(), env.ID)
	}
}

// Contexts returns the active context ids, sorted.
func (r *Router) Contexts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []string
	for id, info := range r.channels {
		if info.Active {
			active = append(active, id)
		}
	}
	sort.Strings(active)
	return active
}

// SetMessageLogging enables or disables message logging
func (r *Router) SetMessageLogging(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logMessages = enabled
}

// Shutdown gracefully shuts down the router
func (r *Router) Shutdown() {
	log.Printf("Router: Shutting down...")

	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, info := range r.channels {
		if info.Active {
			info.Active = false
			close(info.Channel)
			log.Printf("Router: Closed channel for context %s", id)
		}
	}
	r.channels = make(map[string]*ChannelInfo)

	log.Printf("Router: Shutdown complete")
}

// IsHealthy returns true if the router is functioning properly
func (r *Router) IsHealthy() bool {
	select {
	case <-r.ctx.Done():
		return false
	default:
		return true
	}
}
