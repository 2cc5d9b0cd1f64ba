// Package process supervises the long-running goroutines of the resident
// app: the background orchestrator, the page agent and the HTTP bridge.
package process

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// RunFunc is a process body. It should return when ctx is done.
type RunFunc func(ctx context.Context) error

// State represents the current state of a process
type State int

const (
	StateStopped State = iota
	StateRunning
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Info is a snapshot of one supervised process.
type Info struct {
	Name       string
	State      State
	StartTime  time.Time
	CrashCount int
	LastError  error
}

// Supervisor restarts processes that fail or panic while its context is alive.
type Supervisor struct {
	// MaxRestarts caps restarts per process. Backoff doubles after each crash.
	MaxRestarts int
	Backoff     time.Duration

	mu     sync.RWMutex
	procs  map[string]*Info
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		MaxRestarts: 5,
		Backoff:     200 * time.Millisecond,
		procs:       make(map[string]*Info),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Go registers name and starts run in its own goroutine.
func (s *Supervisor) Go(name string, run RunFunc) error {
	s.mu.Lock()
	if _, exists := s.procs[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("process %s already registered", name)
	}
	s.procs[name] = &Info{Name: name}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(name, run)
	}()
	return nil
}

func (s *Supervisor) loop(name string, run RunFunc) {
	for {
		s.setState(name, StateRunning, nil)
		err := s.runOnce(name, run)
		if s.ctx.Err() != nil {
			s.setState(name, StateStopped, nil)
			return
		}
		if err == nil {
			log.Printf("Process %s exited", name)
			s.setState(name, StateStopped, nil)
			return
		}

		crashes := s.setState(name, StateCrashed, err)
		log.Printf("Process %s crashed: %v (crash count: %d)", name, err, crashes)
		if crashes > s.MaxRestarts {
			log.Printf("Process %s exceeded %d restarts, giving up", name, s.MaxRestarts)
			return
		}

		delay := s.Backoff << (crashes - 1)
		select {
		case <-s.ctx.Done():
			s.setState(name, StateStopped, nil)
			return
		case <-time.After(delay):
		}
		log.Printf("Restarting process %s", name)
	}
}

func (s *Supervisor) runOnce(name string, run RunFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return run(s.ctx)
}

// setState records a transition and returns the crash count.
func (s *Supervisor) setState(name string, st State, err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.procs[name]
	info.State = st
	switch st {
	case StateRunning:
		info.StartTime = time.Now()
	case StateCrashed:
		info.CrashCount++
		info.LastError = err
	}
	return info.CrashCount
}

// Status returns a snapshot of every process, sorted by name.
func (s *Supervisor) Status() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.procs))
	for _, info := range s.procs {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop cancels every process and waits for them to return.
func (s *Supervisor) Stop() {
	log.Printf("Stopping all processes...")
	s.cancel()
	s.wg.Wait()
	log.Printf("All processes stopped")
}
