// Package session holds the isolated runtime state of each conversation and
// the registry that maps identifiers to it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/tailored-agentic-units/monologue/history"
	"github.com/tailored-agentic-units/monologue/memory"
)

// Status is the lifecycle flag of a session.
type Status string

const (
	StatusActive     Status = "active"
	StatusPaused     Status = "paused"
	StatusTerminated Status = "terminated"
)

// Session is the runtime state of one conversation or delegated sub-agent.
// The history is owned by the session; the vector handle is shared with the
// parent and every other session created from the same registry.
type Session struct {
	ID       string
	ParentID string
	Config   Config
	History  *history.History
	Log      *Log
	Vector   memory.Vector
	Created  time.Time

	mu     sync.Mutex
	status Status
	wake   chan struct{}
	data   map[string]any

	turn chan struct{}
}

func newSession(id, parentID string, cfg Config, h *history.History, v memory.Vector) *Session {
	return &Session{
		ID:       id,
		ParentID: parentID,
		Config:   cfg,
		History:  h,
		Log:      NewLog(cfg.LogLimit),
		Vector:   v,
		Created:  time.Now(),
		status:   StatusActive,
		wake:     make(chan struct{}),
		data:     make(map[string]any),
		turn:     make(chan struct{}, 1),
	}
}

// Status returns the current lifecycle flag.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Pause asks the running monologue to stop at its next checkpoint until
// Resume or Terminate. It has no effect on a terminated session.
func (s *Session) Pause() { s.transition(StatusActive, StatusPaused) }

// Resume releases a paused session.
func (s *Session) Resume() { s.transition(StatusPaused, StatusActive) }

// Terminate stops the running monologue at its next checkpoint.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatus(StatusTerminated)
}

// Activate clears a terminated flag so the session can serve a new
// monologue. A paused session stays paused.
func (s *Session) Activate() { s.transition(StatusTerminated, StatusActive) }

func (s *Session) transition(from, to Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == from {
		s.setStatus(to)
	}
}

func (s *Session) setStatus(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	close(s.wake)
	s.wake = make(chan struct{})
}

// Checkpoint returns nil when the session may proceed. It blocks while the
// session is paused and returns ErrTerminated or the context error when the
// monologue must stop.
func (s *Session) Checkpoint(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.mu.Lock()
		st, wake := s.status, s.wake
		s.mu.Unlock()

		switch st {
		case StatusTerminated:
			return ErrTerminated
		case StatusActive:
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

// Acquire takes the session's single monologue slot. With wait set it queues
// until the slot frees or ctx ends; otherwise it fails fast with ErrBusy.
func (s *Session) Acquire(ctx context.Context, wait bool) error {
	if !wait {
		select {
		case s.turn <- struct{}{}:
			return nil
		default:
			return ErrBusy
		}
	}
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot taken by Acquire.
func (s *Session) Release() {
	select {
	case <-s.turn:
	default:
	}
}

// Get returns a value from the session scratch data.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores a value in the session scratch data. Values persist across
// monologues for the life of the session.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Incr adds one to the integer counter at key and returns the new value.
func (s *Session) Incr(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.data[key].(int)
	n++
	s.data[key] = n
	return n
}
