package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tailored-agentic-units/monologue/session"
)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	r := session.NewRegistry(session.DefaultConfig())
	s, err := r.Create(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s
}

func TestSession_StatusTransitions(t *testing.T) {
	s := newSession(t)

	steps := []struct {
		name string
		do   func()
		want session.Status
	}{
		{"starts active", func() {}, session.StatusActive},
		{"resume while active is a no-op", s.Resume, session.StatusActive},
		{"pause", s.Pause, session.StatusPaused},
		{"resume", s.Resume, session.StatusActive},
		{"terminate", s.Terminate, session.StatusTerminated},
		{"pause after terminate is ignored", s.Pause, session.StatusTerminated},
		{"activate", s.Activate, session.StatusActive},
	}

	for _, st := range steps {
		st.do()
		if got := s.Status(); got != st.want {
			t.Fatalf("%s: status = %s, want %s", st.name, got, st.want)
		}
	}
}

func TestSession_Checkpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("active proceeds", func(t *testing.T) {
		if err := newSession(t).Checkpoint(ctx); err != nil {
			t.Errorf("Checkpoint() error = %v", err)
		}
	})

	t.Run("terminated stops", func(t *testing.T) {
		s := newSession(t)
		s.Terminate()
		if err := s.Checkpoint(ctx); !errors.Is(err, session.ErrTerminated) {
			t.Errorf("Checkpoint() error = %v, want ErrTerminated", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if err := newSession(t).Checkpoint(cctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Checkpoint() error = %v, want context.Canceled", err)
		}
	})

	t.Run("paused blocks until resume", func(t *testing.T) {
		s := newSession(t)
		s.Pause()

		done := make(chan error, 1)
		go func() { done <- s.Checkpoint(ctx) }()

		select {
		case err := <-done:
			t.Fatalf("Checkpoint() returned while paused: %v", err)
		case <-time.After(20 * time.Millisecond):
		}

		s.Resume()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Checkpoint() after resume = %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Checkpoint() did not return after Resume")
		}
	})

	t.Run("paused then terminated", func(t *testing.T) {
		s := newSession(t)
		s.Pause()

		done := make(chan error, 1)
		go func() { done <- s.Checkpoint(ctx) }()
		s.Terminate()

		select {
		case err := <-done:
			if !errors.Is(err, session.ErrTerminated) {
				t.Errorf("Checkpoint() = %v, want ErrTerminated", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Checkpoint() did not return after Terminate")
		}
	})
}

func TestSession_Acquire(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()

	if err := s.Acquire(ctx, false); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if err := s.Acquire(ctx, false); !errors.Is(err, session.ErrBusy) {
		t.Errorf("second Acquire() error = %v, want ErrBusy", err)
	}

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := s.Acquire(tctx, true); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("queued Acquire() error = %v, want deadline", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := s.Acquire(ctx, true); err == nil {
			close(acquired)
		}
	}()
	s.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("queued Acquire() did not get the slot after Release")
	}
}

func TestSession_Data(t *testing.T) {
	s := newSession(t)

	if _, ok := s.Get("missing"); ok {
		t.Error("Get() found a missing key")
	}
	s.Set("profile", "researcher")
	if v, _ := s.Get("profile"); v != "researcher" {
		t.Errorf("Get() = %v", v)
	}

	for want := 1; want <= 3; want++ {
		if got := s.Incr("monologues"); got != want {
			t.Errorf("Incr() = %d, want %d", got, want)
		}
	}
}
