package model

import (
	"context"
	"errors"
)

// Stream is a handle on an in-flight completion. Chunks is closed when the
// producer finishes; Err is valid after that.
type Stream struct {
	chunks chan Chunk
	done   chan struct{}
	err    error
}

// Producer writes chunks through send until the completion ends. send fails
// once the consumer's context is done.
type Producer func(ctx context.Context, send func(Chunk) error) error

// NewStream runs produce in its own goroutine and returns the handle
// draining it.
func NewStream(ctx context.Context, produce Producer) *Stream {
	s := &Stream{
		chunks: make(chan Chunk),
		done:   make(chan struct{}),
	}

	send := func(c Chunk) error {
		if c.Text == "" {
			return nil
		}
		select {
		case s.chunks <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(s.done)
		defer close(s.chunks)
		defer func() {
			if r := recover(); r != nil {
				s.err = &Error{Kind: KindFatal, Err: errors.New("model stream panicked")}
			}
		}()
		s.err = produce(ctx, send)
	}()
	return s
}

// Chunks returns the channel of streamed increments.
func (s *Stream) Chunks() <-chan Chunk { return s.chunks }

// Err blocks until the producer has finished and returns its error.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}
