package model

import (
	"context"
	"slices"
	"sync"
)

// Reply is one canned completion.
type Reply struct {
	Reasoning string
	Response  string
	// ChunkSize splits the text into chunks of this many bytes; zero sends
	// each part whole.
	ChunkSize int
	// Err fails the call before any output.
	Err error
	// StreamErr ends the stream with an error after the output.
	StreamErr error
	// OnCall runs when the reply is served, before streaming.
	OnCall func()
}

// Scripted is a Model that serves replies in order and repeats the last one
// once the script runs out. It records every prompt it receives.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	prompts []Prompt
}

// NewScripted creates a Scripted model.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Add appends replies to the script.
func (s *Scripted) Add(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

// Calls returns the number of Stream calls served.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns every prompt received, in order.
func (s *Scripted) Prompts() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.prompts)
}

func (s *Scripted) Stream(ctx context.Context, p Prompt) (*Stream, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, p)
	if len(s.replies) == 0 {
		s.mu.Unlock()
		return nil, &Error{Kind: KindFatal, Err: ErrScriptExhausted}
	}
	r := s.replies[min(s.next, len(s.replies)-1)]
	s.next++
	s.mu.Unlock()

	if r.OnCall != nil {
		r.OnCall()
	}
	if r.Err != nil {
		return nil, r.Err
	}

	return NewStream(ctx, func(ctx context.Context, send func(Chunk) error) error {
		for _, part := range []Chunk{{ChunkReasoning, r.Reasoning}, {ChunkResponse, r.Response}} {
			for _, piece := range split(part.Text, r.ChunkSize) {
				if err := send(Chunk{Kind: part.Kind, Text: piece}); err != nil {
					return err
				}
			}
		}
		return r.StreamErr
	}), nil
}

func split(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	return append(out, text)
}
