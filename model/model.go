// Package model is the boundary to the language model. The kernel consumes
// Model; Gollm adapts real providers and Scripted replays canned replies for
// tests.
package model

import (
	"context"
	"strings"

	"github.com/tailored-agentic-units/monologue/core/protocol"
)

// Model streams a completion for a prompt.
type Model interface {
	Stream(ctx context.Context, p Prompt) (*Stream, error)
}

// Prompt is the assembled input of one model call.
type Prompt struct {
	System []string
	Turns  []protocol.Turn
}

// SystemText joins the system fragments.
func (p Prompt) SystemText() string {
	return strings.Join(p.System, "\n\n")
}

// ConversationText renders the turns one per block.
func (p Prompt) ConversationText() string {
	parts := make([]string, len(p.Turns))
	for i, t := range p.Turns {
		parts[i] = t.Text()
	}
	return strings.Join(parts, "\n\n")
}

// ChunkKind tells reasoning output apart from the response proper.
type ChunkKind string

const (
	ChunkReasoning ChunkKind = "reasoning"
	ChunkResponse  ChunkKind = "response"
)

// Chunk is one increment of streamed output.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// Output is a fully drained stream.
type Output struct {
	Reasoning string
	Response  string
}

// Complete drains a stream from m, calling fn for every chunk as it arrives,
// and returns the accumulated output.
func Complete(ctx context.Context, m Model, p Prompt, fn func(Chunk)) (Output, error) {
	var out Output
	s, err := m.Stream(ctx, p)
	if err != nil {
		return out, err
	}

	var reasoning, response strings.Builder
	for c := range s.Chunks() {
		if fn != nil {
			fn(c)
		}
		if c.Kind == ChunkReasoning {
			reasoning.WriteString(c.Text)
		} else {
			response.WriteString(c.Text)
		}
	}
	out.Reasoning = reasoning.String()
	out.Response = response.String()
	return out, s.Err()
}
