// Package loop defines the mutable record threaded through one iteration of
// a monologue and handed to every extension.
package loop

import (
	"maps"
	"slices"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/session"
)

// State is created fresh for each iteration. Extensions may mutate it in
// place or return a replacement.
type State struct {
	Session   *session.Session
	Input     protocol.UserMessage
	Iteration int

	// SystemPrompt holds system prompt fragments in order.
	SystemPrompt []string
	// Prompt is the windowed history sent to the model.
	Prompt []protocol.Turn

	// UserText is pending user-visible text.
	UserText string

	// Chunk is the stream fragment being delivered at a stream point.
	Chunk     string
	Reasoning string
	Response  string

	Calls   []protocol.Call
	Results []protocol.Result

	// Turn is the turn being appended at the history append points.
	Turn *protocol.Turn
	// Produced lists turns appended during this iteration.
	Produced []protocol.Turn

	// Final is the monologue's response, set once a terminal result is seen.
	Final string
	// Err is the error ending the monologue, visible at monologue-end.
	Err error

	// Extras is a free-form side channel between extensions.
	Extras map[string]any
}

// New creates the state for one iteration of a monologue.
func New(s *session.Session, input protocol.UserMessage, iteration int) *State {
	return &State{
		Session:   s,
		Input:     input,
		Iteration: iteration,
		Extras:    make(map[string]any),
	}
}

// Clone returns a copy sharing no slices, maps or turns with st. Session
// and Err are shared; values stored in Extras are copied shallowly.
func (st *State) Clone() *State {
	c := *st
	c.SystemPrompt = slices.Clone(st.SystemPrompt)
	c.Prompt = cloneTurns(st.Prompt)
	c.Produced = cloneTurns(st.Produced)
	c.Results = slices.Clone(st.Results)
	c.Input.Attachments = slices.Clone(st.Input.Attachments)
	if st.Calls != nil {
		c.Calls = make([]protocol.Call, len(st.Calls))
		for i, call := range st.Calls {
			call.Args = maps.Clone(call.Args)
			c.Calls[i] = call
		}
	}
	if st.Turn != nil {
		t := st.Turn.Clone()
		c.Turn = &t
	}
	c.Extras = maps.Clone(st.Extras)
	if c.Extras == nil {
		c.Extras = make(map[string]any)
	}
	return &c
}

// AddSystem appends a system prompt fragment, ignoring empty ones.
func (st *State) AddSystem(fragment string) {
	if fragment != "" {
		st.SystemPrompt = append(st.SystemPrompt, fragment)
	}
}

// Terminated reports whether any result of this iteration ends the
// monologue.
func (st *State) Terminated() bool {
	for _, r := range st.Results {
		if r.Terminate {
			return true
		}
	}
	return false
}

func cloneTurns(turns []protocol.Turn) []protocol.Turn {
	if turns == nil {
		return nil
	}
	out := make([]protocol.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
