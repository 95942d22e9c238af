// Package capability extracts capability calls from model output and runs
// them against a registry of named capabilities.
//
// A model asks for a capability either with a line directive
//
//	Tool: echo, args: {msg: 'hi'}
//
// or with a JSON object carrying tool_name and tool_args. Argument payloads
// are parsed strictly first and repaired when that fails; a directive whose
// payload cannot be recovered still yields a call, which the dispatcher turns
// into an error result for the model.
package capability

import (
	"context"

	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
)

// Hook runs before a capability. Errors are reported and ignored.
type Hook func(ctx context.Context, call protocol.Call, st *loop.State) error

// RunFunc executes a capability.
type RunFunc func(ctx context.Context, call protocol.Call, st *loop.State) (protocol.Result, error)

// AfterFunc runs once a result exists. It may enrich the result in place;
// errors are reported and the result is kept.
type AfterFunc func(ctx context.Context, call protocol.Call, st *loop.State, res *protocol.Result) error

// Capability is one executable instance. Before and After are optional.
type Capability struct {
	Before Hook
	Run    RunFunc
	After  AfterFunc
}

// Spec describes a registered capability. Factory is called once per call so
// an instance may keep per-call state. Limit caps the result message length
// in bytes; zero uses the dispatcher default.
type Spec struct {
	Name        string
	Description string
	Params      []protocol.Param
	Limit       int
	Disabled    bool
	Factory     func() Capability
}

// Static returns a factory that always hands out c.
func Static(c Capability) func() Capability {
	return func() Capability { return c }
}

// Simple returns a factory for a capability with only a Run step.
func Simple(run RunFunc) func() Capability {
	return Static(Capability{Run: run})
}
