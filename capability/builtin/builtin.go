// Package builtin provides the capabilities every kernel ships with: the
// terminal response capability and the vector memory capabilities.
package builtin

import (
	"errors"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/memory"
	"github.com/tailored-agentic-units/monologue/session"
)

// ErrNoVector is returned by the memory capabilities when the session has no
// vector memory.
var ErrNoVector = errors.New("vector memory is not configured")

// Specs returns the built-in capability specs.
func Specs() []capability.Spec {
	return []capability.Spec{
		Response(),
		MemorySave(),
		MemoryLoad(),
		MemoryForget(),
	}
}

// Install adds the built-in capabilities to c.
func Install(c *capability.Catalog) {
	for _, s := range Specs() {
		c.AddSpec(s)
	}
}

func vectorOf(st *loop.State) (memory.Vector, error) {
	if st == nil || st.Session == nil || st.Session.Vector == nil {
		return nil, ErrNoVector
	}
	return st.Session.Vector, nil
}

func sessionID(st *loop.State) string {
	if st == nil || st.Session == nil {
		return ""
	}
	return st.Session.ID
}

func logInfo(st *loop.State, heading, content string) {
	if st != nil && st.Session != nil {
		st.Session.Log.Write(session.KindInfo, heading, content, nil)
	}
}
