package builtin

import (
	"context"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/extension"
	"github.com/tailored-agentic-units/monologue/prompts"
)

// MainPrompt adds the agent's main system prompt.
func MainPrompt(lib *prompts.Library, agentName string) extension.Extension {
	return extension.Func(func(_ context.Context, st *loop.State) (*loop.State, error) {
		text, err := lib.Render(prompts.MainPrompt, map[string]string{"agent_name": agentName})
		if err != nil {
			return nil, err
		}
		st.AddSystem(text)
		return st, nil
	})
}

// CapabilitiesPrompt lists the registered capabilities in the system
// prompt.
func CapabilitiesPrompt(lib *prompts.Library, reg *capability.Registry) extension.Extension {
	return extension.Func(func(_ context.Context, st *loop.State) (*loop.State, error) {
		text, err := lib.Render(prompts.CapabilitiesPrompt, map[string]string{"capabilities": reg.Describe()})
		if err != nil {
			return nil, err
		}
		st.AddSystem(text)
		return st, nil
	})
}
