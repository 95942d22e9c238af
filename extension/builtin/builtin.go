// Package builtin provides the extensions a kernel loads by default:
// system prompt assembly, memory recall, log streaming, history compression
// and solution memorization.
package builtin

import (
	_ "embed"
	"fmt"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/extension"
	"github.com/tailored-agentic-units/monologue/prompts"
)

//go:embed defaults.yaml
var defaultManifest []byte

// Deps are the collaborators the built-in extensions read from.
type Deps struct {
	Prompts      *prompts.Library
	Capabilities *capability.Registry
	AgentName    string
}

// Install adds the built-in extension factories to c.
func Install(c *extension.Catalog, deps Deps) {
	if deps.Prompts == nil {
		deps.Prompts = prompts.NewLibrary(nil)
	}
	if deps.AgentName == "" {
		deps.AgentName = "Agent"
	}
	c.Add("main_prompt", func(map[string]any) (extension.Extension, error) {
		return MainPrompt(deps.Prompts, deps.AgentName), nil
	})
	c.Add("capabilities_prompt", func(map[string]any) (extension.Extension, error) {
		if deps.Capabilities == nil {
			return nil, fmt.Errorf("capabilities_prompt needs a capability registry")
		}
		return CapabilitiesPrompt(deps.Prompts, deps.Capabilities), nil
	})
	c.Add("recall_memories", func(opts map[string]any) (extension.Extension, error) {
		return RecallMemories(deps.Prompts, RecallOptions{
			Interval:  intOption(opts, "interval", 3),
			Limit:     intOption(opts, "limit", 5),
			Threshold: floatOption(opts, "threshold", 0.6),
		}), nil
	})
	c.Add("stream_log", func(opts map[string]any) (extension.Extension, error) {
		kind, _ := opts["kind"].(string)
		return StreamLog(kind)
	})
	c.Add("organize_history", func(map[string]any) (extension.Extension, error) {
		return OrganizeHistory(), nil
	})
	c.Add("memorize_solution", func(opts map[string]any) (extension.Extension, error) {
		return MemorizeSolution(intOption(opts, "min_length", 1)), nil
	})
}

// Defaults builds the default registrations from catalog c, which must
// hold the built-in factories.
func Defaults(c *extension.Catalog) ([]extension.Registration, error) {
	m, err := extension.ParseManifest(defaultManifest)
	if err != nil {
		return nil, err
	}
	return m.Registrations(c, extension.ScopeDefault)
}

func intOption(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func floatOption(opts map[string]any, key string, def float64) float64 {
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
