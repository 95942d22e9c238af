package kernel

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/tailored-agentic-units/monologue/evolution"
	"github.com/tailored-agentic-units/monologue/memory"
	"github.com/tailored-agentic-units/monologue/model"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/session"
)

// Busy policies for a message arriving while its session is running.
const (
	BusyQueue  = "queue"
	BusyReject = "reject"
)

// Config holds initialization parameters for all kernel subsystems.
// Each subsystem section delegates to that subsystem's constructor.
type Config struct {
	Model model.Config `json:"model"`
	// Utility is the model used for summaries and analysis. An empty
	// provider reuses Model.
	Utility   model.Config     `json:"utility"`
	Session   session.Config   `json:"session"`
	Memory    memory.Config    `json:"memory"`
	Evolution evolution.Config `json:"evolution"`
	// Observability selects the observers kernel events are sent to.
	Observability observability.Config `json:"observability"`
	// Busy is BusyQueue or BusyReject.
	Busy      string `json:"busy,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	// Profile is the path of a YAML profile loaded at startup.
	Profile string `json:"profile,omitempty"`
	// PromptLayers are the prompt library layers, most specific first.
	PromptLayers []string `json:"prompt_layers,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Model:         model.DefaultConfig(),
		Session:       session.DefaultConfig(),
		Memory:        memory.DefaultConfig(),
		Evolution:     evolution.DefaultConfig(),
		Observability: observability.DefaultConfig(),
		Busy:          BusyQueue,
		AgentName:     "Agent",
		PromptLayers:  []string{"default"},
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Model.Merge(&source.Model)
	c.Utility.Merge(&source.Utility)
	c.Session.Merge(&source.Session)
	c.Memory.Merge(&source.Memory)
	c.Evolution.Merge(&source.Evolution)
	c.Observability.Merge(&source.Observability)

	if source.Busy != "" {
		c.Busy = source.Busy
	}
	if source.AgentName != "" {
		c.AgentName = source.AgentName
	}
	if source.Profile != "" {
		c.Profile = source.Profile
	}
	if len(source.PromptLayers) > 0 {
		c.PromptLayers = source.PromptLayers
	}
}

// Validate reports configuration errors New cannot recover from.
func (c *Config) Validate() error {
	switch c.Busy {
	case BusyQueue, BusyReject:
	default:
		return fmt.Errorf("unknown busy policy %q", c.Busy)
	}
	if c.Session.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive")
	}
	return nil
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config. Comments and trailing commas are allowed.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
