package session

import "github.com/tailored-agentic-units/monologue/history"

// Config is the configuration snapshot a session is created with.
type Config struct {
	// Profile names the extension and capability profile the session runs.
	Profile string `json:"profile,omitempty"`
	// MaxIterations bounds the inner loop of one monologue.
	MaxIterations int `json:"max_iterations,omitempty"`
	// LogLimit caps the entries retained by the session log.
	LogLimit int            `json:"log_limit,omitempty"`
	History  history.Config `json:"history"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 25,
		LogLimit:      2000,
		History:       history.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Profile != "" {
		c.Profile = source.Profile
	}
	if source.MaxIterations > 0 {
		c.MaxIterations = source.MaxIterations
	}
	if source.LogLimit > 0 {
		c.LogLimit = source.LogLimit
	}
	c.History.Merge(&source.History)
}
