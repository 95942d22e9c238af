package model

import "fmt"

// Config selects and tunes a provider model.
type Config struct {
	Provider    string      `json:"provider,omitempty"`
	Name        string      `json:"name,omitempty"`
	APIKeyEnv   string      `json:"api_key_env,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
	Retry       RetryPolicy `json:"retry"`
}

// DefaultConfig returns the default chat model configuration.
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Name:        "gpt-4o-mini",
		APIKeyEnv:   "OPENAI_API_KEY",
		MaxTokens:   4096,
		Temperature: 0.2,
		Retry:       DefaultRetryPolicy(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.APIKeyEnv != "" {
		c.APIKeyEnv = source.APIKeyEnv
	}
	if source.MaxTokens > 0 {
		c.MaxTokens = source.MaxTokens
	}
	if source.Temperature > 0 {
		c.Temperature = source.Temperature
	}
	if source.Retry.MaxRetries > 0 {
		c.Retry.MaxRetries = source.Retry.MaxRetries
	}
	if source.Retry.BaseDelay > 0 {
		c.Retry.BaseDelay = source.Retry.BaseDelay
	}
	if source.Retry.MaxDelay > 0 {
		c.Retry.MaxDelay = source.Retry.MaxDelay
	}
	if source.Retry.Multiplier > 0 {
		c.Retry.Multiplier = source.Retry.Multiplier
	}
}

// New creates a retrying provider model from cfg.
func New(cfg Config) (Model, error) {
	if cfg.Provider == "" || cfg.Name == "" {
		return nil, fmt.Errorf("model provider and name are required")
	}
	g, err := NewGollm(cfg)
	if err != nil {
		return nil, err
	}
	return WithRetry(g, cfg.Retry), nil
}
