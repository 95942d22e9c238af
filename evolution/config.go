package evolution

// Config tunes when and how the history is analyzed.
type Config struct {
	Enabled bool `json:"enabled,omitempty"`
	// TriggerInterval is the number of monologues between automatic runs.
	TriggerInterval int `json:"trigger_interval,omitempty"`
	// MinInteractions is the history length below which analysis is skipped.
	MinInteractions int `json:"min_interactions,omitempty"`
	// MaxHistory caps the number of recent turns sent for analysis.
	MaxHistory int `json:"max_history,omitempty"`
	// ConfidenceThreshold drops prompt refinements scored below it.
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	// AutoApply writes retained refinements to the prompt layer.
	AutoApply bool `json:"auto_apply,omitempty"`
	// Layer is the prompt layer refinements are applied to.
	Layer string `json:"layer,omitempty"`
}

// DefaultConfig returns the default evolution configuration. Analysis is
// disabled until explicitly enabled.
func DefaultConfig() Config {
	return Config{
		TriggerInterval:     10,
		MinInteractions:     20,
		MaxHistory:          100,
		ConfidenceThreshold: 0.7,
		Layer:               "default",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Enabled {
		c.Enabled = true
	}
	if source.TriggerInterval > 0 {
		c.TriggerInterval = source.TriggerInterval
	}
	if source.MinInteractions > 0 {
		c.MinInteractions = source.MinInteractions
	}
	if source.MaxHistory > 0 {
		c.MaxHistory = source.MaxHistory
	}
	if source.ConfidenceThreshold > 0 {
		c.ConfidenceThreshold = source.ConfidenceThreshold
	}
	if source.AutoApply {
		c.AutoApply = true
	}
	if source.Layer != "" {
		c.Layer = source.Layer
	}
}
