package history

// Config holds compression and persistence parameters for a History.
type Config struct {
	// ContextWindow is the model's context budget in tokens.
	ContextWindow int `json:"context_window,omitempty"`
	// Threshold is the fraction of ContextWindow above which the history
	// needs compression.
	Threshold float64 `json:"threshold,omitempty"`
	// KeepRecent is the number of most recent turns never summarized.
	KeepRecent int `json:"keep_recent,omitempty"`
	// TopicFraction and BulkFraction budget the topic digests and the
	// rolling bulk digest as fractions of ContextWindow.
	TopicFraction float64 `json:"topic_fraction,omitempty"`
	BulkFraction  float64 `json:"bulk_fraction,omitempty"`
	// Estimator is "heuristic" or "tiktoken".
	Estimator string        `json:"estimator,omitempty"`
	Journal   JournalConfig `json:"journal"`
}

// JournalConfig selects where turn logs and digests are persisted.
type JournalConfig struct {
	// Kind is "", "file" or "redis". Empty disables persistence.
	Kind     string `json:"kind,omitempty"`
	Path     string `json:"path,omitempty"`
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// DefaultConfig returns the default history configuration.
func DefaultConfig() Config {
	return Config{
		ContextWindow: 8192,
		Threshold:     0.7,
		KeepRecent:    10,
		TopicFraction: 0.3,
		BulkFraction:  0.1,
		Estimator:     "heuristic",
		Journal:       JournalConfig{Prefix: "monologue"},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.ContextWindow > 0 {
		c.ContextWindow = source.ContextWindow
	}
	if source.Threshold > 0 {
		c.Threshold = source.Threshold
	}
	if source.KeepRecent > 0 {
		c.KeepRecent = source.KeepRecent
	}
	if source.TopicFraction > 0 {
		c.TopicFraction = source.TopicFraction
	}
	if source.BulkFraction > 0 {
		c.BulkFraction = source.BulkFraction
	}
	if source.Estimator != "" {
		c.Estimator = source.Estimator
	}

	j, s := &c.Journal, &source.Journal
	if s.Kind != "" {
		j.Kind = s.Kind
	}
	if s.Path != "" {
		j.Path = s.Path
	}
	if s.Addr != "" {
		j.Addr = s.Addr
	}
	if s.Password != "" {
		j.Password = s.Password
	}
	if s.DB > 0 {
		j.DB = s.DB
	}
	if s.Prefix != "" {
		j.Prefix = s.Prefix
	}
}

func (c Config) topicBudget() int { return int(float64(c.ContextWindow) * c.TopicFraction) }
func (c Config) bulkBudget() int  { return int(float64(c.ContextWindow) * c.BulkFraction) }
