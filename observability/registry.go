package observability

import (
	"fmt"
	"log/slog"
	"sync"
)

// Factory builds a named observer around the process logger.
type Factory func(logger *slog.Logger) Observer

var (
	mutex     sync.RWMutex
	factories = map[string]Factory{
		"noop": func(*slog.Logger) Observer { return NoOpObserver{} },
		"slog": func(l *slog.Logger) Observer { return NewSlogObserver(l) },
		"otel": func(*slog.Logger) Observer { return NewOTelObserver() },
	}
)

// Register adds or replaces a named observer factory.
func Register(name string, f Factory) {
	mutex.Lock()
	defer mutex.Unlock()
	factories[name] = f
}

// Config selects the observers a kernel reports to.
type Config struct {
	// Observers are registered names: "slog", "otel", "noop" or any
	// name added with Register.
	Observers []string `json:"observers,omitempty"`
	// Level drops events below it: verbose, info, warning or error.
	Level string `json:"level,omitempty"`
}

// DefaultConfig logs info and above through slog.
func DefaultConfig() Config {
	return Config{Observers: []string{"slog"}, Level: "info"}
}

// Merge applies the non-zero fields of source.
func (c *Config) Merge(source *Config) {
	if len(source.Observers) > 0 {
		c.Observers = source.Observers
	}
	if source.Level != "" {
		c.Level = source.Level
	}
}

// New builds the observer cfg describes. Events pass the level filter and
// then fan out to every named observer.
func New(cfg Config, logger *slog.Logger) (Observer, error) {
	floor, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	mutex.RLock()
	defer mutex.RUnlock()

	observers := make([]Observer, 0, len(cfg.Observers))
	for _, name := range cfg.Observers {
		f, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown observer: %s", name)
		}
		observers = append(observers, f(logger))
	}

	multi := NewMultiObserver(observers...)
	switch multi.Len() {
	case 0:
		return NoOpObserver{}, nil
	case 1:
		return Filter(floor, multi.observers[0]), nil
	default:
		return Filter(floor, multi), nil
	}
}
