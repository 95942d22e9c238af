// Package observability carries the structured events every subsystem emits:
// monologue runs, extension points, capability dispatch and history
// compression. Levels follow OpenTelemetry severity numbers so an event maps
// onto a span event or a log record without translation.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Level is an event severity in OTel SeverityNumber units.
type Level int

const (
	LevelVerbose Level = 5  // DEBUG range
	LevelInfo    Level = 9  // INFO range
	LevelWarning Level = 13 // WARN range
	LevelError   Level = 17 // ERROR range
)

// String returns the OTel severity text.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps l onto the slog level of the same range.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// ParseLevel reads a level name as written in configuration. The empty
// string is LevelVerbose.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "verbose", "debug":
		return LevelVerbose, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

// EventType names an event. Packages declare their own under a dotted
// prefix, e.g. "kernel.run.start" or "history.compress".
type EventType string

// Event is one observation. Source is the emitting function and Data its
// attributes; a "session_id" key ties the event to a session.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// SessionID returns the session the event belongs to, if any.
func (e Event) SessionID() string {
	id, _ := e.Data["session_id"].(string)
	return id
}

// Observer receives events. OnEvent is called synchronously on the emitting
// goroutine and must not block.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEvent(ctx context.Context, event Event) { f(ctx, event) }

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}

// Filter forwards events at or above floor to next.
func Filter(floor Level, next Observer) Observer {
	if floor <= LevelVerbose {
		return next
	}
	return ObserverFunc(func(ctx context.Context, event Event) {
		if event.Level >= floor {
			next.OnEvent(ctx, event)
		}
	})
}
