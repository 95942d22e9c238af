// Package history owns the ordered turn log of one session.
//
// Every appended turn receives the next ordinal. Compression replaces
// contiguous ranges of older turns with single digest turns whose ordinal is
// the first ordinal of the range, so for any two adjacent turns a and b,
// b.Ordinal == a.Last()+1 always holds.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/observability"
)

// History is the turn log of a single session. All methods are safe for
// concurrent use.
type History struct {
	sessionID  string
	cfg        Config
	est        Estimator
	summarizer Summarizer
	journal    Journal
	observer   observability.Observer

	mu    sync.RWMutex
	turns []protocol.Turn
	next  int
	// compressMu serializes Compress so two passes never summarize the same
	// range.
	compressMu sync.Mutex
}

// Option configures a History.
type Option func(*History)

// WithEstimator overrides the config-selected token estimator.
func WithEstimator(e Estimator) Option {
	return func(h *History) { h.est = e }
}

// WithSummarizer sets the summarizer used by Compress.
func WithSummarizer(s Summarizer) Option {
	return func(h *History) { h.summarizer = s }
}

// WithJournal persists appended turns and digests.
func WithJournal(j Journal) Option {
	return func(h *History) { h.journal = j }
}

// WithObserver sets the event observer.
func WithObserver(o observability.Observer) Option {
	return func(h *History) { h.observer = o }
}

// New creates an empty History for sessionID.
func New(sessionID string, cfg Config, opts ...Option) *History {
	h := &History{
		sessionID:  sessionID,
		cfg:        cfg,
		summarizer: Truncator{},
		observer:   observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.est == nil {
		h.est = NewEstimator(cfg.Estimator)
	}
	return h
}

// Open rebuilds the history of sessionID from its journal, restoring the view
// the model last saw. A session without records yields an empty History.
func Open(ctx context.Context, sessionID string, cfg Config, opts ...Option) (*History, error) {
	h := New(sessionID, cfg, opts...)
	if h.journal == nil {
		return h, nil
	}

	rec, err := h.journal.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	h.turns = Restore(rec)
	if n := len(h.turns); n > 0 {
		h.next = h.turns[n-1].Last() + 1
	}
	return h, nil
}

// SessionID returns the owning session identifier.
func (h *History) SessionID() string { return h.sessionID }

// Config returns the configuration the history was created with.
func (h *History) Config() Config { return h.cfg }

// Estimator returns the token estimator in use.
func (h *History) Estimator() Estimator { return h.est }

// Append assigns the next ordinal to turn, stores it and returns the stored
// copy. Journal failures are reported as events; the in-memory log is the
// source of truth for the running session.
func (h *History) Append(ctx context.Context, turn protocol.Turn) protocol.Turn {
	h.mu.Lock()
	turn = turn.Clone()
	turn.Digest = nil
	turn.Ordinal = h.next
	h.next++
	h.turns = append(h.turns, turn)
	h.mu.Unlock()

	h.emit(ctx, EventAppend, observability.LevelVerbose, map[string]any{
		"ordinal": turn.Ordinal,
		"role":    string(turn.Role),
	})

	if h.journal != nil {
		if err := h.journal.Append(ctx, h.sessionID, turn); err != nil {
			h.emit(ctx, EventJournalError, observability.LevelWarning, map[string]any{
				"ordinal": turn.Ordinal,
				"error":   err.Error(),
			})
		}
	}
	return turn.Clone()
}

// Len returns the number of turns, digests included.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// LastOrdinal returns the highest ordinal covered, or -1 when empty.
func (h *History) LastOrdinal() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.turns) == 0 {
		return -1
	}
	return h.turns[len(h.turns)-1].Last()
}

// Snapshot returns a deep copy of every turn in order.
func (h *History) Snapshot() []protocol.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneTurns(h.turns)
}

// Estimate returns the estimated token cost of the whole history.
func (h *History) Estimate() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.estimate(h.turns)
}

// NeedsCompression reports whether the estimated cost exceeds the configured
// fraction of the context window.
func (h *History) NeedsCompression() bool {
	limit := int(float64(h.cfg.ContextWindow) * h.cfg.Threshold)
	return limit > 0 && h.Estimate() > limit
}

// Window returns the longest suffix of the history whose estimated cost fits
// budget. The most recent turn is always included, even when it alone exceeds
// the budget, so the model never loses the message it must answer.
func (h *History) Window(budget int) []protocol.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.turns) == 0 {
		return nil
	}

	start := len(h.turns) - 1
	used := TurnTokens(h.est, h.turns[start])
	for start > 0 {
		cost := TurnTokens(h.est, h.turns[start-1])
		if used+cost > budget {
			break
		}
		used += cost
		start--
	}
	return cloneTurns(h.turns[start:])
}

func (h *History) estimate(turns []protocol.Turn) int {
	total := 0
	for _, t := range turns {
		total += TurnTokens(h.est, t)
	}
	return total
}

func (h *History) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	data["session_id"] = h.sessionID
	h.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "history",
		Data:      data,
	})
}

func cloneTurns(turns []protocol.Turn) []protocol.Turn {
	out := make([]protocol.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
