package evolution

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/extension"
	"github.com/tailored-agentic-units/monologue/session"
)

const (
	monologueKey = "evolution.monologue_count"
	lastRunKey   = "evolution.last_execution"
)

// MonologueCount returns how many monologues s has finished since the
// trigger started counting.
func MonologueCount(s *session.Session) int {
	v, _ := s.Get(monologueKey)
	n, _ := v.(int)
	return n
}

// Trigger runs the analyzer in the background every TriggerInterval
// monologues. Register it at monologue-end.
type Trigger struct {
	analyzer *Analyzer
	wg       sync.WaitGroup
}

// NewTrigger creates a Trigger for a.
func NewTrigger(a *Analyzer) *Trigger {
	return &Trigger{analyzer: a}
}

// Registration returns the default registration of t.
func (t *Trigger) Registration() extension.Registration {
	return extension.Registration{
		Point:     extension.MonologueEnd,
		Priority:  85,
		Name:      "prompt_evolution",
		Extension: t,
	}
}

func (t *Trigger) Execute(ctx context.Context, st *loop.State) (*loop.State, error) {
	cfg := t.analyzer.cfg
	s := st.Session
	if !cfg.Enabled || s == nil {
		return st, nil
	}

	count := s.Incr(monologueKey)
	v, _ := s.Get(lastRunKey)
	last, _ := v.(int)
	if count-last < max(cfg.TriggerInterval, 1) {
		return st, nil
	}

	if n := s.History.Len(); n < cfg.MinInteractions {
		s.Log.Write(session.KindInfo, "Meta-Learning Auto-Trigger",
			fmt.Sprintf("Skipped: insufficient history (%d/%d messages). Monologue #%d", n, cfg.MinInteractions, count), nil)
		return st, nil
	}

	s.Log.Write(session.KindInfo, fmt.Sprintf("Meta-Learning Auto-Triggered (Monologue #%d)", count),
		fmt.Sprintf("Analyzing recent interactions. This happens every %d monologues.", cfg.TriggerInterval), nil)
	s.Set(lastRunKey, count)
	t.Start(ctx, s, count)
	return st, nil
}

// Start runs one analysis of s in the background and reports its outcome to
// the session log. The analysis outlives ctx.
func (t *Trigger) Start(ctx context.Context, s *session.Session, count int) {
	autoApply := t.analyzer.cfg.AutoApply
	bg := context.WithoutCancel(ctx)
	t.wg.Go(func() {
		o, err := t.analyze(bg, s, count)
		switch {
		case errors.Is(err, ErrInsufficientHistory):
			s.Log.Write(session.KindInfo, "Meta-Learning", err.Error(), nil)
		case err != nil:
			s.Log.Write(session.KindError, "Meta-Learning Error", err.Error(), nil)
		case o.Report.Empty():
			s.Log.Write(session.KindInfo, "Meta-Learning", "No significant patterns found.", nil)
		default:
			s.Log.Write(session.KindInfo, "Meta-Learning Complete", o.Summary(autoApply), nil)
		}
	})
}

// analyze runs one analysis, reporting a panic as an error.
func (t *Trigger) analyze(ctx context.Context, s *session.Session, count int) (o *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			o, err = nil, fmt.Errorf("analysis panicked: %v", r)
		}
	}()
	return t.analyzer.Analyze(ctx, s, count)
}

// Wait blocks until every background analysis has finished.
func (t *Trigger) Wait() { t.wg.Wait() }
