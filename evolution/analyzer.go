// Package evolution reviews a session's history with a utility model and
// proposes, stores and optionally applies prompt refinements.
package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/memory"
	"github.com/tailored-agentic-units/monologue/model"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/prompts"
	"github.com/tailored-agentic-units/monologue/session"
)

const maxMessageChars = 1000

// Metadata keys of stored analyses and suggestions.
const (
	typeKey      = "type"
	timestampKey = "timestamp"
	sessionKey   = "session_id"
	reportKey    = "report"

	analysisType   = "meta_learning"
	suggestionType = "tool_suggestion"
)

// Analyzer runs one analysis of a session's recent history.
type Analyzer struct {
	cfg      Config
	model    model.Model
	prompts  *prompts.Library
	observer observability.Observer
	now      func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithObserver sets the event observer.
func WithObserver(o observability.Observer) Option {
	return func(a *Analyzer) { a.observer = o }
}

// NewAnalyzer creates an Analyzer using m as the utility model and lib for
// the analysis prompt and refinement targets. lib may be nil when
// refinements are never applied.
func NewAnalyzer(cfg Config, m model.Model, lib *prompts.Library, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:      cfg,
		model:    m,
		prompts:  lib,
		observer: observability.NoOpObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.prompts == nil {
		a.prompts = prompts.NewLibrary(nil)
	}
	return a
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// Outcome is the result of one analysis.
type Outcome struct {
	Report  *Report
	Applied int
	// Snapshots lists the version ids taken before each applied change.
	Snapshots []string
}

// Summary renders the outcome for the user.
func (o *Outcome) Summary(autoApply bool) string {
	return o.Report.Summary(o.Applied, autoApply)
}

// Analyze reviews the recent history of s. monologue is recorded in the
// report metadata.
func (a *Analyzer) Analyze(ctx context.Context, s *session.Session, monologue int) (*Outcome, error) {
	if !a.cfg.Enabled {
		return nil, ErrDisabled
	}
	turns := s.History.Snapshot()
	if len(turns) < a.cfg.MinInteractions {
		return nil, fmt.Errorf("%w: %d of %d messages", ErrInsufficientHistory, len(turns), a.cfg.MinInteractions)
	}
	if a.cfg.MaxHistory > 0 && len(turns) > a.cfg.MaxHistory {
		turns = turns[len(turns)-a.cfg.MaxHistory:]
	}

	out, err := a.complete(ctx, s, prompts.EvolutionPrompt,
		"Analyze this conversation history:\n\n"+FormatHistory(turns)+"\n\nProvide the analysis as one JSON object.")
	if err != nil {
		return nil, err
	}

	report, err := ParseReport(out)
	if err != nil {
		a.emit(ctx, s, EventFailed, observability.LevelWarning, map[string]any{"error": err.Error()})
		return nil, err
	}
	report.Meta = Meta{
		Timestamp:   a.now(),
		Monologue:   monologue,
		HistorySize: len(turns),
		Threshold:   a.cfg.ConfidenceThreshold,
	}
	report.Filter(a.cfg.ConfidenceThreshold)

	outcome := &Outcome{Report: report}
	if report.Empty() {
		return outcome, nil
	}

	if s.Vector != nil {
		structured, err := json.Marshal(report)
		if err != nil {
			return nil, fmt.Errorf("encode analysis: %w", err)
		}
		_, err = s.Vector.Insert(ctx, memory.AreaSolutions, report.Markdown(), map[string]string{
			typeKey:           analysisType,
			timestampKey:      report.Meta.Timestamp.Format(time.RFC3339),
			"monologue_count": fmt.Sprint(monologue),
			sessionKey:        s.ID,
			reportKey:         string(structured),
		})
		if err != nil {
			return nil, fmt.Errorf("store analysis: %w", err)
		}
		s.Log.Write(session.KindInfo, "Meta-Learning", "Analysis results stored in memory (solutions area)", nil)
	}

	if a.cfg.AutoApply {
		a.apply(ctx, s, outcome)
	}

	a.emit(ctx, s, EventAnalyzed, observability.LevelInfo, map[string]any{
		"monologue":   monologue,
		"refinements": len(report.Refinements),
		"applied":     outcome.Applied,
	})
	return outcome, nil
}

func (a *Analyzer) apply(ctx context.Context, s *session.Session, o *Outcome) {
	versions := a.prompts.Versions(a.cfg.Layer)
	for _, ref := range o.Report.Refinements {
		if ref.File == "" || ref.Proposed == "" {
			continue
		}
		reason := ref.Reason
		if reason == "" {
			reason = "Meta-learning suggestion"
		}
		id, err := versions.Apply(ctx, ref.File, ref.Proposed, reason)
		if err != nil {
			s.Log.Write(session.KindWarning, "Meta-Learning",
				fmt.Sprintf("Failed to apply refinement to %s: %v", ref.File, err), nil)
			continue
		}
		o.Applied++
		o.Snapshots = append(o.Snapshots, id)
		s.Log.Write(session.KindInfo, "Meta-Learning",
			fmt.Sprintf("Applied refinement to %s (confidence: %.2f)", ref.File, ref.Confidence), nil)
		a.emit(ctx, s, EventApplied, observability.LevelInfo, map[string]any{
			"file":     ref.File,
			"snapshot": id,
		})
	}
}

// complete sends content to the utility model under the system fragment
// name and returns the reply text.
func (a *Analyzer) complete(ctx context.Context, s *session.Session, name, content string) (string, error) {
	system, ok := a.prompts.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", prompts.ErrPromptNotFound, name)
	}
	out, err := model.Complete(ctx, a.model, model.Prompt{
		System: []string{system},
		Turns:  []protocol.Turn{{Role: protocol.RoleUser, Content: content}},
	}, nil)
	if err != nil {
		a.emit(ctx, s, EventFailed, observability.LevelError, map[string]any{"error": err.Error()})
		return "", fmt.Errorf("analysis model call: %w", err)
	}
	return out.Response, nil
}

// FormatHistory renders turns as numbered role-tagged blocks, cutting long
// messages.
func FormatHistory(turns []protocol.Turn) string {
	parts := make([]string, len(turns))
	for i, t := range turns {
		content := t.Content
		if len(content) > maxMessageChars {
			cut := maxMessageChars
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + "... [truncated]"
		}
		parts[i] = fmt.Sprintf("[%d] %s: %s", i, strings.ToUpper(string(t.Role)), content)
	}
	return strings.Join(parts, "\n\n")
}

func (a *Analyzer) emit(ctx context.Context, s *session.Session, typ observability.EventType, level observability.Level, data map[string]any) {
	data["session_id"] = s.ID
	a.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "evolution",
		Data:      data,
	})
}
