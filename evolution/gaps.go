package evolution

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tailored-agentic-units/monologue/memory"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/prompts"
	"github.com/tailored-agentic-units/monologue/session"
)

const (
	gapTurns         = 30
	evidencePatterns = 3
	maxEvidence      = 5
)

var priorities = []string{"high", "medium", "low"}

// Pattern is a recurring situation in a history that points at a missing
// capability.
type Pattern struct {
	Type        string   `json:"pattern_type"`
	Description string   `json:"description"`
	Frequency   int      `json:"frequency"`
	Examples    []string `json:"examples"`
	Severity    string   `json:"severity"`
}

// DetectGaps asks the utility model which patterns in the recent history of
// s show a capability the agent lacks. At least MinInteractions and at most
// max(MinInteractions, 30) turns are read.
func (a *Analyzer) DetectGaps(ctx context.Context, s *session.Session) ([]Pattern, error) {
	turns := s.History.Snapshot()
	if len(turns) < a.cfg.MinInteractions {
		return nil, fmt.Errorf("%w: %d of %d messages", ErrInsufficientHistory, len(turns), a.cfg.MinInteractions)
	}
	n := max(a.cfg.MinInteractions, min(gapTurns, len(turns)))
	turns = turns[len(turns)-n:]

	out, err := a.complete(ctx, s, prompts.ToolGapsPrompt,
		"Analyze this conversation history for missing capabilities:\n\n"+FormatHistory(turns))
	if err != nil {
		return nil, err
	}
	var reply struct {
		Patterns []Pattern `json:"patterns"`
	}
	if err := decodeObject(out, &reply); err != nil {
		return nil, err
	}
	for i := range reply.Patterns {
		p := &reply.Patterns[i]
		if p.Type == "" {
			p.Type = "missing_capability"
		}
		if p.Frequency < 1 {
			p.Frequency = 1
		}
		if p.Severity == "" {
			p.Severity = "nice_to_have"
		}
	}
	return reply.Patterns, nil
}

// SuggestTools turns patterns into tool suggestions. Each suggestion carries
// evidence drawn from the examples of the first patterns.
func (a *Analyzer) SuggestTools(ctx context.Context, s *session.Session, patterns []Pattern) ([]ToolSuggestion, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	out, err := a.complete(ctx, s, prompts.SuggestionsPrompt,
		"Suggest new tools for these gaps:\n\n"+FormatPatterns(patterns))
	if err != nil {
		return nil, err
	}
	var reply struct {
		Suggestions []ToolSuggestion `json:"suggestions"`
	}
	if err := decodeObject(out, &reply); err != nil {
		return nil, err
	}

	var evidence []string
	for _, p := range patterns[:min(evidencePatterns, len(patterns))] {
		evidence = append(evidence, p.Examples[:min(2, len(p.Examples))]...)
	}
	evidence = evidence[:min(maxEvidence, len(evidence))]

	now := a.now()
	for i := range reply.Suggestions {
		sg := &reply.Suggestions[i]
		if sg.ToolName == "" {
			sg.ToolName = "unnamed_tool"
		}
		if !slices.Contains(priorities, sg.Priority) {
			sg.Priority = "medium"
		}
		if sg.Complexity == "" {
			sg.Complexity = "moderate"
		}
		sg.Evidence = slices.Clone(evidence)
		sg.Timestamp = now
	}
	return reply.Suggestions, nil
}

// Gaps detects capability gaps in the history of s, suggests tools for them
// and stores each suggestion in the solutions area.
func (a *Analyzer) Gaps(ctx context.Context, s *session.Session) ([]ToolSuggestion, error) {
	patterns, err := a.DetectGaps(ctx, s)
	if err != nil {
		return nil, err
	}
	suggestions, err := a.SuggestTools(ctx, s, patterns)
	if err != nil {
		return nil, err
	}
	if len(suggestions) > 0 && s.Vector != nil {
		if err := SaveSuggestions(ctx, s.Vector, suggestions); err != nil {
			return suggestions, err
		}
		s.Log.Write(session.KindInfo, "Tool Suggestions",
			fmt.Sprintf("Saved %d tool suggestions to memory (solutions area)", len(suggestions)), nil)
	}
	a.emit(ctx, s, EventSuggested, observability.LevelInfo, map[string]any{
		"patterns":    len(patterns),
		"suggestions": len(suggestions),
	})
	return suggestions, nil
}

// SaveSuggestions stores each suggestion in the solutions area of v.
func SaveSuggestions(ctx context.Context, v memory.Vector, suggestions []ToolSuggestion) error {
	for _, sg := range suggestions {
		text := fmt.Sprintf("Tool Suggestion: %s\nPurpose: %s\nPriority: %s\nComplexity: %s\nUse Cases: %s\nRequired Integrations: %s",
			sg.ToolName, sg.Purpose, sg.Priority, sg.Complexity,
			strings.Join(sg.UseCases, ", "), strings.Join(sg.RequiredIntegrations, ", "))
		_, err := v.Insert(ctx, memory.AreaSolutions, text, map[string]string{
			typeKey:      suggestionType,
			timestampKey: sg.Timestamp.Format(time.RFC3339),
			"tool_name":  sg.ToolName,
			"priority":   sg.Priority,
		})
		if err != nil {
			return fmt.Errorf("store suggestion %s: %w", sg.ToolName, err)
		}
	}
	return nil
}

// FormatPatterns renders patterns as the input of the suggestion stage.
func FormatPatterns(patterns []Pattern) string {
	var b strings.Builder
	b.WriteString("# Detected Patterns\n")
	for i, p := range patterns {
		fmt.Fprintf(&b, "\n## Pattern %d: %s\n", i+1, p.Type)
		fmt.Fprintf(&b, "**Severity:** %s\n**Frequency:** %d\n**Description:** %s\n", p.Severity, p.Frequency, p.Description)
		if len(p.Examples) > 0 {
			b.WriteString("\n**Examples:**\n")
			for _, ex := range p.Examples[:min(3, len(p.Examples))] {
				fmt.Fprintf(&b, "- %s\n", ex)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSuggestions renders suggestions as a report grouped by priority.
func FormatSuggestions(suggestions []ToolSuggestion, generated time.Time) string {
	if len(suggestions) == 0 {
		return "No tool suggestions generated."
	}

	var b strings.Builder
	b.WriteString("# Tool Suggestions Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", generated.Format(time.DateTime))
	fmt.Fprintf(&b, "Total suggestions: %d\n", len(suggestions))

	for _, priority := range priorities {
		var group []ToolSuggestion
		for _, sg := range suggestions {
			if sg.Priority == priority {
				group = append(group, sg)
			}
		}
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s Priority (%d suggestions)\n", strings.ToUpper(priority[:1])+priority[1:], len(group))
		for _, sg := range group {
			fmt.Fprintf(&b, "\n### %s\n**Purpose:** %s\n**Complexity:** %s\n", sg.ToolName, sg.Purpose, sg.Complexity)
			if len(sg.UseCases) > 0 {
				b.WriteString("\n**Use Cases:**\n")
				for _, uc := range sg.UseCases {
					fmt.Fprintf(&b, "- %s\n", uc)
				}
			}
			if len(sg.RequiredIntegrations) > 0 {
				fmt.Fprintf(&b, "\n**Required:** %s\n", strings.Join(sg.RequiredIntegrations, ", "))
			}
			if len(sg.Evidence) > 0 {
				b.WriteString("\n**Evidence:**\n")
				for _, ev := range sg.Evidence[:min(3, len(sg.Evidence))] {
					fmt.Fprintf(&b, "- %s\n", clip(ev, 100))
				}
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// clip cuts s to at most n bytes on a rune boundary, marking the cut.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
