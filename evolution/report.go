package evolution

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tailored-agentic-units/monologue/capability"
)

type FailurePattern struct {
	Pattern         string   `json:"pattern"`
	Frequency       int      `json:"frequency"`
	Severity        string   `json:"severity"`
	AffectedPrompts []string `json:"affected_prompts"`
}

type SuccessPattern struct {
	Pattern    string  `json:"pattern"`
	Frequency  int     `json:"frequency"`
	Confidence float64 `json:"confidence"`
}

type MissingInstruction struct {
	Gap               string `json:"gap"`
	Impact            string `json:"impact"`
	SuggestedLocation string `json:"suggested_location"`
}

// ToolSuggestion proposes a capability the agent lacks. Analysis reports
// carry only name, purpose and priority; gap analysis fills the rest.
type ToolSuggestion struct {
	ToolName             string    `json:"tool_name"`
	Purpose              string    `json:"purpose"`
	UseCases             []string  `json:"use_cases,omitempty"`
	Priority             string    `json:"priority"`
	RequiredIntegrations []string  `json:"required_integrations,omitempty"`
	Evidence             []string  `json:"evidence,omitempty"`
	Complexity           string    `json:"estimated_complexity,omitempty"`
	Timestamp            time.Time `json:"timestamp,omitzero"`
}

// Refinement proposes new content for one prompt fragment.
type Refinement struct {
	File       string  `json:"file"`
	Section    string  `json:"section"`
	Proposed   string  `json:"proposed"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// Meta describes the run that produced a report.
type Meta struct {
	Timestamp   time.Time `json:"timestamp"`
	Monologue   int       `json:"monologue_count"`
	HistorySize int       `json:"history_size"`
	Threshold   float64   `json:"confidence_threshold"`
}

// Report is the parsed analysis of a conversation history.
type Report struct {
	FailurePatterns     []FailurePattern     `json:"failure_patterns"`
	SuccessPatterns     []SuccessPattern     `json:"success_patterns"`
	MissingInstructions []MissingInstruction `json:"missing_instructions"`
	ToolSuggestions     []ToolSuggestion     `json:"tool_suggestions"`
	Refinements         []Refinement         `json:"prompt_refinements"`
	Meta                Meta                 `json:"meta"`
}

// Empty reports whether the analysis found nothing at all.
func (r *Report) Empty() bool {
	return len(r.FailurePatterns) == 0 && len(r.SuccessPatterns) == 0 &&
		len(r.MissingInstructions) == 0 && len(r.ToolSuggestions) == 0 &&
		len(r.Refinements) == 0
}

// ParseReport reads the JSON object in a model reply. Text around the
// object is ignored and the object is repaired like a capability payload.
func ParseReport(reply string) (*Report, error) {
	var r Report
	if err := decodeObject(reply, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// decodeObject repairs the outermost JSON object in reply and decodes it
// into dst.
func decodeObject(reply string, dst any) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return ErrMalformedReport
	}

	v, err := capability.ParseValue(reply[start : end+1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	if _, ok := v.(map[string]any); !ok {
		return ErrMalformedReport
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	return nil
}

// Filter drops refinements below threshold.
func (r *Report) Filter(threshold float64) {
	kept := r.Refinements[:0]
	for _, ref := range r.Refinements {
		if ref.Confidence >= threshold {
			kept = append(kept, ref)
		}
	}
	r.Refinements = kept
}

// Markdown renders the report for storage in memory.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Meta-Learning Analysis\n")
	fmt.Fprintf(&b, "**Date:** %s\n", r.Meta.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Monologue:** #%d\n", r.Meta.Monologue)
	fmt.Fprintf(&b, "**History Analyzed:** %d messages\n\n", r.Meta.HistorySize)

	if len(r.FailurePatterns) > 0 {
		b.WriteString("## Failure Patterns Detected\n")
		for _, p := range r.FailurePatterns {
			fmt.Fprintf(&b, "- **%s**\n  - Frequency: %d\n  - Severity: %s\n  - Affected: %s\n",
				p.Pattern, p.Frequency, p.Severity, strings.Join(p.AffectedPrompts, ", "))
		}
		b.WriteString("\n")
	}
	if len(r.SuccessPatterns) > 0 {
		b.WriteString("## Success Patterns Identified\n")
		for _, p := range r.SuccessPatterns {
			fmt.Fprintf(&b, "- **%s**\n  - Frequency: %d\n  - Confidence: %.2f\n", p.Pattern, p.Frequency, p.Confidence)
		}
		b.WriteString("\n")
	}
	if len(r.MissingInstructions) > 0 {
		b.WriteString("## Missing Instructions\n")
		for _, g := range r.MissingInstructions {
			fmt.Fprintf(&b, "- **%s**\n  - Impact: %s\n  - Location: %s\n", g.Gap, g.Impact, g.SuggestedLocation)
		}
		b.WriteString("\n")
	}
	if len(r.ToolSuggestions) > 0 {
		b.WriteString("## Tool Suggestions\n")
		for _, s := range r.ToolSuggestions {
			fmt.Fprintf(&b, "- **%s**\n  - Purpose: %s\n  - Priority: %s\n", s.ToolName, s.Purpose, s.Priority)
		}
		b.WriteString("\n")
	}
	if len(r.Refinements) > 0 {
		b.WriteString("## Prompt Refinement Suggestions\n")
		for _, ref := range r.Refinements {
			fmt.Fprintf(&b, "- **%s**\n  - Section: %s\n  - Reason: %s\n  - Confidence: %.2f\n",
				ref.File, ref.Section, ref.Reason, ref.Confidence)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Summary renders a short account of the report for the user.
func (r *Report) Summary(applied int, autoApply bool) string {
	var b strings.Builder
	b.WriteString("Meta-learning analysis complete.\n\n")
	fmt.Fprintf(&b, "Analyzed: %d messages\nMonologue: #%d\n\n", r.Meta.HistorySize, r.Meta.Monologue)
	b.WriteString("Findings:\n")
	fmt.Fprintf(&b, "- %d failure patterns identified\n", len(r.FailurePatterns))
	fmt.Fprintf(&b, "- %d success patterns recognized\n", len(r.SuccessPatterns))
	fmt.Fprintf(&b, "- %d missing instructions detected\n", len(r.MissingInstructions))
	fmt.Fprintf(&b, "- %d tool suggestions\n", len(r.ToolSuggestions))
	fmt.Fprintf(&b, "- %d prompt refinements proposed\n", len(r.Refinements))

	switch {
	case autoApply:
		fmt.Fprintf(&b, "\nApplied %d refinements. Previous prompts were snapshotted first.", applied)
	case len(r.Refinements) > 0:
		b.WriteString("\nRefinements were stored in memory for review and not applied.")
	}
	return b.String()
}
