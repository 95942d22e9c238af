package evolution

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tailored-agentic-units/monologue/memory"
	"github.com/tailored-agentic-units/monologue/prompts"
	"github.com/tailored-agentic-units/monologue/session"
)

const (
	recentAnalyses  = 20
	searchThreshold = 0.5
	toolConfidence  = 0.5
)

// ProposalKind tells what a proposal would change.
type ProposalKind string

const (
	KindRefinement ProposalKind = "prompt_refinement"
	KindTool       ProposalKind = "new_tool"
)

// Analysis is a report stored in the solutions area.
type Analysis struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Content   string    `json:"content"`
	// Report is nil when the stored entry carries no structured form.
	Report *Report `json:"report,omitempty"`
}

// Proposal is one change proposed by a stored analysis. Its ID is stable
// across listings of the same analysis.
type Proposal struct {
	ID         string          `json:"id"`
	AnalysisID string          `json:"analysis_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Kind       ProposalKind    `json:"kind"`
	Confidence float64         `json:"confidence"`
	Refinement *Refinement     `json:"refinement,omitempty"`
	Tool       *ToolSuggestion `json:"tool,omitempty"`
}

// Manager reviews stored analyses, applies their proposals on approval and
// manages the prompt versions those applications create.
type Manager struct {
	trigger *Trigger
	vector  memory.Vector
}

// NewManager creates a Manager over the analyses stored in v. Background
// analyses run on t.
func NewManager(t *Trigger, v memory.Vector) *Manager {
	return &Manager{trigger: t, vector: v}
}

// Config returns the analyzer configuration.
func (m *Manager) Config() Config { return m.trigger.analyzer.cfg }

// Versions returns the version history of the layer refinements are applied
// to.
func (m *Manager) Versions() *prompts.Versions {
	a := m.trigger.analyzer
	return a.prompts.Versions(a.cfg.Layer)
}

// Analyses returns up to limit stored analyses, newest first. With a query
// the candidates are the analyses most similar to it. A limit of zero or
// less returns all.
func (m *Manager) Analyses(ctx context.Context, query string, limit int) ([]Analysis, error) {
	if m.vector == nil {
		return nil, ErrNoMemory
	}

	var snippets []memory.Snippet
	var err error
	if query != "" {
		n := limit * 2
		if n <= 0 {
			n = m.vector.Count()
		}
		snippets, err = m.vector.Search(ctx, query, n, searchThreshold, memory.AreaSolutions)
	} else {
		snippets, err = m.vector.List(ctx, memory.AreaSolutions, map[string]string{typeKey: analysisType})
	}
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}

	var out []Analysis
	for _, sn := range snippets {
		if sn.Meta[typeKey] == analysisType {
			out = append(out, toAnalysis(sn))
		}
	}
	slices.SortStableFunc(out, func(a, b Analysis) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Analysis returns the stored analysis id.
func (m *Manager) Analysis(ctx context.Context, id string) (Analysis, error) {
	if m.vector == nil {
		return Analysis{}, ErrNoMemory
	}
	sn, err := m.vector.Get(ctx, id)
	switch {
	case errors.Is(err, memory.ErrNotFound):
		return Analysis{}, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
	case err != nil:
		return Analysis{}, err
	case sn.Meta[typeKey] != analysisType:
		return Analysis{}, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
	}
	return toAnalysis(sn), nil
}

func toAnalysis(sn memory.Snippet) Analysis {
	a := Analysis{ID: sn.ID, SessionID: sn.Meta[sessionKey], Content: sn.Text}
	a.Timestamp, _ = time.Parse(time.RFC3339, sn.Meta[timestampKey])
	if raw := sn.Meta[reportKey]; raw != "" {
		var r Report
		if err := json.Unmarshal([]byte(raw), &r); err == nil {
			a.Report = &r
		}
	}
	return a
}

// Proposals returns up to limit proposals from the most recent analyses,
// most confident first and newest first among equals.
func (m *Manager) Proposals(ctx context.Context, limit int) ([]Proposal, error) {
	analyses, err := m.Analyses(ctx, "", recentAnalyses)
	if err != nil {
		return nil, err
	}
	var out []Proposal
	for _, a := range analyses {
		out = append(out, a.Proposals()...)
	}
	slices.SortStableFunc(out, func(a, b Proposal) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Proposals lists the refinements and tool suggestions of a.
func (a Analysis) Proposals() []Proposal {
	if a.Report == nil {
		return nil
	}
	var out []Proposal
	for i := range a.Report.Refinements {
		ref := a.Report.Refinements[i]
		out = append(out, Proposal{
			ID:         fmt.Sprintf("%s_ref_%d", a.ID, i),
			AnalysisID: a.ID,
			Timestamp:  a.Timestamp,
			Kind:       KindRefinement,
			Confidence: ref.Confidence,
			Refinement: &ref,
		})
	}
	for i := range a.Report.ToolSuggestions {
		tool := a.Report.ToolSuggestions[i]
		out = append(out, Proposal{
			ID:         fmt.Sprintf("%s_tool_%d", a.ID, i),
			AnalysisID: a.ID,
			Timestamp:  a.Timestamp,
			Kind:       KindTool,
			Confidence: toolConfidence,
			Tool:       &tool,
		})
	}
	return out
}

// Apply writes the refinement proposalID of analysis analysisID to the
// prompt layer and returns the id of the snapshot taken before the change.
// Nothing is written unless approved is set; tool proposals cannot be
// applied.
func (m *Manager) Apply(ctx context.Context, analysisID, proposalID string, approved bool) (string, error) {
	if !approved {
		return "", ErrNotApproved
	}
	a, err := m.Analysis(ctx, analysisID)
	if err != nil {
		return "", err
	}
	proposals := a.Proposals()
	i := slices.IndexFunc(proposals, func(p Proposal) bool { return p.ID == proposalID })
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrProposalNotFound, proposalID)
	}
	p := proposals[i]
	if p.Kind != KindRefinement || p.Refinement.File == "" || p.Refinement.Proposed == "" {
		return "", fmt.Errorf("%w: %s", ErrNotApplicable, proposalID)
	}

	reason := p.Refinement.Reason
	if reason == "" {
		reason = "Meta-learning suggestion"
	}
	id, err := m.Versions().Apply(ctx, p.Refinement.File, p.Refinement.Proposed, reason)
	if err != nil {
		return id, fmt.Errorf("apply %s: %w", proposalID, err)
	}
	return id, nil
}

// Analyze runs an analysis of s now. In the background it returns at once
// with a nil outcome and reports to the session log when done.
func (m *Manager) Analyze(ctx context.Context, s *session.Session, background bool) (*Outcome, error) {
	a := m.trigger.analyzer
	if !a.cfg.Enabled {
		return nil, ErrDisabled
	}
	if background {
		m.trigger.Start(ctx, s, MonologueCount(s))
		return nil, nil
	}
	return a.Analyze(ctx, s, MonologueCount(s))
}

// Suggest runs gap analysis on s and returns the stored tool suggestions.
func (m *Manager) Suggest(ctx context.Context, s *session.Session) ([]ToolSuggestion, error) {
	return m.trigger.analyzer.Gaps(ctx, s)
}
