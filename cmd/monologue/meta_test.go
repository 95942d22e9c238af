package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/monologue/evolution"
	"github.com/tailored-agentic-units/monologue/prompts"
	"github.com/tailored-agentic-units/monologue/transport"
)

type fakeMeta struct {
	calls []string
}

func (f *fakeMeta) record(format string, args ...any) { f.calls = append(f.calls, fmt.Sprintf(format, args...)) }

func (f *fakeMeta) ListAnalyses(_ context.Context, query string, limit int) ([]evolution.Analysis, error) {
	f.record("ListAnalyses %q %d", query, limit)
	return []evolution.Analysis{{ID: "a1", SessionID: "s1", Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}}, nil
}

func (f *fakeMeta) GetAnalysis(_ context.Context, id string) (evolution.Analysis, error) {
	f.record("GetAnalysis %s", id)
	return evolution.Analysis{ID: id, Content: "# Meta-Learning Analysis"}, nil
}

func (f *fakeMeta) ListProposals(_ context.Context, limit int) ([]evolution.Proposal, error) {
	f.record("ListProposals %d", limit)
	return []evolution.Proposal{
		{ID: "a1_ref_0", Kind: evolution.KindRefinement, Confidence: 0.9,
			Refinement: &evolution.Refinement{File: prompts.MainPrompt, Reason: "missed responses"}},
		{ID: "a1_tool_0", Kind: evolution.KindTool, Confidence: 0.5,
			Tool: &evolution.ToolSuggestion{ToolName: "web_search", Purpose: "look things up"}},
	}, nil
}

func (f *fakeMeta) ApplyProposal(_ context.Context, analysisID, proposalID string, approved bool) (string, error) {
	f.record("ApplyProposal %s %s %t", analysisID, proposalID, approved)
	if !approved {
		return "", evolution.ErrNotApproved
	}
	return "20260301_090000", nil
}

func (f *fakeMeta) Analyze(_ context.Context, sessionID string, background bool) (*transport.AnalyzeResult, error) {
	f.record("Analyze %s %t", sessionID, background)
	return &transport.AnalyzeResult{Summary: "Meta-learning analysis complete."}, nil
}

func (f *fakeMeta) SuggestTools(_ context.Context, sessionID string) ([]evolution.ToolSuggestion, string, error) {
	f.record("SuggestTools %s", sessionID)
	return nil, "# Tool Suggestions Report", nil
}

func (f *fakeMeta) ListVersions(_ context.Context, limit int) ([]prompts.Metadata, error) {
	f.record("ListVersions %d", limit)
	return []prompts.Metadata{{ID: "v1", FileCount: 3, CreatedBy: "meta_learning"}}, nil
}

func (f *fakeMeta) RollbackVersion(_ context.Context, id string, backup bool) (string, error) {
	f.record("RollbackVersion %s %t", id, backup)
	return "pre_rollback_" + id, nil
}

func (f *fakeMeta) DiffVersions(_ context.Context, a, b string) (map[string]prompts.FileDiff, error) {
	f.record("DiffVersions %s %s", a, b)
	return map[string]prompts.FileDiff{
		"b.md": {Status: "added", LinesB: 2},
		"a.md": {Status: "modified", LinesA: 1, LinesB: 3},
	}, nil
}

func TestRunMeta(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		session string
		approve bool
		args    []string
		call    string
		want    string
	}{
		{"analyses", "analyses", "", false, []string{"deploys"}, `ListAnalyses "deploys" 20`, "a1  2026-03-01 09:00:00  session=s1"},
		{"analysis", "analysis", "", false, []string{"a1"}, "GetAnalysis a1", "# Meta-Learning Analysis"},
		{"proposals", "proposals", "", false, nil, "ListProposals 20", "web_search: look things up"},
		{"apply", "apply", "", true, []string{"a1", "a1_ref_0"}, "ApplyProposal a1 a1_ref_0 true", "saved as version 20260301_090000"},
		{"analyze", "analyze", "s1", false, nil, "Analyze s1 false", "analysis complete"},
		{"suggest", "suggest", "s1", false, nil, "SuggestTools s1", "# Tool Suggestions Report"},
		{"versions", "versions", "", false, nil, "ListVersions 20", "v1  0001-01-01 00:00:00  3 files  0 changes  by meta_learning"},
		{"rollback", "rollback", "", false, []string{"v1"}, "RollbackVersion v1 true", "saved as version pre_rollback_v1"},
		{"diff", "diff", "", false, []string{"v1", "v2"}, "DiffVersions v1 v2", "modified  a.md (1 -> 3 lines)\nadded     b.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			f := &fakeMeta{}
			if err := runMeta(context.Background(), &out, f, tt.action, tt.session, tt.approve, tt.args); err != nil {
				t.Fatalf("runMeta() error = %v", err)
			}
			if len(f.calls) != 1 || f.calls[0] != tt.call {
				t.Errorf("calls = %q, want %q", f.calls, tt.call)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestRunMeta_Errors(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		session string
		args    []string
		want    string
	}{
		{"unknown action", "forget", "", nil, "usage:"},
		{"analysis without id", "analysis", "", nil, "usage:"},
		{"diff with one version", "diff", "", []string{"v1"}, "usage:"},
		{"analyze without session", "analyze", "", nil, "needs --session"},
		{"apply without approval", "apply", "", []string{"a1", "a1_ref_0"}, "pass --approve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runMeta(context.Background(), &bytes.Buffer{}, &fakeMeta{}, tt.action, tt.session, false, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}

	err := runMeta(context.Background(), &bytes.Buffer{}, &fakeMeta{}, "apply", "", false, []string{"a1", "a1_ref_0"})
	if !errors.Is(err, evolution.ErrNotApproved) {
		t.Errorf("unapproved apply error = %v, want ErrNotApproved", err)
	}
}
