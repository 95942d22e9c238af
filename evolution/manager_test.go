package evolution_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/monologue/evolution"
	"github.com/tailored-agentic-units/monologue/model"
	"github.com/tailored-agentic-units/monologue/prompts"
)

func TestManager(t *testing.T) {
	ctx := context.Background()
	lib := newLibrary(t)
	trig := evolution.NewTrigger(evolution.NewAnalyzer(enabled(2), model.NewScripted(model.Reply{Response: reply}), lib))
	s := newSession(t, 4)
	mgr := evolution.NewManager(trig, s.Vector)

	if _, err := mgr.Analyze(ctx, s, false); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if err := evolution.SaveSuggestions(ctx, s.Vector, []evolution.ToolSuggestion{{ToolName: "other_tool"}}); err != nil {
		t.Fatal(err)
	}

	list, err := mgr.Analyses(ctx, "", 0)
	if err != nil {
		t.Fatalf("Analyses() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("analyses = %d, want 1", len(list))
	}
	analysis := list[0]
	if analysis.Report == nil || len(analysis.Report.Refinements) != 1 || analysis.SessionID != s.ID {
		t.Fatalf("analysis = %+v", analysis)
	}

	found, err := mgr.Analyses(ctx, analysis.Content, 5)
	if err != nil || len(found) != 1 || found[0].ID != analysis.ID {
		t.Errorf("search = %+v, %v", found, err)
	}

	got, err := mgr.Analysis(ctx, analysis.ID)
	if err != nil || got.Content != analysis.Content {
		t.Errorf("Analysis() = %+v, %v", got, err)
	}
	if _, err := mgr.Analysis(ctx, "missing"); !errors.Is(err, evolution.ErrAnalysisNotFound) {
		t.Errorf("Analysis(missing) error = %v", err)
	}

	props, err := mgr.Proposals(ctx, 0)
	if err != nil {
		t.Fatalf("Proposals() error = %v", err)
	}
	if len(props) != 2 {
		t.Fatalf("proposals = %+v", props)
	}
	ref, tool := props[0], props[1]
	if ref.Kind != evolution.KindRefinement || ref.ID != analysis.ID+"_ref_0" || ref.Confidence != 0.9 {
		t.Errorf("first proposal = %+v", ref)
	}
	if tool.Kind != evolution.KindTool || tool.Tool.ToolName != "web_search" {
		t.Errorf("second proposal = %+v", tool)
	}

	tests := []struct {
		name     string
		proposal string
		approved bool
		want     error
	}{
		{"unapproved", ref.ID, false, evolution.ErrNotApproved},
		{"tool proposal", tool.ID, true, evolution.ErrNotApplicable},
		{"unknown proposal", analysis.ID + "_ref_9", true, evolution.ErrProposalNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := mgr.Apply(ctx, analysis.ID, tt.proposal, tt.approved); !errors.Is(err, tt.want) {
				t.Errorf("Apply() error = %v, want %v", err, tt.want)
			}
		})
	}
	if content, _ := lib.Get(prompts.MainPrompt); !strings.Contains(content, "old role") {
		t.Fatalf("rejected proposal changed the prompt: %q", content)
	}

	version, err := mgr.Apply(ctx, analysis.ID, ref.ID, true)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if content, _ := lib.Get(prompts.MainPrompt); !strings.Contains(content, "Always finish with response.") {
		t.Errorf("refinement not applied: %q", content)
	}

	versions, err := mgr.Versions().List(ctx, 0)
	if err != nil || len(versions) != 1 || versions[0].ID != version {
		t.Fatalf("versions = %+v, %v", versions, err)
	}
	if _, err := mgr.Versions().Rollback(ctx, version, false); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if content, _ := lib.Get(prompts.MainPrompt); !strings.Contains(content, "old role") {
		t.Errorf("rollback did not restore the prompt: %q", content)
	}
}

func TestManager_Analyze(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		m := model.NewScripted(model.Reply{Response: reply})
		s := newSession(t, 4)
		mgr := evolution.NewManager(evolution.NewTrigger(evolution.NewAnalyzer(evolution.DefaultConfig(), m, nil)), s.Vector)
		if _, err := mgr.Analyze(ctx, s, true); !errors.Is(err, evolution.ErrDisabled) {
			t.Errorf("error = %v", err)
		}
		if m.Calls() != 0 {
			t.Error("model called while disabled")
		}
	})

	t.Run("background", func(t *testing.T) {
		trig := evolution.NewTrigger(evolution.NewAnalyzer(enabled(2), model.NewScripted(model.Reply{Response: reply}), nil))
		s := newSession(t, 4)
		mgr := evolution.NewManager(trig, s.Vector)

		o, err := mgr.Analyze(ctx, s, true)
		if err != nil || o != nil {
			t.Fatalf("Analyze() = %+v, %v", o, err)
		}
		trig.Wait()

		var done bool
		for _, e := range s.Log.Entries() {
			if e.Heading == "Meta-Learning Complete" {
				done = true
			}
		}
		if !done {
			t.Errorf("background analysis not reported: %+v", s.Log.Entries())
		}
	})

	t.Run("no memory", func(t *testing.T) {
		mgr := evolution.NewManager(evolution.NewTrigger(evolution.NewAnalyzer(enabled(2), model.NewScripted(), nil)), nil)
		if _, err := mgr.Analyses(ctx, "", 0); !errors.Is(err, evolution.ErrNoMemory) {
			t.Errorf("error = %v", err)
		}
	})
}
