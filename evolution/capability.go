package evolution

import (
	"context"
	"errors"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
)

// Capability exposes on-demand analysis to the model as prompt_evolution.
func Capability(a *Analyzer) capability.Spec {
	return capability.Spec{
		Name:        "prompt_evolution",
		Description: "Reviews your recent conversation history for failure and success patterns and proposes prompt refinements.",
		Factory: capability.Simple(func(ctx context.Context, _ protocol.Call, st *loop.State) (protocol.Result, error) {
			if st == nil || st.Session == nil {
				return protocol.ErrorResult("prompt_evolution needs a session"), nil
			}
			o, err := a.Analyze(ctx, st.Session, MonologueCount(st.Session))
			switch {
			case errors.Is(err, ErrDisabled):
				return protocol.Result{Message: "Meta-learning is disabled."}, nil
			case errors.Is(err, ErrInsufficientHistory):
				return protocol.Result{Message: err.Error() + ". Skipping meta-analysis."}, nil
			case err != nil:
				return protocol.Result{}, err
			}
			if o.Report.Empty() {
				return protocol.Result{Message: "Meta-analysis completed but found no significant patterns."}, nil
			}
			return protocol.Result{
				Message: o.Summary(a.cfg.AutoApply),
				Data:    map[string]any{"applied": o.Applied},
			}, nil
		}),
	}
}

// SuggestionsCapability exposes gap analysis to the model as
// tool_suggestions.
func SuggestionsCapability(a *Analyzer) capability.Spec {
	return capability.Spec{
		Name:        "tool_suggestions",
		Description: "Looks through your recent conversation history for capabilities you were missing and suggests new tools.",
		Factory: capability.Simple(func(ctx context.Context, _ protocol.Call, st *loop.State) (protocol.Result, error) {
			if st == nil || st.Session == nil {
				return protocol.ErrorResult("tool_suggestions needs a session"), nil
			}
			suggestions, err := a.Gaps(ctx, st.Session)
			switch {
			case errors.Is(err, ErrInsufficientHistory):
				return protocol.Result{Message: err.Error() + ". Skipping gap analysis."}, nil
			case err != nil:
				return protocol.Result{}, err
			}
			return protocol.Result{
				Message: FormatSuggestions(suggestions, a.now()),
				Data:    map[string]any{"suggestions": len(suggestions)},
			}, nil
		}),
	}
}
