package kernel

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/session"
)

const subordinateKey = "kernel.subordinate"

// subordinate delegates a message to a child session that shares the
// caller's vector memory. The child is reused across calls until reset.
func (k *Kernel) subordinate() capability.Spec {
	return capability.Spec{
		Name:        "call_subordinate",
		Description: "Delegates a subtask to a subordinate agent and returns its answer. The subordinate keeps its conversation between calls unless reset is true.",
		Params: []protocol.Param{
			{Name: "message", Type: protocol.TypeString, Required: true, Description: "The task or question for the subordinate."},
			{Name: "reset", Type: protocol.TypeBool, Description: "Start a fresh subordinate."},
		},
		Factory: capability.Simple(k.runSubordinate),
	}
}

func (k *Kernel) runSubordinate(ctx context.Context, call protocol.Call, st *loop.State) (protocol.Result, error) {
	if st == nil || st.Session == nil {
		return protocol.ErrorResult("call_subordinate needs a session"), nil
	}
	parent := st.Session

	child, err := k.child(ctx, parent, call.Args.Bool("reset", false))
	if err != nil {
		return protocol.Result{}, err
	}

	parent.Log.Write(session.KindInfo, "Subordinate", fmt.Sprintf("Delegating to %s", child.ID), map[string]any{"child": child.ID})
	res, err := k.Run(ctx, child.ID, protocol.UserMessage{Text: call.Args.String("message")})

	var failure *Failure
	switch {
	case errors.As(err, &failure):
		msg := fmt.Sprintf("The subordinate stopped without an answer: %v", failure.Err)
		if failure.Partial != "" {
			msg += "\n\nIts last output was:\n" + failure.Partial
		}
		return protocol.Result{Message: msg, IsError: true, Data: map[string]any{"session_id": child.ID}}, nil
	case err != nil:
		return protocol.Result{}, err
	}
	return protocol.Result{Message: res.Response, Data: map[string]any{"session_id": child.ID}}, nil
}

func (k *Kernel) child(ctx context.Context, parent *session.Session, reset bool) (*session.Session, error) {
	v, _ := parent.Get(subordinateKey)
	if id, _ := v.(string); id != "" {
		if !reset {
			if s, err := k.sessions.Get(id); err == nil {
				return s, nil
			}
		} else {
			_ = k.sessions.Delete(id)
		}
	}

	s, err := k.sessions.Create(ctx, "", parent.ID)
	if err != nil {
		return nil, fmt.Errorf("create subordinate: %w", err)
	}
	parent.Set(subordinateKey, s.ID)
	return s, nil
}
