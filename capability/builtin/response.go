package builtin

import (
	"context"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/session"
)

// Response delivers the final answer and ends the monologue.
func Response() capability.Spec {
	return capability.Spec{
		Name:        "response",
		Description: "Sends the final answer to the user and ends your turn. Use it once the task is done.",
		Params: []protocol.Param{
			{Name: "text", Type: protocol.TypeString, Required: true, Description: "The answer shown to the user."},
		},
		Factory: capability.Simple(func(_ context.Context, call protocol.Call, st *loop.State) (protocol.Result, error) {
			text := call.Args.String("text")
			if st != nil && st.Session != nil {
				st.Session.Log.Write(session.KindResponse, "Response", text, nil)
			}
			return protocol.Result{Message: text, Terminate: true}, nil
		}),
	}
}
