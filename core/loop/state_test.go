package loop_test

import (
	"testing"

	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
)

func TestState_Clone_Isolated(t *testing.T) {
	turn := protocol.NewTurn(protocol.RoleAgent, "draft")
	st := loop.New(nil, protocol.UserMessage{Text: "hi"}, 1)
	st.SystemPrompt = []string{"main"}
	st.Prompt = []protocol.Turn{protocol.NewTurn(protocol.RoleUser, "hi")}
	st.Calls = []protocol.Call{{Name: "echo", Args: protocol.Args{"msg": "hi"}}}
	st.Results = []protocol.Result{{Message: "hi"}}
	st.Turn = &turn
	st.Extras["k"] = "v"

	c := st.Clone()
	c.SystemPrompt[0] = "changed"
	c.Prompt[0].Content = "changed"
	c.Calls[0].Args["msg"] = "changed"
	c.Results[0].Message = "changed"
	c.Turn.Content = "changed"
	c.Extras["k"] = "changed"
	c.Iteration = 9

	switch {
	case st.SystemPrompt[0] != "main":
		t.Error("SystemPrompt shared")
	case st.Prompt[0].Content != "hi":
		t.Error("Prompt shared")
	case st.Calls[0].Args["msg"] != "hi":
		t.Error("call args shared")
	case st.Results[0].Message != "hi":
		t.Error("Results shared")
	case st.Turn.Content != "draft":
		t.Error("Turn shared")
	case st.Extras["k"] != "v":
		t.Error("Extras shared")
	case st.Iteration != 1:
		t.Error("Iteration shared")
	}
}

func TestState_AddSystem(t *testing.T) {
	st := loop.New(nil, protocol.UserMessage{}, 0)
	st.AddSystem("a")
	st.AddSystem("")
	st.AddSystem("b")

	if len(st.SystemPrompt) != 2 || st.SystemPrompt[1] != "b" {
		t.Errorf("SystemPrompt = %v", st.SystemPrompt)
	}
}

func TestState_Terminated(t *testing.T) {
	st := loop.New(nil, protocol.UserMessage{}, 0)
	if st.Terminated() {
		t.Error("empty results terminated")
	}
	st.Results = []protocol.Result{{Message: "a"}, {Message: "done", Terminate: true}}
	if !st.Terminated() {
		t.Error("terminal result not detected")
	}
}
