package capability_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/monologue/capability"
)

func TestExtract_Directives(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		tool   string
		method string
		args   map[string]any
	}{
		{"scenario echo", "Tool: echo, args: {msg: 'hi'}", "echo", "", map[string]any{"msg": "hi"}},
		{"no args", "Thinking done.\nTool: response", "response", "", map[string]any{}},
		{"method", "Tool: memory:load, args: {\"query\": \"cats\"}", "memory", "load", map[string]any{"query": "cats"}},
		{"case and markdown", "> tool: Echo, Args: {msg: yo}", "Echo", "", map[string]any{"msg": "yo"}},
		{"bare payload", "Tool: echo, args: plain words", "echo", "", map[string]any{"input": "plain words"}},
		{
			"multiline payload",
			"Tool: write, args: {\n  path: 'a.txt',\n  text: 'x }'\n}\ntrailing",
			"write", "", map[string]any{"path": "a.txt", "text": "x }"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := capability.Extract(tt.text)
			if len(calls) != 1 {
				t.Fatalf("Extract() returned %d calls, want 1", len(calls))
			}
			c := calls[0]
			if c.ParseErr != nil {
				t.Fatalf("ParseErr = %v", c.ParseErr)
			}
			if c.Name != tt.tool || c.Method != tt.method {
				t.Errorf("name = %q method = %q", c.Name, c.Method)
			}
			if len(c.Args) != len(tt.args) {
				t.Fatalf("args = %v, want %v", c.Args, tt.args)
			}
			for k, v := range tt.args {
				if c.Args[k] != v {
					t.Errorf("args[%s] = %v, want %v", k, c.Args[k], v)
				}
			}
			if c.ID == "" {
				t.Error("call has no ID")
			}
		})
	}
}

func TestExtract_Truncated(t *testing.T) {
	calls := capability.Extract("Tool: echo, args: {msg: 'hi', extra: [1, 2")
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want exactly 1", len(calls))
	}
	if !errors.Is(calls[0].ParseErr, capability.ErrTruncated) {
		t.Errorf("ParseErr = %v, want ErrTruncated", calls[0].ParseErr)
	}
	if calls[0].Name != "echo" {
		t.Errorf("name = %q", calls[0].Name)
	}
}

func TestExtract_JSONObjects(t *testing.T) {
	text := "I'll look it up.\n```json\n{\"thoughts\": [\"x\"], \"tool_name\": \"memory:load\", \"tool_args\": {\"query\": \"cats\"}}\n```"

	calls := capability.Extract(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls", len(calls))
	}
	c := calls[0]
	if c.Name != "memory" || c.Method != "load" || c.Args.String("query") != "cats" {
		t.Errorf("call = %+v", c)
	}
	if text[c.Span.Start] != '{' || text[c.Span.End-1] != '}' {
		t.Errorf("span %v does not cover the object", c.Span)
	}
}

func TestExtract_DirtyJSONObject(t *testing.T) {
	calls := capability.Extract(`{'tool_name': 'echo', 'tool_args': {msg: 'hi',},}`)
	if len(calls) != 1 || calls[0].ParseErr != nil {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].Args.String("msg") != "hi" {
		t.Errorf("args = %v", calls[0].Args)
	}
}

func TestExtract_TruncatedJSONObject(t *testing.T) {
	calls := capability.Extract(`{"tool_name": "echo", "tool_args": {"msg": "h`)
	if len(calls) != 1 {
		t.Fatalf("got %d calls", len(calls))
	}
	if calls[0].Name != "echo" || !errors.Is(calls[0].ParseErr, capability.ErrTruncated) {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestExtract_SourceOrder(t *testing.T) {
	text := "Tool: first, args: {n: 1}\n" +
		`{"tool_name": "second", "tool_args": {"n": 2}}` + "\n" +
		"Tool: third, args: {n: 3\n"

	calls := capability.Extract(text)
	if len(calls) != 3 {
		t.Fatalf("got %d calls, want 3", len(calls))
	}
	want := []string{"first", "second", "third"}
	for i, c := range calls {
		if c.Name != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, c.Name, want[i])
		}
	}
	if calls[2].ParseErr == nil {
		t.Error("unterminated third payload should fail to parse")
	}
}

func TestExtract_NoCalls(t *testing.T) {
	for _, text := range []string{"", "Just chatting.", `{"answer": 42}`, "Tools: are nice"} {
		if calls := capability.Extract(text); len(calls) != 0 {
			t.Errorf("Extract(%q) = %v", text, calls)
		}
	}
}

func TestExtract_DirectivePayloadNotRescanned(t *testing.T) {
	calls := capability.Extract(`Tool: echo, args: {"text": "{\"tool_name\": \"x\"}"}`)
	if len(calls) != 1 || calls[0].Name != "echo" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestExtract_SkipsPlainObjects(t *testing.T) {
	const depth = 5000
	nested := strings.Repeat(`{"a": `, depth) + "1" + strings.Repeat("}", depth)
	text := nested + "\n" + `{"tool_name": "echo", "tool_args": {"msg": "after"}}`

	calls := capability.Extract(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "echo" || calls[0].Args.String("msg") != "after" {
		t.Errorf("call = %+v", calls[0])
	}
	if calls[0].Span.Start != len(nested)+1 {
		t.Errorf("span start = %d, want %d", calls[0].Span.Start, len(nested)+1)
	}
}

func TestExtract_NestedToolObject(t *testing.T) {
	text := `{"plan": "delegate", "next": {"tool_name": "echo", "tool_args": {"msg": "inner"}}}`

	calls := capability.Extract(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "echo" || calls[0].Args.String("msg") != "inner" {
		t.Errorf("call = %+v", calls[0])
	}
}
