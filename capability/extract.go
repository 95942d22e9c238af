package capability

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/monologue/core/protocol"
)

var (
	directiveRe = regexp.MustCompile(`(?im)^[ \t>*_\-]*tool:[ \t]*([A-Za-z0-9_.\-]+)(?::([A-Za-z0-9_.\-]+))?`)
	argsRe      = regexp.MustCompile(`(?i)^[ \t]*,?[ \t]*args[ \t]*:[ \t]*`)
	toolNameRe  = regexp.MustCompile(`"tool_name"\s*:\s*"([^"]*)"`)
)

// Extract returns every capability call in text, in source order. Each
// recognized directive yields exactly one call; calls whose payload could
// not be recovered carry ParseErr.
func Extract(text string) []protocol.Call {
	calls := extractDirectives(text)
	calls = append(calls, extractObjects(text, calls)...)
	slices.SortFunc(calls, func(a, b protocol.Call) int {
		return a.Span.Start - b.Span.Start
	})
	return calls
}

func extractDirectives(text string) []protocol.Call {
	var calls []protocol.Call
	for _, m := range directiveRe.FindAllStringSubmatchIndex(text, -1) {
		call := protocol.Call{
			ID:   uuid.NewString(),
			Name: text[m[2]:m[3]],
			Args: protocol.Args{},
			Span: protocol.Span{Start: m[0], End: m[1]},
		}
		if m[4] >= 0 {
			call.Method = text[m[4]:m[5]]
		}

		rest := text[m[1]:]
		if loc := argsRe.FindStringIndex(rest); loc != nil {
			payloadStart := m[1] + loc[1]
			payload, end, complete := scanPayload(text, payloadStart)
			call.Span.End = end
			call.Args, call.ParseErr = parsePayload(payload, complete)
		}
		call.Source = strings.TrimSpace(text[call.Span.Start:call.Span.End])
		calls = append(calls, call)
	}
	return calls
}

// scanPayload reads the argument payload starting at start. A bracketed
// payload runs to its matching closer; anything else runs to the end of the
// line. complete is false when a bracket is never closed.
func scanPayload(text string, start int) (payload string, end int, complete bool) {
	if start >= len(text) || (text[start] != '{' && text[start] != '[') {
		end = start
		for end < len(text) && text[end] != '\n' {
			end++
		}
		return text[start:end], end, true
	}

	end, complete = matchBracket(text, start)
	return text[start:end], end, complete
}

// matchBracket returns the index just past the bracket closing the one at
// start. Quoted strings of either kind are skipped. Closers are matched the
// way the repair pass matches them, so an outer closer also closes any
// brackets still open inside it.
func matchBracket(text string, start int) (int, bool) {
	var stack []byte
	var quote byte
	for i := start; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"':
			quote = c
		case '\'':
			if opensString(text, i) {
				quote = c
			}
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			target := len(stack) - 1
			for j := len(stack) - 1; j >= 0; j-- {
				if closerFor[stack[j]] == c {
					target = j
					break
				}
			}
			stack = stack[:target]
			if len(stack) == 0 {
				return i + 1, true
			}
		}
	}
	return len(text), false
}

func parsePayload(payload string, complete bool) (protocol.Args, error) {
	if !complete {
		return nil, fmt.Errorf("%w: no closing bracket", ErrTruncated)
	}
	if strings.TrimSpace(payload) == "" {
		return protocol.Args{}, nil
	}
	args, err := ParseArgs(payload)
	if err != nil {
		return nil, err
	}
	return protocol.Args(args), nil
}

// extractObjects finds JSON objects carrying tool_name outside the spans of
// line directives.
func extractObjects(text string, directives []protocol.Call) []protocol.Call {
	var calls []protocol.Call
	for i := 0; i < len(text); i++ {
		if text[i] != '{' || covered(i, directives) {
			continue
		}
		end, complete := matchBracket(text, i)
		obj := text[i:end]
		if !strings.Contains(obj, `"tool_name"`) && !strings.Contains(obj, `'tool_name'`) {
			if !complete {
				break
			}
			// Nothing inside can be a call either.
			i = end - 1
			continue
		}
		if complete && !topLevelToolName(obj) {
			// The name belongs to a nested object; look inside.
			continue
		}

		call := protocol.Call{
			ID:     uuid.NewString(),
			Span:   protocol.Span{Start: i, End: end},
			Source: obj,
		}
		fillObjectCall(&call, obj, complete)
		calls = append(calls, call)
		i = end - 1
	}
	return calls
}

func fillObjectCall(call *protocol.Call, obj string, complete bool) {
	var fields map[string]any
	var err error
	if !complete {
		err = fmt.Errorf("%w: no closing brace", ErrTruncated)
	} else {
		fields, err = ParseArgs(obj)
	}

	name, _ := fields["tool_name"].(string)
	if name == "" {
		if m := toolNameRe.FindStringSubmatch(strings.ReplaceAll(obj, "'", `"`)); m != nil {
			name = m[1]
		}
	}
	call.Name, call.Method, _ = strings.Cut(name, ":")
	if err != nil {
		call.ParseErr = err
		return
	}
	if call.Name == "" {
		call.ParseErr = fmt.Errorf("%w: tool_name is empty", ErrMalformed)
		return
	}

	switch a := fields["tool_args"].(type) {
	case nil:
		call.Args = protocol.Args{}
	case map[string]any:
		call.Args = protocol.Args(a)
	case string:
		args, perr := ParseArgs(a)
		if perr != nil {
			call.Args = protocol.Args{"input": a}
		} else {
			call.Args = protocol.Args(args)
		}
	default:
		call.Args = protocol.Args{"input": a}
	}
}

func topLevelToolName(obj string) bool {
	fields, err := ParseArgs(obj)
	if err != nil {
		return true
	}
	_, ok := fields["tool_name"]
	return ok
}

func covered(i int, calls []protocol.Call) bool {
	for _, c := range calls {
		if i >= c.Span.Start && i < c.Span.End {
			return true
		}
	}
	return false
}
