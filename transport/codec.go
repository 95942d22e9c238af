package transport

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/kernel"
	"github.com/tailored-agentic-units/monologue/session"
)

var errNoSession = errors.New("session_id is required")

func str(m *structpb.Struct, key string) string {
	if m == nil {
		return ""
	}
	return m.GetFields()[key].GetStringValue()
}

func num(m *structpb.Struct, key string) int {
	if m == nil {
		return 0
	}
	return int(m.GetFields()[key].GetNumberValue())
}

func boolean(m *structpb.Struct, key string) bool {
	if m == nil {
		return false
	}
	return m.GetFields()[key].GetBoolValue()
}

func sessionRequest(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{"session_id": structpb.NewStringValue(id)}}
}

func encodeMessage(sessionID string, msg protocol.UserMessage) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"session_id": sessionID,
		"text":       msg.Text,
		"system":     msg.System,
	})
}

func decodeMessage(m *structpb.Struct) (string, protocol.UserMessage) {
	return str(m, "session_id"), protocol.UserMessage{
		Text:   str(m, "text"),
		System: boolean(m, "system"),
	}
}

func encodeResult(r *kernel.Result) (*structpb.Struct, error) {
	calls := make([]any, len(r.Calls))
	for i, c := range r.Calls {
		calls[i] = map[string]any{
			"id":        c.ID,
			"name":      c.Name,
			"iteration": c.Iteration,
			"message":   c.Result.Message,
			"is_error":  c.Result.IsError,
			"terminate": c.Result.Terminate,
		}
	}
	return structpb.NewStruct(map[string]any{
		"session_id": r.SessionID,
		"response":   r.Response,
		"iterations": r.Iterations,
		"calls":      calls,
	})
}

// decodeResult rebuilds a Result. Call arguments are not transmitted.
func decodeResult(m *structpb.Struct) *kernel.Result {
	r := &kernel.Result{
		SessionID:  str(m, "session_id"),
		Response:   str(m, "response"),
		Iterations: num(m, "iterations"),
	}
	for _, v := range m.GetFields()["calls"].GetListValue().GetValues() {
		c := v.GetStructValue()
		r.Calls = append(r.Calls, kernel.CallRecord{
			Call:      protocol.Call{ID: str(c, "id"), Name: str(c, "name")},
			Iteration: num(c, "iteration"),
			Result: protocol.Result{
				Message:   str(c, "message"),
				IsError:   boolean(c, "is_error"),
				Terminate: boolean(c, "terminate"),
			},
		})
	}
	return r
}

func encodeFailure(f *kernel.Failure) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"session_id":   f.SessionID,
		"last_ordinal": f.LastOrdinal,
		"iterations":   f.Iterations,
		"partial":      f.Partial,
		"error":        f.Err.Error(),
	})
}

func decodeFailure(m *structpb.Struct, cause error) *kernel.Failure {
	return &kernel.Failure{
		SessionID:   str(m, "session_id"),
		LastOrdinal: num(m, "last_ordinal"),
		Iterations:  num(m, "iterations"),
		Partial:     str(m, "partial"),
		Err:         cause,
	}
}

func encodeEntry(e session.LogEntry) (*structpb.Struct, error) {
	data := map[string]any{
		"seq":     e.Seq,
		"time":    e.Time.Format(time.RFC3339Nano),
		"kind":    string(e.Kind),
		"heading": e.Heading,
		"content": e.Content,
	}
	if len(e.Data) > 0 {
		d, err := structpb.NewStruct(plain(e.Data))
		if err != nil {
			return nil, fmt.Errorf("encode log data: %w", err)
		}
		data["data"] = d.AsMap()
	}
	return structpb.NewStruct(data)
}

// DecodeEntry converts a streamed log entry back into a LogEntry.
func DecodeEntry(m *structpb.Struct) session.LogEntry {
	ts, _ := time.Parse(time.RFC3339Nano, str(m, "time"))
	e := session.LogEntry{
		Seq:     num(m, "seq"),
		Time:    ts,
		Kind:    session.EntryKind(str(m, "kind")),
		Heading: str(m, "heading"),
		Content: str(m, "content"),
	}
	if d := m.GetFields()["data"].GetStructValue(); d != nil {
		e.Data = d.AsMap()
	}
	return e
}

// plain reduces values structpb cannot encode to strings.
func plain(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case nil, bool, string, int, int32, int64, uint, uint32, uint64, float32, float64, []any, map[string]any:
			out[k] = t
		case error:
			out[k] = t.Error()
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
