package builtin

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/extension"
	"github.com/tailored-agentic-units/monologue/session"
)

// OrganizeHistory compresses the session history once it crosses the
// configured threshold.
func OrganizeHistory() extension.Extension {
	return extension.Func(func(ctx context.Context, st *loop.State) (*loop.State, error) {
		s := st.Session
		if s == nil || !s.History.NeedsCompression() {
			return st, nil
		}
		before := s.History.Estimate()
		changed, err := s.History.Compress(ctx)
		if err != nil {
			return nil, fmt.Errorf("compress history: %w", err)
		}
		if changed {
			s.Log.Write(session.KindInfo, "History compressed",
				fmt.Sprintf("%d -> %d tokens", before, s.History.Estimate()), nil)
		}
		return st, nil
	}), nil
}

// StreamLog forwards stream chunks to the session log. kind is "reasoning"
// or "response".
func StreamLog(kind string) (extension.Extension, error) {
	var entry session.EntryKind
	switch kind {
	case "reasoning":
		entry = session.KindReasoning
	case "response", "":
		entry = session.KindResponse
	default:
		return nil, fmt.Errorf("stream_log: unknown kind %q", kind)
	}
	return extension.Func(func(_ context.Context, st *loop.State) (*loop.State, error) {
		if st.Session != nil && st.Chunk != "" {
			st.Session.Log.Write(entry, "", st.Chunk, map[string]any{"iteration": st.Iteration, "stream": true})
		}
		return st, nil
	}), nil
}
