package builtin

import (
	"context"
	"fmt"
	"strings"

	capbuiltin "github.com/tailored-agentic-units/monologue/capability/builtin"
	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/extension"
	"github.com/tailored-agentic-units/monologue/memory"
	"github.com/tailored-agentic-units/monologue/prompts"
)

const recallKey = "recall_memories.text"

// RecallOptions tunes RecallMemories. Interval is the number of iterations
// between searches; results are reused in between.
type RecallOptions struct {
	Interval  int
	Limit     int
	Threshold float64
}

// RecallMemories searches vector memory with the user's message and adds
// the hits to the system prompt.
func RecallMemories(lib *prompts.Library, opts RecallOptions) extension.Extension {
	if opts.Interval <= 0 {
		opts.Interval = 1
	}
	return extension.Func(func(ctx context.Context, st *loop.State) (*loop.State, error) {
		s := st.Session
		if s == nil || s.Vector == nil || strings.TrimSpace(st.Input.Text) == "" {
			return st, nil
		}

		if st.Iteration%opts.Interval == 0 {
			hits, err := s.Vector.Search(ctx, st.Input.Text, opts.Limit, opts.Threshold,
				memory.AreaMain, memory.AreaFragments, memory.AreaSolutions)
			if err != nil {
				return nil, err
			}
			text := ""
			if len(hits) > 0 {
				text = capbuiltin.FormatSnippets(hits)
			}
			s.Set(recallKey, text)
		}

		text, _ := s.Get(recallKey)
		if recalled, _ := text.(string); recalled != "" {
			rendered, err := lib.Render(prompts.MemoriesPrompt, map[string]string{"memories": recalled})
			if err != nil {
				return nil, err
			}
			st.AddSystem(rendered)
		}
		return st, nil
	})
}

// MemorizeSolution stores the final response of a successful monologue in
// the solutions area.
func MemorizeSolution(minLength int) extension.Extension {
	return extension.Func(func(ctx context.Context, st *loop.State) (*loop.State, error) {
		s := st.Session
		if s == nil || s.Vector == nil || st.Err != nil || len(strings.TrimSpace(st.Final)) < minLength {
			return st, nil
		}

		text := fmt.Sprintf("# Problem\n%s\n\n# Solution\n%s", st.Input.Text, st.Final)
		_, err := s.Vector.Insert(ctx, memory.AreaSolutions, text, map[string]string{
			"session_id": s.ID,
			"type":       "solution",
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	})
}
