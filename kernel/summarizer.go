package kernel

import (
	"context"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/history"
	"github.com/tailored-agentic-units/monologue/model"
	"github.com/tailored-agentic-units/monologue/prompts"
)

// Summarizer returns a history summarizer backed by m. The reply is
// trimmed; budget enforcement is left to the history.
func Summarizer(m model.Model, lib *prompts.Library) history.Summarizer {
	return history.SummarizerFunc(func(ctx context.Context, kind protocol.DigestKind, turns []protocol.Turn, budget int) (string, error) {
		system, err := lib.Render(prompts.SummarizePrompt, map[string]string{
			"kind":   string(kind),
			"budget": fmt.Sprint(budget),
		})
		if err != nil {
			return "", err
		}
		out, err := model.Complete(ctx, m, model.Prompt{
			System: []string{system},
			Turns: []protocol.Turn{{
				Role:    protocol.RoleUser,
				Content: model.Prompt{Turns: turns}.ConversationText(),
			}},
		}, nil)
		if err != nil {
			return "", fmt.Errorf("summarize %s: %w", kind, err)
		}
		return strings.TrimSpace(out.Response), nil
	})
}
