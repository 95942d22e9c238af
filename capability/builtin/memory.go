package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/memory"
)

const (
	defaultLimit     = 5
	defaultThreshold = 0.6
)

// MemorySave stores text in vector memory.
func MemorySave() capability.Spec {
	return capability.Spec{
		Name:        "memory_save",
		Description: "Saves a piece of text to long-term memory so later conversations can recall it.",
		Params: []protocol.Param{
			{Name: "text", Type: protocol.TypeString, Required: true},
			{Name: "area", Type: protocol.TypeString, Description: "main (default), fragments, solutions or instruments."},
			{Name: "metadata", Type: protocol.TypeObject, Description: "Extra string fields stored with the text."},
		},
		Factory: capability.Simple(runSave),
	}
}

func runSave(ctx context.Context, call protocol.Call, st *loop.State) (protocol.Result, error) {
	v, err := vectorOf(st)
	if err != nil {
		return protocol.Result{}, err
	}
	area, err := parseArea(call.Args.String("area"))
	if err != nil {
		return protocol.Result{}, err
	}

	meta := map[string]string{}
	if m, ok := call.Args["metadata"].(map[string]any); ok {
		extra := protocol.Args(m)
		for k := range extra {
			meta[k] = extra.String(k)
		}
	}
	if id := sessionID(st); id != "" {
		meta["session_id"] = id
	}

	id, err := v.Insert(ctx, area, call.Args.String("text"), meta)
	if err != nil {
		return protocol.Result{}, err
	}
	logInfo(st, "Memory saved", id)
	return protocol.Result{Message: fmt.Sprintf("Memory saved with id %s.", id), Data: map[string]any{"id": id}}, nil
}

// MemoryLoad searches vector memory.
func MemoryLoad() capability.Spec {
	return capability.Spec{
		Name:        "memory_load",
		Description: "Searches long-term memory for text similar to the query.",
		Params: []protocol.Param{
			{Name: "query", Type: protocol.TypeString, Required: true},
			{Name: "limit", Type: protocol.TypeNumber, Description: "Maximum results, default 5."},
			{Name: "threshold", Type: protocol.TypeNumber, Description: "Minimum similarity between 0 and 1, default 0.6."},
			{Name: "area", Type: protocol.TypeString, Description: "Restrict the search to one area."},
		},
		Factory: capability.Simple(runLoad),
	}
}

func runLoad(ctx context.Context, call protocol.Call, st *loop.State) (protocol.Result, error) {
	v, err := vectorOf(st)
	if err != nil {
		return protocol.Result{}, err
	}
	var areas []memory.Area
	if a := call.Args.String("area"); a != "" {
		area, err := parseArea(a)
		if err != nil {
			return protocol.Result{}, err
		}
		areas = append(areas, area)
	}

	hits, err := v.Search(ctx, call.Args.String("query"),
		call.Args.Int("limit", defaultLimit),
		call.Args.Float("threshold", defaultThreshold),
		areas...)
	if err != nil {
		return protocol.Result{}, err
	}
	if len(hits) == 0 {
		return protocol.Result{Message: "No memories found."}, nil
	}
	return protocol.Result{Message: FormatSnippets(hits)}, nil
}

// MemoryForget deletes memories by id or by similarity to a query.
func MemoryForget() capability.Spec {
	return capability.Spec{
		Name:        "memory_forget",
		Description: "Deletes memories, either the listed ids or everything matching the query.",
		Params: []protocol.Param{
			{Name: "ids", Type: protocol.TypeArray},
			{Name: "query", Type: protocol.TypeString},
			{Name: "threshold", Type: protocol.TypeNumber, Description: "Similarity needed to delete by query, default 0.75."},
		},
		Factory: capability.Simple(runForget),
	}
}

func runForget(ctx context.Context, call protocol.Call, st *loop.State) (protocol.Result, error) {
	v, err := vectorOf(st)
	if err != nil {
		return protocol.Result{}, err
	}

	var ids []string
	if list, ok := call.Args["ids"].([]any); ok {
		for _, id := range list {
			if s, ok := id.(string); ok && s != "" {
				ids = append(ids, s)
			}
		}
	}
	if q := call.Args.String("query"); q != "" {
		hits, err := v.Search(ctx, q, 100, call.Args.Float("threshold", 0.75))
		if err != nil {
			return protocol.Result{}, err
		}
		for _, h := range hits {
			ids = append(ids, h.ID)
		}
	}
	if len(ids) == 0 {
		return protocol.Result{Message: "Nothing to forget: give ids or a query."}, nil
	}

	n, err := v.Delete(ctx, ids...)
	if err != nil {
		return protocol.Result{}, err
	}
	return protocol.Result{Message: fmt.Sprintf("Deleted %d memories.", n), Data: map[string]any{"deleted": n}}, nil
}

func parseArea(s string) (memory.Area, error) {
	if s == "" {
		return memory.AreaMain, nil
	}
	for _, a := range memory.Areas() {
		if strings.EqualFold(s, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown memory area %q", s)
}

// FormatSnippets renders search hits for a prompt.
func FormatSnippets(hits []memory.Snippet) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s %s score=%.2f]\n%s", h.Area, h.ID, h.Score, h.Text)
	}
	return b.String()
}
