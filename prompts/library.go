// Package prompts serves layered prompt fragments and keeps a version
// history of the editable layer.
//
// A Library reads "prompts/<layer>/<file>" keys from a memory.Store through a
// write-back cache. Layers are searched most specific first and the
// fragments compiled into the binary act as the last layer.
package prompts

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/tailored-agentic-units/monologue/memory"
)

//go:embed defaults/*.md
var builtin embed.FS

// Well-known fragment names.
const (
	MainPrompt         = "agent.system.main.md"
	CapabilitiesPrompt = "agent.system.capabilities.md"
	MemoriesPrompt     = "agent.system.memories.md"
	MisformatPrompt    = "fw.misformat.md"
	EvolutionPrompt    = "fw.evolution.analysis.md"
	SummarizePrompt    = "fw.summarize.md"
	ToolGapsPrompt     = "fw.tool_gaps.md"
	SuggestionsPrompt  = "fw.tool_suggestions.md"
)

// Library resolves prompt fragments across layers.
type Library struct {
	cache  *memory.Cache
	layers []string
}

// NewLibrary creates a library over store. layers are searched in order; a
// nil store serves only the built-in fragments.
func NewLibrary(store memory.Store, layers ...string) *Library {
	l := &Library{layers: layers}
	if store != nil {
		l.cache = memory.NewCache(store)
	}
	return l
}

// Load indexes the store and reads every prompt layer into memory.
func (l *Library) Load(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	if err := l.cache.Bootstrap(ctx, memory.NamespacePrompts+"/"); err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	return nil
}

// Layers returns the search order, most specific first.
func (l *Library) Layers() []string { return slices.Clone(l.layers) }

// Cache returns the cache backing the library, or nil.
func (l *Library) Cache() *memory.Cache { return l.cache }

func layerKey(layer, name string) string {
	return memory.Join(memory.NamespacePrompts, layer, name)
}

// Get returns the fragment from the first layer holding it.
func (l *Library) Get(name string) (string, bool) {
	if l.cache != nil {
		for _, layer := range l.layers {
			if data, ok := l.cache.Get(layerKey(layer, name)); ok {
				return string(data), true
			}
		}
	}
	data, err := builtin.ReadFile(path.Join("defaults", name))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Render returns the named fragment with {{key}} placeholders replaced.
func (l *Library) Render(name string, vars map[string]string) (string, error) {
	text, ok := l.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}
	return Fill(text, vars), nil
}

// Fill replaces {{key}} placeholders in text. Unknown placeholders are left
// as they are.
func Fill(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Names returns every fragment name visible through the library.
func (l *Library) Names() []string {
	seen := make(map[string]bool)
	if l.cache != nil {
		for _, layer := range l.layers {
			for _, name := range l.files(layer) {
				seen[name] = true
			}
		}
	}
	entries, _ := fs.ReadDir(builtin, "defaults")
	for _, e := range entries {
		seen[e.Name()] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// files lists the top-level .md fragments stored in one layer.
func (l *Library) files(layer string) []string {
	prefix := layerKey(layer, "") + "/"
	var names []string
	for _, key := range l.cache.Keys(prefix) {
		name := strings.TrimPrefix(key, prefix)
		if strings.HasSuffix(name, ".md") && !strings.Contains(name, "/") {
			names = append(names, name)
		}
	}
	return names
}

// Put writes a fragment into layer and flushes it to the store.
func (l *Library) Put(ctx context.Context, layer, name, content string) error {
	if l.cache == nil {
		return ErrReadOnly
	}
	if err := checkName(name); err != nil {
		return err
	}
	l.cache.Set(layerKey(layer, name), []byte(content))
	return l.cache.Flush(ctx)
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
