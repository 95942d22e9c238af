package capability

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/observability"
)

// Scope tells default capabilities apart from profile overrides.
type Scope string

const (
	ScopeDefault Scope = "default"
	ScopeProfile Scope = "profile"
)

type generation struct {
	scoped   map[Scope]map[string]Spec
	inflight sync.WaitGroup
}

func (g *generation) lookup(name string) (Spec, bool) {
	key := strings.ToLower(name)
	if s, ok := g.scoped[ScopeProfile][key]; ok {
		return s, !s.Disabled
	}
	s, ok := g.scoped[ScopeDefault][key]
	return s, ok && !s.Disabled
}

func (g *generation) list() []Spec {
	seen := make(map[string]bool)
	var out []Spec
	for _, scope := range []Scope{ScopeProfile, ScopeDefault} {
		for key, s := range g.scoped[scope] {
			if seen[key] {
				continue
			}
			seen[key] = true
			if !s.Disabled {
				out = append(out, s)
			}
		}
	}
	slices.SortFunc(out, func(a, b Spec) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}

// Registry resolves capability names. Lookups are case-insensitive and a
// profile capability overrides the default with the same name.
type Registry struct {
	mu       sync.RWMutex
	current  *generation
	observer observability.Observer
}

// NewRegistry creates an empty registry. A nil observer discards events.
func NewRegistry(observer observability.Observer) *Registry {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Registry{current: newGeneration(nil, nil), observer: observer}
}

func newGeneration(defaults, profile map[string]Spec) *generation {
	if defaults == nil {
		defaults = make(map[string]Spec)
	}
	if profile == nil {
		profile = make(map[string]Spec)
	}
	return &generation{scoped: map[Scope]map[string]Spec{
		ScopeDefault: defaults,
		ScopeProfile: profile,
	}}
}

func index(specs []Spec) (map[string]Spec, error) {
	out := make(map[string]Spec, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, ErrEmptyName
		}
		if s.Factory == nil && !s.Disabled {
			return nil, fmt.Errorf("%w: %s", ErrNoFactory, s.Name)
		}
		out[strings.ToLower(s.Name)] = s
	}
	return out, nil
}

// Register adds or replaces a capability in scope.
func (r *Registry) Register(scope Scope, spec Spec) error {
	idx, err := index([]Spec{spec})
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := newGeneration(clone(r.current.scoped[ScopeDefault]), clone(r.current.scoped[ScopeProfile]))
	for k, s := range idx {
		next.scoped[scope][k] = s
	}
	r.current = next
	return nil
}

// LoadDefaults replaces every default capability with specs.
func (r *Registry) LoadDefaults(specs ...Spec) error {
	return r.load(ScopeDefault, specs)
}

// LoadProfile replaces every profile capability with specs.
func (r *Registry) LoadProfile(specs ...Spec) error {
	return r.load(ScopeProfile, specs)
}

func (r *Registry) load(scope Scope, specs []Spec) error {
	idx, err := index(specs)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := newGeneration(clone(r.current.scoped[ScopeDefault]), clone(r.current.scoped[ScopeProfile]))
	next.scoped[scope] = idx
	r.current = next
	return nil
}

// Reload replaces both scopes and blocks until every dispatch that started
// on the previous set has finished. It must not be called from inside a
// capability.
func (r *Registry) Reload(ctx context.Context, defaults, profile []Spec) error {
	d, err := index(defaults)
	if err != nil {
		return err
	}
	p, err := index(profile)
	if err != nil {
		return err
	}

	r.mu.Lock()
	old := r.current
	r.current = newGeneration(d, p)
	r.mu.Unlock()

	start := time.Now()
	old.inflight.Wait()
	r.observer.OnEvent(ctx, observability.Event{
		Type:      EventReload,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "capability",
		Data: map[string]any{
			"defaults":   len(d),
			"profile":    len(p),
			"drained_in": time.Since(start).String(),
		},
	})
	return nil
}

func clone(m map[string]Spec) map[string]Spec {
	out := make(map[string]Spec, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (r *Registry) acquire() *generation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g := r.current
	g.inflight.Add(1)
	return g
}

// Lookup resolves name case-insensitively.
func (r *Registry) Lookup(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.lookup(name)
}

// List returns the active capabilities sorted by name.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.list()
}

// Names returns the active capability names sorted.
func (r *Registry) Names() []string {
	specs := r.List()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Describe renders the active capabilities for a system prompt.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, s := range r.List() {
		fmt.Fprintf(&b, "### %s\n", s.Name)
		if s.Description != "" {
			b.WriteString(s.Description)
			b.WriteString("\n")
		}
		for _, p := range s.Params {
			b.WriteString(describeParam(p))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func describeParam(p protocol.Param) string {
	typ := string(p.Type)
	if typ == "" {
		typ = "any"
	}
	req := "optional"
	if p.Required {
		req = "required"
	}
	line := fmt.Sprintf("- %s (%s, %s)", p.Name, typ, req)
	if p.Description != "" {
		line += ": " + p.Description
	}
	return line + "\n"
}
