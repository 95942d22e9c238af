package extension

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/session"
)

type key struct {
	point Point
	name  string
	scope Scope
}

// table is one immutable generation of registrations. inflight counts the
// Invoke calls still running against it.
type table struct {
	regs     map[key]Registration
	resolved map[Point][]Registration
	inflight sync.WaitGroup
}

func newTable(regs map[key]Registration) *table {
	t := &table{regs: regs, resolved: make(map[Point][]Registration)}

	winners := make(map[key]Registration)
	for k, r := range regs {
		visible := key{point: k.point, name: k.name}
		if cur, ok := winners[visible]; ok && cur.Scope == ScopeProfile {
			continue
		}
		winners[visible] = r
	}

	for _, r := range winners {
		if r.Disabled {
			continue
		}
		t.resolved[r.Point] = append(t.resolved[r.Point], r)
	}
	for _, list := range t.resolved {
		slices.SortFunc(list, func(a, b Registration) int {
			if a.Priority != b.Priority {
				return a.Priority - b.Priority
			}
			return strings.Compare(a.Name, b.Name)
		})
	}
	return t
}

// Pipeline holds the registration table and invokes extensions.
type Pipeline struct {
	mu       sync.RWMutex
	current  *table
	observer observability.Observer
}

// New creates an empty pipeline. A nil observer discards events.
func New(observer observability.Observer) *Pipeline {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Pipeline{
		current:  newTable(make(map[key]Registration)),
		observer: observer,
	}
}

// Register adds a registration. Registering the same point, name and scope
// again replaces the earlier entry.
func (p *Pipeline) Register(reg Registration) error {
	if reg.Scope == "" {
		reg.Scope = ScopeDefault
	}
	if err := reg.validate(); err != nil {
		return err
	}
	p.swap(func(regs map[key]Registration) {
		regs[key{reg.Point, reg.Name, reg.Scope}] = reg
	})
	return nil
}

// LoadDefaults replaces every default-scope registration with regs.
func (p *Pipeline) LoadDefaults(regs ...Registration) error {
	return p.load(ScopeDefault, regs)
}

// LoadProfile replaces every profile-scope registration with regs.
func (p *Pipeline) LoadProfile(regs ...Registration) error {
	return p.load(ScopeProfile, regs)
}

func (p *Pipeline) load(scope Scope, regs []Registration) error {
	scoped, err := scopeAll(scope, regs)
	if err != nil {
		return err
	}
	p.swap(func(table map[key]Registration) {
		for k := range table {
			if k.scope == scope {
				delete(table, k)
			}
		}
		for _, r := range scoped {
			table[key{r.Point, r.Name, scope}] = r
		}
	})
	return nil
}

// Reload replaces both scopes at once and blocks until every Invoke that
// started on the previous table has returned. It must not be called from
// inside an extension.
func (p *Pipeline) Reload(ctx context.Context, defaults, profile []Registration) error {
	d, err := scopeAll(ScopeDefault, defaults)
	if err != nil {
		return err
	}
	pr, err := scopeAll(ScopeProfile, profile)
	if err != nil {
		return err
	}

	regs := make(map[key]Registration, len(d)+len(pr))
	for _, r := range append(d, pr...) {
		regs[key{r.Point, r.Name, r.Scope}] = r
	}

	next := newTable(regs)
	p.mu.Lock()
	old := p.current
	p.current = next
	p.mu.Unlock()

	start := time.Now()
	old.inflight.Wait()
	p.emit(ctx, EventReload, observability.LevelInfo, map[string]any{
		"registrations": len(regs),
		"drained_in":    time.Since(start).String(),
	})
	return nil
}

func scopeAll(scope Scope, regs []Registration) ([]Registration, error) {
	out := make([]Registration, len(regs))
	for i, r := range regs {
		r.Scope = scope
		if err := r.validate(); err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (p *Pipeline) swap(edit func(map[key]Registration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	regs := make(map[key]Registration, len(p.current.regs)+1)
	for k, r := range p.current.regs {
		regs[k] = r
	}
	edit(regs)
	p.current = newTable(regs)
}

func (p *Pipeline) acquire() *table {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t := p.current
	t.inflight.Add(1)
	return t
}

// List returns the registrations that run at point, in execution order.
func (p *Pipeline) List(point Point) []Registration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.current.resolved[point])
}

// Invoke runs every extension registered at point in order and returns the
// resulting state. Invoke never fails: extension errors and panics are
// reported and rolled back.
func (p *Pipeline) Invoke(ctx context.Context, point Point, st *loop.State) *loop.State {
	t := p.acquire()
	defer t.inflight.Done()

	for _, reg := range t.resolved[point] {
		st = p.run(ctx, reg, st)
	}
	return st
}

func (p *Pipeline) run(ctx context.Context, reg Registration, st *loop.State) (out *loop.State) {
	before := st.Clone()
	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, EventPanic, reg, before, fmt.Errorf("panic: %v", r), string(debug.Stack()))
			out = before
		}
	}()

	next, err := reg.Extension.Execute(ctx, st)
	if err != nil {
		p.fail(ctx, EventFailed, reg, before, err, "")
		return before
	}
	if next == nil {
		return st
	}
	return next
}

func (p *Pipeline) fail(ctx context.Context, typ observability.EventType, reg Registration, st *loop.State, err error, stack string) {
	data := map[string]any{
		"point":    string(reg.Point),
		"name":     reg.Name,
		"scope":    string(reg.Scope),
		"priority": reg.Priority,
		"error":    err.Error(),
	}
	if stack != "" {
		data["stack"] = stack
	}
	if st.Session != nil {
		data["session_id"] = st.Session.ID
		st.Session.Log.Write(session.KindWarning,
			fmt.Sprintf("Extension %s failed at %s", reg.Name, reg.Point),
			err.Error(), nil)
	}
	p.emit(ctx, typ, observability.LevelWarning, data)
}

func (p *Pipeline) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	p.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "extension",
		Data:      data,
	})
}
