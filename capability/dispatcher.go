package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/session"
)

// UnknownFunc produces the result for a call naming no registered
// capability. available lists the active names.
type UnknownFunc func(call protocol.Call, available []string) protocol.Result

// DefaultUnknown tells the model the capability does not exist and what it
// can use instead.
func DefaultUnknown(call protocol.Call, available []string) protocol.Result {
	return protocol.ErrorResult("Capability %q does not exist. Available capabilities: %s.",
		call.Name, strings.Join(available, ", "))
}

// Dispatcher executes calls against a Registry.
type Dispatcher struct {
	registry *Registry
	observer observability.Observer
	unknown  UnknownFunc
	limit    int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithObserver sets the event observer.
func WithObserver(o observability.Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithUnknown sets the handler for unknown capability names.
func WithUnknown(fn UnknownFunc) DispatcherOption {
	return func(d *Dispatcher) { d.unknown = fn }
}

// WithLimit sets the default result size cap.
func WithLimit(n int) DispatcherOption {
	return func(d *Dispatcher) { d.limit = n }
}

// NewDispatcher creates a dispatcher over r.
func NewDispatcher(r *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: r,
		observer: observability.NoOpObserver{},
		unknown:  DefaultUnknown,
		limit:    DefaultLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs calls in order and returns one result per call. Failures
// of any kind become error results; Dispatch itself never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []protocol.Call, st *loop.State) []protocol.Result {
	g := d.registry.acquire()
	defer g.inflight.Done()

	results := make([]protocol.Result, len(calls))
	for i, call := range calls {
		start := time.Now()
		d.emit(ctx, st, EventCall, observability.LevelVerbose, map[string]any{
			"capability": call.Name,
			"method":     call.Method,
			"call_id":    call.ID,
		})

		res, limit := d.dispatch(ctx, g, call, st)
		if limit == 0 {
			limit = d.limit
		}
		res.Message = Truncate(res.Message, limit)
		results[i] = res

		d.emit(ctx, st, EventResult, observability.LevelInfo, map[string]any{
			"capability": call.Name,
			"call_id":    call.ID,
			"is_error":   res.IsError,
			"terminate":  res.Terminate,
			"duration":   time.Since(start).String(),
		})
	}
	return results
}

func (d *Dispatcher) dispatch(ctx context.Context, g *generation, call protocol.Call, st *loop.State) (protocol.Result, int) {
	if call.ParseErr != nil {
		return protocol.ErrorResult(
			"Could not read the arguments of %s: %v. Send the directive again with a complete, valid JSON object.",
			call.Name, call.ParseErr), 0
	}

	spec, ok := g.lookup(call.Name)
	if !ok {
		d.emit(ctx, st, EventUnknown, observability.LevelWarning, map[string]any{"capability": call.Name})
		return d.unknown(call, names(g)), 0
	}

	if err := protocol.Validate(spec.Params, call.Args); err != nil {
		return protocol.ErrorResult("Invalid arguments for %s: %v.", spec.Name, err), spec.Limit
	}

	c := spec.Factory()
	if c.Run == nil {
		return protocol.ErrorResult("Capability %s cannot run.", spec.Name), spec.Limit
	}

	if c.Before != nil {
		if err := guard(func() error { return c.Before(ctx, call, st) }); err != nil {
			d.hookFailed(ctx, st, spec.Name, "before", err)
		}
	}

	var res protocol.Result
	err := guard(func() error {
		var err error
		res, err = c.Run(ctx, call, st)
		return err
	})
	if err != nil {
		res = protocol.ErrorResult("Capability %s failed: %v", spec.Name, err)
	}

	if c.After != nil {
		if err := guard(func() error { return c.After(ctx, call, st, &res) }); err != nil {
			d.hookFailed(ctx, st, spec.Name, "after", err)
		}
	}
	return res, spec.Limit
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func names(g *generation) []string {
	specs := g.list()
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

func (d *Dispatcher) hookFailed(ctx context.Context, st *loop.State, name, stage string, err error) {
	if st != nil && st.Session != nil {
		st.Session.Log.Write(session.KindWarning,
			fmt.Sprintf("Capability %s %s hook failed", name, stage), err.Error(), nil)
	}
	d.emit(ctx, st, EventHookFailed, observability.LevelWarning, map[string]any{
		"capability": name,
		"stage":      stage,
		"error":      err.Error(),
	})
}

func (d *Dispatcher) emit(ctx context.Context, st *loop.State, typ observability.EventType, level observability.Level, data map[string]any) {
	if st != nil && st.Session != nil {
		data["session_id"] = st.Session.ID
	}
	d.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "capability",
		Data:      data,
	})
}
