package kernel

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/monologue/capability"
	"github.com/tailored-agentic-units/monologue/core/loop"
	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/extension"
	"github.com/tailored-agentic-units/monologue/model"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/prompts"
	"github.com/tailored-agentic-units/monologue/session"
)

// Result holds the outcome of a monologue.
type Result struct {
	SessionID  string       // Session the monologue ran in.
	Response   string       // Message of the terminal capability result.
	Iterations int          // Number of inner loop cycles completed.
	Calls      []CallRecord // Log of all capability invocations.
}

// CallRecord pairs a capability call with its result.
type CallRecord struct {
	protocol.Call
	Iteration int
	Result    protocol.Result
}

// Run delivers msg to the session sessionID, creating the session on first
// use, and loops until a capability returns a terminal result. An empty
// sessionID creates a new session; its id is reported in the Result.
//
// Only one monologue runs per session. With the reject busy policy a second
// Run fails with ErrBusy; otherwise it waits its turn. Every aborted
// monologue is reported as a *Failure alongside the partial Result.
func (k *Kernel) Run(ctx context.Context, sessionID string, msg protocol.UserMessage) (*Result, error) {
	ctx, span := k.tracer.Start(ctx, "kernel.Run")
	defer span.End()

	s, created, err := k.sessions.Ensure(ctx, sessionID)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("session.id", s.ID),
		attribute.Bool("session.created", created),
	)

	if err := s.Acquire(ctx, k.cfg.Busy != BusyReject); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("session %s: %w", s.ID, err)
	}
	defer s.Release()
	s.Activate()

	k.emit(ctx, s, EventRunStart, observability.LevelInfo, map[string]any{
		"message_length": len(msg.Text),
		"max_iterations": s.Config.MaxIterations,
		"capabilities":   len(k.capabilities.Names()),
	})

	m := &monologue{k: k, s: s, msg: msg, result: &Result{SessionID: s.ID}}
	err = m.run(ctx)

	end := loop.New(s, msg, m.result.Iterations)
	end.Extras = m.extras
	end.Final = m.result.Response
	end.Err = err
	k.pipeline.Invoke(context.WithoutCancel(ctx), extension.MonologueEnd, end)

	span.SetAttributes(attribute.Int("iterations", m.result.Iterations))
	if err != nil {
		recordError(span, err)
		s.Log.Write(session.KindError, "Monologue aborted", err.Error(), nil)
		k.emit(ctx, s, EventError, observability.LevelWarning, map[string]any{
			"error":      err.Error(),
			"iterations": m.result.Iterations,
		})
		return m.result, &Failure{
			SessionID:   s.ID,
			LastOrdinal: s.History.LastOrdinal(),
			Iterations:  m.result.Iterations,
			Partial:     m.partial,
			Err:         err,
		}
	}

	k.emit(ctx, s, EventRunComplete, observability.LevelInfo, map[string]any{
		"iterations":      m.result.Iterations,
		"response_length": len(m.result.Response),
	})
	return m.result, nil
}

// monologue is the state of one Run.
type monologue struct {
	k       *Kernel
	s       *session.Session
	msg     protocol.UserMessage
	result  *Result
	partial string
	extras  map[string]any
}

func (m *monologue) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.k.emit(ctx, m.s, EventError, observability.LevelError, map[string]any{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	m.s.Log.Write(session.KindUser, "User message", m.msg.Text, nil)
	st := loop.New(m.s, m.msg, 0)
	st, _ = m.append(ctx, st, m.msg.Turn())
	st = m.k.pipeline.Invoke(ctx, extension.MonologueStart, st)
	m.extras = st.Extras

	for iter := 0; iter < m.s.Config.MaxIterations; iter++ {
		done, err := m.iterate(ctx, iter)
		m.result.Iterations = iter + 1
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ErrMaxIterations
}

// iterate runs one inner loop cycle and reports whether a terminal result
// was seen.
func (m *monologue) iterate(ctx context.Context, iter int) (bool, error) {
	s := m.s
	if err := s.Checkpoint(ctx); err != nil {
		return false, err
	}
	m.k.emit(ctx, s, EventIterationStart, observability.LevelVerbose, map[string]any{"iteration": iter + 1})

	st := loop.New(s, m.msg, iter)
	st.Extras = m.extras
	st = m.k.pipeline.Invoke(ctx, extension.IterationStart, st)

	if err := s.Checkpoint(ctx); err != nil {
		return false, err
	}
	st.Prompt = s.History.Window(m.budget(st))
	st = m.k.pipeline.Invoke(ctx, extension.PreModelCall, st)

	st, out, err := m.complete(ctx, st)
	if out.Response != "" {
		m.partial = out.Response
	}
	if err != nil {
		return false, err
	}

	calls := capability.Extract(out.Response)
	var results []protocol.Result
	if len(calls) > 0 {
		st.Calls = calls
		results = m.dispatch(ctx, st)
		st.Results = results
	}

	st, agent := m.append(ctx, st, protocol.Turn{Role: protocol.RoleAgent, Content: out.Response})
	final, terminal := "", false
	for i, r := range results {
		calls[i].TurnOrdinal = agent.Ordinal
		st, _ = m.append(ctx, st, protocol.Turn{Role: protocol.RoleTool, Content: r.Message, CallID: calls[i].ID})
		s.Log.Write(session.KindTool, calls[i].Name, r.Message, map[string]any{"error": r.IsError})
		m.result.Calls = append(m.result.Calls, CallRecord{Call: calls[i], Iteration: iter + 1, Result: r})
		if r.Terminate && !terminal {
			final, terminal = r.Message, true
		}
	}
	if len(calls) == 0 {
		st = m.misformat(ctx, st)
	}

	st = m.k.pipeline.Invoke(ctx, extension.IterationEnd, st)
	m.extras = st.Extras

	if terminal {
		m.result.Response = final
		m.k.emit(ctx, s, EventResponse, observability.LevelInfo, map[string]any{
			"iteration":       iter + 1,
			"response_length": len(final),
		})
		return true, nil
	}
	return false, s.Checkpoint(ctx)
}

// budget is the history window left after the system prompt.
func (m *monologue) budget(st *loop.State) int {
	est := m.s.History.Estimator()
	used := 0
	for _, f := range st.SystemPrompt {
		used += est.Count(f)
	}
	return max(m.s.History.Config().ContextWindow-used, 0)
}

// complete streams the model, forwarding every chunk to its stream point as
// it arrives.
func (m *monologue) complete(ctx context.Context, st *loop.State) (*loop.State, model.Output, error) {
	ctx, span := m.k.tracer.Start(ctx, "kernel.model", trace.WithAttributes(
		attribute.Int("iteration", st.Iteration),
		attribute.Int("prompt.turns", len(st.Prompt)),
	))
	defer span.End()

	m.k.emit(ctx, m.s, EventModelCall, observability.LevelVerbose, map[string]any{
		"iteration": st.Iteration + 1,
		"turns":     len(st.Prompt),
		"fragments": len(st.SystemPrompt),
	})

	prompt := model.Prompt{System: st.SystemPrompt, Turns: st.Prompt}
	out, err := model.Complete(ctx, m.k.model, prompt, func(c model.Chunk) {
		if c.Text == "" {
			return
		}
		point := extension.ResponseStream
		if c.Kind == model.ChunkReasoning {
			point = extension.ReasoningStream
			st.Reasoning += c.Text
		} else {
			st.Response += c.Text
		}
		st.Chunk = c.Text
		st = m.k.pipeline.Invoke(ctx, point, st)
		st.Chunk = ""
	})
	st.Reasoning, st.Response = out.Reasoning, out.Response
	if err != nil {
		recordError(span, err)
		return st, out, fmt.Errorf("model call: %w", err)
	}
	span.SetAttributes(attribute.Int("response.length", len(out.Response)))
	return st, out, nil
}

func (m *monologue) dispatch(ctx context.Context, st *loop.State) []protocol.Result {
	ctx, span := m.k.tracer.Start(ctx, "kernel.dispatch", trace.WithAttributes(attribute.Int("calls", len(st.Calls))))
	defer span.End()

	names := make([]string, len(st.Calls))
	for i, c := range st.Calls {
		names[i] = c.Name
	}
	span.SetAttributes(attribute.StringSlice("capabilities", names))
	m.k.emit(ctx, m.s, EventDispatch, observability.LevelVerbose, map[string]any{
		"iteration":    st.Iteration + 1,
		"capabilities": names,
	})
	return m.k.dispatcher.Dispatch(ctx, st.Calls, st)
}

// append adds turn to the history between the two append points. An
// extension at pre-history-append may rewrite the turn.
func (m *monologue) append(ctx context.Context, st *loop.State, turn protocol.Turn) (*loop.State, protocol.Turn) {
	st.Turn = &turn
	st = m.k.pipeline.Invoke(ctx, extension.PreHistoryAppend, st)
	if st.Turn != nil {
		turn = *st.Turn
	}

	added := m.s.History.Append(ctx, turn)
	st.Turn = &added
	st.Produced = append(st.Produced, added)
	st = m.k.pipeline.Invoke(ctx, extension.PostHistoryAppend, st)
	st.Turn = nil
	return st, added
}

// misformat tells the model its reply carried no capability call.
func (m *monologue) misformat(ctx context.Context, st *loop.State) *loop.State {
	text, ok := m.k.prompts.Get(prompts.MisformatPrompt)
	if !ok {
		text = "Your last message did not contain a capability call."
	}
	m.s.Log.Write(session.KindWarning, "Misformat", "The model reply contained no capability call.", nil)
	m.k.emit(ctx, m.s, EventMisformat, observability.LevelWarning, map[string]any{"iteration": st.Iteration + 1})
	st, _ = m.append(ctx, st, protocol.Turn{Role: protocol.RoleSystem, Content: text})
	return st
}

func (k *Kernel) emit(ctx context.Context, s *session.Session, typ observability.EventType, level observability.Level, data map[string]any) {
	data["session_id"] = s.ID
	k.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "kernel.Run",
		Data:      data,
	})
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
