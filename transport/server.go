package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/monologue/evolution"
	"github.com/tailored-agentic-units/monologue/kernel"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/prompts"
	"github.com/tailored-agentic-units/monologue/session"
)

const (
	EventRequest observability.EventType = "transport.request"
	EventError   observability.EventType = "transport.error"
)

// Server adapts a Kernel to the Connect service.
type Server struct {
	kernel   Kernel
	observer observability.Observer
	buffer   int
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithObserver sets the observer receiving request events.
func WithObserver(o observability.Observer) ServerOption {
	return func(s *Server) { s.observer = o }
}

// WithSubscribeBuffer sets the per-subscriber log buffer. Entries beyond it
// are dropped for that subscriber.
func WithSubscribeBuffer(n int) ServerOption {
	return func(s *Server) { s.buffer = n }
}

// NewServer creates a Server for k.
func NewServer(k Kernel, opts ...ServerOption) *Server {
	s := &Server{kernel: k, observer: observability.NoOpObserver{}, buffer: 256}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the path prefix the service is mounted on and its handler.
func (s *Server) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, s.run, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, s.control(s.kernel.Pause), opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, s.control(s.kernel.Resume), opts...))
	mux.Handle(TerminateProcedure, connect.NewUnaryHandler(TerminateProcedure, s.control(s.kernel.Terminate), opts...))
	mux.Handle(DeleteProcedure, connect.NewUnaryHandler(DeleteProcedure, s.control(s.kernel.Delete), opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, s.subscribe, opts...))

	for procedure, op := range map[string]metaOp{
		ListAnalysesProcedure:    listAnalyses,
		GetAnalysisProcedure:     getAnalysis,
		ListProposalsProcedure:   listProposals,
		ApplyProposalProcedure:   applyProposal,
		AnalyzeProcedure:         s.analyze,
		SuggestToolsProcedure:    s.suggestTools,
		ListVersionsProcedure:    listVersions,
		RollbackVersionProcedure: rollbackVersion,
		DiffVersionsProcedure:    diffVersions,
	} {
		mux.Handle(procedure, connect.NewUnaryHandler(procedure, s.meta(op), opts...))
	}
	return "/" + ServiceName + "/", mux
}

func (s *Server) run(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	id, msg := decodeMessage(req.Msg)
	s.emit(ctx, EventRequest, observability.LevelInfo, req.Spec().Procedure, map[string]any{"session_id": id})

	result, err := s.kernel.Run(ctx, id, msg)
	if err != nil {
		return nil, s.fail(ctx, req.Spec().Procedure, err)
	}
	out, err := encodeResult(result)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (s *Server) control(fn func(string) error) func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
		id := str(req.Msg, "session_id")
		s.emit(ctx, EventRequest, observability.LevelVerbose, req.Spec().Procedure, map[string]any{"session_id": id})
		if id == "" {
			return nil, connect.NewError(connect.CodeInvalidArgument, errNoSession)
		}
		if err := fn(id); err != nil {
			return nil, s.fail(ctx, req.Spec().Procedure, err)
		}
		return connect.NewResponse(&structpb.Struct{}), nil
	}
}

// subscribe replays retained entries after since and then follows the log
// until the client goes away.
func (s *Server) subscribe(ctx context.Context, req *connect.Request[structpb.Struct], stream *connect.ServerStream[structpb.Struct]) error {
	id := str(req.Msg, "session_id")
	if id == "" {
		return connect.NewError(connect.CodeInvalidArgument, errNoSession)
	}
	sess, err := s.kernel.Sessions().Get(id)
	if err != nil {
		return s.fail(ctx, req.Spec().Procedure, err)
	}

	live, cancel := sess.Log.Subscribe(s.buffer)
	defer cancel()

	last := num(req.Msg, "since")
	for _, e := range sess.Log.Since(last) {
		if err := send(stream, e); err != nil {
			return err
		}
		last = e.Seq
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-live:
			if !ok {
				return nil
			}
			if e.Seq <= last {
				continue
			}
			if err := send(stream, e); err != nil {
				return err
			}
			last = e.Seq
		}
	}
}

func send(stream *connect.ServerStream[structpb.Struct], e session.LogEntry) error {
	msg, err := encodeEntry(e)
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	return stream.Send(msg)
}

// fail maps a kernel error onto a Connect error. A *kernel.Failure travels as
// an error detail.
func (s *Server) fail(ctx context.Context, procedure string, err error) error {
	cerr := connect.NewError(codeOf(err), err)

	var f *kernel.Failure
	if errors.As(err, &f) {
		if detail, derr := encodeFailure(f); derr == nil {
			if d, derr := connect.NewErrorDetail(detail); derr == nil {
				cerr.AddDetail(d)
			}
		}
	}

	s.emit(ctx, EventError, observability.LevelWarning, procedure, map[string]any{
		"error": err.Error(),
		"code":  cerr.Code().String(),
	})
	return cerr
}

func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, kernel.ErrSessionNotFound),
		errors.Is(err, evolution.ErrAnalysisNotFound),
		errors.Is(err, evolution.ErrProposalNotFound),
		errors.Is(err, prompts.ErrVersionNotFound):
		return connect.CodeNotFound
	case errors.Is(err, evolution.ErrNotApproved),
		errors.Is(err, evolution.ErrDisabled),
		errors.Is(err, evolution.ErrInsufficientHistory),
		errors.Is(err, evolution.ErrNoMemory),
		errors.Is(err, prompts.ErrReadOnly):
		return connect.CodeFailedPrecondition
	case errors.Is(err, evolution.ErrNotApplicable):
		return connect.CodeInvalidArgument
	case errors.Is(err, session.ErrExists):
		return connect.CodeAlreadyExists
	case errors.Is(err, kernel.ErrBusy):
		return connect.CodeUnavailable
	case errors.Is(err, kernel.ErrTerminated):
		return connect.CodeAborted
	case errors.Is(err, kernel.ErrMaxIterations):
		return connect.CodeResourceExhausted
	default:
		return connect.CodeInternal
	}
}

func (s *Server) emit(ctx context.Context, typ observability.EventType, level observability.Level, procedure string, data map[string]any) {
	data["procedure"] = procedure
	s.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "transport.Server",
		Data:      data,
	})
}
