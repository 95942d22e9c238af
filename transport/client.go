package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/evolution"
	"github.com/tailored-agentic-units/monologue/kernel"
	"github.com/tailored-agentic-units/monologue/prompts"
	"github.com/tailored-agentic-units/monologue/session"
)

type unary = connect.Client[structpb.Struct, structpb.Struct]

// Client calls a remote KernelService. Errors are mapped back onto the
// kernel's sentinels, so errors.Is and errors.As behave as they do locally.
type Client struct {
	run       *unary
	pause     *unary
	resume    *unary
	terminate *unary
	delete    *unary
	subscribe *unary

	listAnalyses    *unary
	getAnalysis     *unary
	listProposals   *unary
	applyProposal   *unary
	analyze         *unary
	suggestTools    *unary
	listVersions    *unary
	rollbackVersion *unary
	diffVersions    *unary
}

// NewClient creates a Client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	base := strings.TrimRight(baseURL, "/")
	newClient := func(procedure string) *unary {
		return connect.NewClient[structpb.Struct, structpb.Struct](httpClient, base+procedure, opts...)
	}
	return &Client{
		run:       newClient(RunProcedure),
		pause:     newClient(PauseProcedure),
		resume:    newClient(ResumeProcedure),
		terminate: newClient(TerminateProcedure),
		delete:    newClient(DeleteProcedure),
		subscribe: newClient(SubscribeProcedure),

		listAnalyses:    newClient(ListAnalysesProcedure),
		getAnalysis:     newClient(GetAnalysisProcedure),
		listProposals:   newClient(ListProposalsProcedure),
		applyProposal:   newClient(ApplyProposalProcedure),
		analyze:         newClient(AnalyzeProcedure),
		suggestTools:    newClient(SuggestToolsProcedure),
		listVersions:    newClient(ListVersionsProcedure),
		rollbackVersion: newClient(RollbackVersionProcedure),
		diffVersions:    newClient(DiffVersionsProcedure),
	}
}

// Run delivers msg to the remote session. A failed monologue is returned as
// a *kernel.Failure.
func (c *Client) Run(ctx context.Context, sessionID string, msg protocol.UserMessage) (*kernel.Result, error) {
	req, err := encodeMessage(sessionID, msg)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.run.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, decodeError(err)
	}
	return decodeResult(resp.Msg), nil
}

func (c *Client) Pause(ctx context.Context, id string) error     { return c.control(ctx, c.pause, id) }
func (c *Client) Resume(ctx context.Context, id string) error    { return c.control(ctx, c.resume, id) }
func (c *Client) Terminate(ctx context.Context, id string) error { return c.control(ctx, c.terminate, id) }
func (c *Client) Delete(ctx context.Context, id string) error    { return c.control(ctx, c.delete, id) }

func (c *Client) control(ctx context.Context, call *unary, id string) error {
	if _, err := call.CallUnary(ctx, connect.NewRequest(sessionRequest(id))); err != nil {
		return decodeError(err)
	}
	return nil
}

// Subscribe streams the session log entries after since to fn. It returns
// when the server closes the stream or ctx ends; the latter is not an error.
func (c *Client) Subscribe(ctx context.Context, id string, since int, fn func(session.LogEntry)) error {
	req := sessionRequest(id)
	req.Fields["since"] = structpb.NewNumberValue(float64(since))

	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(req))
	if err != nil {
		return decodeError(err)
	}
	defer stream.Close()

	for stream.Receive() {
		fn(DecodeEntry(stream.Msg()))
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return decodeError(err)
	}
	return nil
}

// named sentinels are recognized by their text in the error message; the
// rest by status code alone.
var named = []error{
	evolution.ErrAnalysisNotFound,
	evolution.ErrProposalNotFound,
	prompts.ErrVersionNotFound,
	evolution.ErrNotApproved,
	evolution.ErrDisabled,
	evolution.ErrInsufficientHistory,
	evolution.ErrNoMemory,
	prompts.ErrReadOnly,
	evolution.ErrNotApplicable,
}

var sentinels = map[connect.Code]error{
	connect.CodeNotFound:          kernel.ErrSessionNotFound,
	connect.CodeAlreadyExists:     session.ErrExists,
	connect.CodeUnavailable:       kernel.ErrBusy,
	connect.CodeAborted:           kernel.ErrTerminated,
	connect.CodeResourceExhausted: kernel.ErrMaxIterations,
	connect.CodeCanceled:          context.Canceled,
	connect.CodeDeadlineExceeded:  context.DeadlineExceeded,
}

func decodeError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}

	cause := err
	if sentinel := sentinelOf(cerr); sentinel != nil {
		cause = fmt.Errorf("%w: %s", sentinel, cerr.Message())
	}

	for _, d := range cerr.Details() {
		v, derr := d.Value()
		if derr != nil {
			continue
		}
		if detail, ok := v.(*structpb.Struct); ok {
			return decodeFailure(detail, cause)
		}
	}
	return cause
}

func sentinelOf(cerr *connect.Error) error {
	for _, e := range named {
		if strings.Contains(cerr.Message(), e.Error()) {
			return e
		}
	}
	return sentinels[cerr.Code()]
}
