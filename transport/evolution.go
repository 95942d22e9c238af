package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/monologue/evolution"
	"github.com/tailored-agentic-units/monologue/observability"
	"github.com/tailored-agentic-units/monologue/prompts"
)

// AnalyzeResult answers an Analyze request. A background request only sets
// Started.
type AnalyzeResult struct {
	Started   bool              `json:"started,omitempty"`
	Report    *evolution.Report `json:"report,omitempty"`
	Applied   int               `json:"applied,omitempty"`
	Snapshots []string          `json:"snapshots,omitempty"`
	Summary   string            `json:"summary,omitempty"`
}

type metaOp func(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error)

// meta adapts a meta-learning operation. Its result travels in JSON form.
func (s *Server) meta(op metaOp) func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	return func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
		s.emit(ctx, EventRequest, observability.LevelVerbose, req.Spec().Procedure, map[string]any{})
		v, err := op(ctx, s.kernel.Evolution(), req.Msg)
		var cerr *connect.Error
		switch {
		case errors.As(err, &cerr):
			return nil, cerr
		case err != nil:
			return nil, s.fail(ctx, req.Spec().Procedure, err)
		}
		out, err := encodeJSON(v)
		if err != nil {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		return connect.NewResponse(out), nil
	}
}

func listAnalyses(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error) {
	list, err := m.Analyses(ctx, str(req, "query"), num(req, "limit"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"analyses": list}, nil
}

func getAnalysis(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error) {
	id := str(req, "analysis_id")
	if id == "" {
		return nil, missing("analysis_id")
	}
	return m.Analysis(ctx, id)
}

func listProposals(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error) {
	list, err := m.Proposals(ctx, num(req, "limit"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"proposals": list}, nil
}

func applyProposal(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error) {
	analysisID, proposalID := str(req, "analysis_id"), str(req, "proposal_id")
	if analysisID == "" || proposalID == "" {
		return nil, missing("analysis_id and proposal_id")
	}
	id, err := m.Apply(ctx, analysisID, proposalID, boolean(req, "approved"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"version_id": id}, nil
}

func (s *Server) analyze(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error) {
	id := str(req, "session_id")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errNoSession)
	}
	sess, err := s.kernel.Sessions().Get(id)
	if err != nil {
		return nil, err
	}
	o, err := m.Analyze(ctx, sess, boolean(req, "background"))
	switch {
	case err != nil:
		return nil, err
	case o == nil:
		return AnalyzeResult{Started: true}, nil
	}
	return AnalyzeResult{
		Report:    o.Report,
		Applied:   o.Applied,
		Snapshots: o.Snapshots,
		Summary:   o.Summary(m.Config().AutoApply),
	}, nil
}

func (s *Server) suggestTools(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error) {
	id := str(req, "session_id")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errNoSession)
	}
	sess, err := s.kernel.Sessions().Get(id)
	if err != nil {
		return nil, err
	}
	list, err := m.Suggest(ctx, sess)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"suggestions": list,
		"report":      evolution.FormatSuggestions(list, time.Now()),
	}, nil
}

func listVersions(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error) {
	list, err := m.Versions().List(ctx, num(req, "limit"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"versions": list}, nil
}

// rollbackVersion snapshots the current prompts first unless backup is
// explicitly false.
func rollbackVersion(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error) {
	id := str(req, "version_id")
	if id == "" {
		return nil, missing("version_id")
	}
	backup := true
	if v, ok := req.GetFields()["backup"]; ok {
		backup = v.GetBoolValue()
	}
	backupID, err := m.Versions().Rollback(ctx, id, backup)
	if err != nil {
		return nil, err
	}
	return map[string]any{"backup_id": backupID}, nil
}

func diffVersions(ctx context.Context, m *evolution.Manager, req *structpb.Struct) (any, error) {
	a, b := str(req, "a"), str(req, "b")
	if a == "" || b == "" {
		return nil, missing("a and b")
	}
	files, err := m.Versions().Diff(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return map[string]any{"files": files}, nil
}

func missing(fields string) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s required", fields))
}

// ListAnalyses returns stored analyses, newest first. A non-empty query
// ranks candidates by similarity before the limit applies.
func (c *Client) ListAnalyses(ctx context.Context, query string, limit int) ([]evolution.Analysis, error) {
	var out struct {
		Analyses []evolution.Analysis `json:"analyses"`
	}
	err := c.call(ctx, c.listAnalyses, map[string]any{"query": query, "limit": limit}, &out)
	return out.Analyses, err
}

func (c *Client) GetAnalysis(ctx context.Context, id string) (evolution.Analysis, error) {
	var out evolution.Analysis
	err := c.call(ctx, c.getAnalysis, map[string]any{"analysis_id": id}, &out)
	return out, err
}

func (c *Client) ListProposals(ctx context.Context, limit int) ([]evolution.Proposal, error) {
	var out struct {
		Proposals []evolution.Proposal `json:"proposals"`
	}
	err := c.call(ctx, c.listProposals, map[string]any{"limit": limit}, &out)
	return out.Proposals, err
}

// ApplyProposal applies a prompt refinement and returns the id of the
// snapshot taken before it. The server refuses unless approved is set.
func (c *Client) ApplyProposal(ctx context.Context, analysisID, proposalID string, approved bool) (string, error) {
	var out struct {
		VersionID string `json:"version_id"`
	}
	err := c.call(ctx, c.applyProposal, map[string]any{
		"analysis_id": analysisID,
		"proposal_id": proposalID,
		"approved":    approved,
	}, &out)
	return out.VersionID, err
}

func (c *Client) Analyze(ctx context.Context, sessionID string, background bool) (*AnalyzeResult, error) {
	var out AnalyzeResult
	if err := c.call(ctx, c.analyze, map[string]any{"session_id": sessionID, "background": background}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuggestTools runs gap analysis on the session and returns the suggestions
// with their rendered report.
func (c *Client) SuggestTools(ctx context.Context, sessionID string) ([]evolution.ToolSuggestion, string, error) {
	var out struct {
		Suggestions []evolution.ToolSuggestion `json:"suggestions"`
		Report      string                     `json:"report"`
	}
	err := c.call(ctx, c.suggestTools, map[string]any{"session_id": sessionID}, &out)
	return out.Suggestions, out.Report, err
}

func (c *Client) ListVersions(ctx context.Context, limit int) ([]prompts.Metadata, error) {
	var out struct {
		Versions []prompts.Metadata `json:"versions"`
	}
	err := c.call(ctx, c.listVersions, map[string]any{"limit": limit}, &out)
	return out.Versions, err
}

// RollbackVersion restores a prompt version and returns the id of the
// backup snapshot, empty when backup is false.
func (c *Client) RollbackVersion(ctx context.Context, id string, backup bool) (string, error) {
	var out struct {
		BackupID string `json:"backup_id"`
	}
	err := c.call(ctx, c.rollbackVersion, map[string]any{"version_id": id, "backup": backup}, &out)
	return out.BackupID, err
}

func (c *Client) DiffVersions(ctx context.Context, a, b string) (map[string]prompts.FileDiff, error) {
	var out struct {
		Files map[string]prompts.FileDiff `json:"files"`
	}
	err := c.call(ctx, c.diffVersions, map[string]any{"a": a, "b": b}, &out)
	return out.Files, err
}

func (c *Client) call(ctx context.Context, call *unary, req map[string]any, dst any) error {
	msg, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := call.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return decodeError(err)
	}
	return decodeJSON(resp.Msg, dst)
}

// encodeJSON carries v through its JSON form into a Struct.
func encodeJSON(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return structpb.NewStruct(m)
}

func decodeJSON(m *structpb.Struct, dst any) error {
	data, err := json.Marshal(m.AsMap())
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
