// Package transport serves a kernel over Connect RPC. Messages are
// google.protobuf.Struct values, so the service needs no generated code:
//
//	monologue.v1.KernelService/Run        {session_id, text, system} -> {session_id, response, iterations, calls}
//	monologue.v1.KernelService/Pause      {session_id} -> {}
//	monologue.v1.KernelService/Resume     {session_id} -> {}
//	monologue.v1.KernelService/Terminate  {session_id} -> {}
//	monologue.v1.KernelService/Delete     {session_id} -> {}
//	monologue.v1.KernelService/Subscribe  {session_id, since} -> stream of log entries
//
// Meta-learning procedures review stored analyses and manage the prompt
// versions applied refinements create:
//
//	ListAnalyses     {query, limit} -> {analyses}
//	GetAnalysis      {analysis_id} -> analysis
//	ListProposals    {limit} -> {proposals}
//	ApplyProposal    {analysis_id, proposal_id, approved} -> {version_id}
//	Analyze          {session_id, background} -> {started} or {report, applied, snapshots, summary}
//	SuggestTools     {session_id} -> {suggestions, report}
//	ListVersions     {limit} -> {versions}
//	RollbackVersion  {version_id, backup} -> {backup_id}
//	DiffVersions     {a, b} -> {files}
//
// A failed monologue is returned as a Connect error whose detail carries the
// failure fields; Client turns it back into a *kernel.Failure.
package transport

import (
	"context"

	"github.com/tailored-agentic-units/monologue/core/protocol"
	"github.com/tailored-agentic-units/monologue/evolution"
	"github.com/tailored-agentic-units/monologue/kernel"
	"github.com/tailored-agentic-units/monologue/session"
)

// ServiceName is the fully qualified Connect service name.
const ServiceName = "monologue.v1.KernelService"

// Procedure paths.
const (
	RunProcedure       = "/" + ServiceName + "/Run"
	PauseProcedure     = "/" + ServiceName + "/Pause"
	ResumeProcedure    = "/" + ServiceName + "/Resume"
	TerminateProcedure = "/" + ServiceName + "/Terminate"
	DeleteProcedure    = "/" + ServiceName + "/Delete"
	SubscribeProcedure = "/" + ServiceName + "/Subscribe"

	ListAnalysesProcedure    = "/" + ServiceName + "/ListAnalyses"
	GetAnalysisProcedure     = "/" + ServiceName + "/GetAnalysis"
	ListProposalsProcedure   = "/" + ServiceName + "/ListProposals"
	ApplyProposalProcedure   = "/" + ServiceName + "/ApplyProposal"
	AnalyzeProcedure         = "/" + ServiceName + "/Analyze"
	SuggestToolsProcedure    = "/" + ServiceName + "/SuggestTools"
	ListVersionsProcedure    = "/" + ServiceName + "/ListVersions"
	RollbackVersionProcedure = "/" + ServiceName + "/RollbackVersion"
	DiffVersionsProcedure    = "/" + ServiceName + "/DiffVersions"
)

// Kernel is the runtime a Server exposes.
type Kernel interface {
	Run(ctx context.Context, sessionID string, msg protocol.UserMessage) (*kernel.Result, error)
	Pause(id string) error
	Resume(id string) error
	Terminate(id string) error
	Delete(id string) error
	Sessions() *session.Registry
	Evolution() *evolution.Manager
}
