package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/tailored-agentic-units/monologue/evolution"
	"github.com/tailored-agentic-units/monologue/prompts"
	"github.com/tailored-agentic-units/monologue/transport"
)

// metaClient is the meta-learning surface of transport.Client.
type metaClient interface {
	ListAnalyses(ctx context.Context, query string, limit int) ([]evolution.Analysis, error)
	GetAnalysis(ctx context.Context, id string) (evolution.Analysis, error)
	ListProposals(ctx context.Context, limit int) ([]evolution.Proposal, error)
	ApplyProposal(ctx context.Context, analysisID, proposalID string, approved bool) (string, error)
	Analyze(ctx context.Context, sessionID string, background bool) (*transport.AnalyzeResult, error)
	SuggestTools(ctx context.Context, sessionID string) ([]evolution.ToolSuggestion, string, error)
	ListVersions(ctx context.Context, limit int) ([]prompts.Metadata, error)
	RollbackVersion(ctx context.Context, id string, backup bool) (string, error)
	DiffVersions(ctx context.Context, a, b string) (map[string]prompts.FileDiff, error)
}

var errUsage = errors.New("usage: --meta analyses [query] | analysis <id> | proposals | apply <analysis> <proposal> | analyze | suggest | versions | rollback <version> | diff <a> <b>")

const metaLimit = 20

// runMeta performs one meta-learning action against c and writes the result
// to w.
func runMeta(ctx context.Context, w io.Writer, c metaClient, action, sessionID string, approve bool, args []string) error {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch action {
	case "analyses":
		list, err := c.ListAnalyses(ctx, arg(0), metaLimit)
		if err != nil {
			return err
		}
		for _, a := range list {
			fmt.Fprintf(w, "%s  %s  session=%s\n", a.ID, a.Timestamp.Format("2006-01-02 15:04:05"), a.SessionID)
		}
		fmt.Fprintf(w, "%d analyses\n", len(list))

	case "analysis":
		if arg(0) == "" {
			return errUsage
		}
		a, err := c.GetAnalysis(ctx, arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintln(w, a.Content)

	case "proposals":
		list, err := c.ListProposals(ctx, metaLimit)
		if err != nil {
			return err
		}
		for _, p := range list {
			target := ""
			switch {
			case p.Refinement != nil:
				target = p.Refinement.File + ": " + p.Refinement.Reason
			case p.Tool != nil:
				target = p.Tool.ToolName + ": " + p.Tool.Purpose
			}
			fmt.Fprintf(w, "%s  %-17s %.2f  %s\n", p.ID, p.Kind, p.Confidence, target)
		}

	case "apply":
		if arg(0) == "" || arg(1) == "" {
			return errUsage
		}
		id, err := c.ApplyProposal(ctx, arg(0), arg(1), approve)
		if errors.Is(err, evolution.ErrNotApproved) {
			return fmt.Errorf("%w; pass --approve", err)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Applied %s. Previous prompts saved as version %s\n", arg(1), id)

	case "analyze":
		if sessionID == "" {
			return errors.New("analyze needs --session")
		}
		res, err := c.Analyze(ctx, sessionID, false)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, res.Summary)

	case "suggest":
		if sessionID == "" {
			return errors.New("suggest needs --session")
		}
		_, report, err := c.SuggestTools(ctx, sessionID)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, report)

	case "versions":
		list, err := c.ListVersions(ctx, metaLimit)
		if err != nil {
			return err
		}
		for _, v := range list {
			fmt.Fprintf(w, "%s  %s  %d files  %d changes  by %s\n",
				v.ID, v.Timestamp.Format("2006-01-02 15:04:05"), v.FileCount, len(v.Changes), v.CreatedBy)
		}

	case "rollback":
		if arg(0) == "" {
			return errUsage
		}
		backup, err := c.RollbackVersion(ctx, arg(0), true)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Rolled back to %s. Previous prompts saved as version %s\n", arg(0), backup)

	case "diff":
		if arg(0) == "" || arg(1) == "" {
			return errUsage
		}
		files, err := c.DiffVersions(ctx, arg(0), arg(1))
		if err != nil {
			return err
		}
		for _, name := range slices.Sorted(maps.Keys(files)) {
			d := files[name]
			fmt.Fprintf(w, "%-9s %s (%d -> %d lines)\n", d.Status, name, d.LinesA, d.LinesB)
		}

	default:
		return errUsage
	}
	return nil
}
