package evolution

import "errors"

var (
	ErrDisabled            = errors.New("prompt evolution is disabled")
	ErrInsufficientHistory = errors.New("not enough history to analyze")
	ErrMalformedReport     = errors.New("analysis reply is not a report")
	ErrNoMemory            = errors.New("no vector memory for analyses")
	ErrAnalysisNotFound    = errors.New("analysis not found")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrNotApproved         = errors.New("applying a proposal requires explicit approval")
	ErrNotApplicable       = errors.New("proposal cannot be applied")
)
