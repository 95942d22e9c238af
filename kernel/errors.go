package kernel

import (
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/monologue/session"
)

var (
	// ErrMaxIterations is wrapped in the Failure returned when a monologue
	// exhausts its iteration budget without a terminal result.
	ErrMaxIterations = errors.New("max iterations reached")

	ErrBusy            = session.ErrBusy
	ErrTerminated      = session.ErrTerminated
	ErrSessionNotFound = session.ErrNotFound
)

// Failure reports an aborted monologue. Partial holds the last model
// response, if any, and LastOrdinal the last history ordinal written.
type Failure struct {
	SessionID   string
	LastOrdinal int
	Iterations  int
	Partial     string
	Err         error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("monologue %s aborted after %d iterations: %v", f.SessionID, f.Iterations, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }
