// Package extension runs third-party behaviour at named points of the
// monologue lifecycle.
//
// Registrations are ordered by ascending priority with ties broken by name.
// A registration in ScopeProfile shadows the ScopeDefault registration with
// the same point and name, so a profile can replace or disable any default.
// Extensions run synchronously; one that fails or panics is reported and the
// state it received is restored before the next one runs.
package extension

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/monologue/core/loop"
)

// Point names a lifecycle hook.
type Point string

const (
	MonologueStart    Point = "monologue-start"
	IterationStart    Point = "iteration-start"
	PreModelCall      Point = "pre-model-call"
	ReasoningStream   Point = "reasoning-stream"
	ResponseStream    Point = "response-stream"
	PreHistoryAppend  Point = "pre-history-append"
	PostHistoryAppend Point = "post-history-append"
	IterationEnd      Point = "iteration-end"
	MonologueEnd      Point = "monologue-end"
)

// Points returns every lifecycle point in the order a monologue reaches them.
func Points() []Point {
	return []Point{
		MonologueStart,
		IterationStart,
		PreModelCall,
		ReasoningStream,
		ResponseStream,
		PreHistoryAppend,
		PostHistoryAppend,
		IterationEnd,
		MonologueEnd,
	}
}

// Valid reports whether p is a known lifecycle point.
func (p Point) Valid() bool {
	for _, known := range Points() {
		if p == known {
			return true
		}
	}
	return false
}

// Extension is a unit of behaviour run at a lifecycle point. It may mutate
// the state in place and return it, or return a replacement. Returning nil
// keeps the state it was given.
type Extension interface {
	Execute(ctx context.Context, st *loop.State) (*loop.State, error)
}

// Func adapts a function to Extension.
type Func func(ctx context.Context, st *loop.State) (*loop.State, error)

func (f Func) Execute(ctx context.Context, st *loop.State) (*loop.State, error) {
	return f(ctx, st)
}

// Scope tells default registrations apart from profile overrides.
type Scope string

const (
	ScopeDefault Scope = "default"
	ScopeProfile Scope = "profile"
)

// Registration binds an extension to a point.
//
// Disabled registrations take part in shadowing but never run, which lets a
// profile switch off a default.
type Registration struct {
	Point     Point
	Priority  int
	Name      string
	Scope     Scope
	Disabled  bool
	Extension Extension
}

func (r Registration) validate() error {
	if !r.Point.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPoint, r.Point)
	}
	if r.Name == "" {
		return ErrEmptyName
	}
	if r.Extension == nil && !r.Disabled {
		return fmt.Errorf("%w: %s", ErrNilExtension, r.Name)
	}
	return nil
}
