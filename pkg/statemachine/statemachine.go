package statemachine

import (
	"context"
)

// State represents a state in the state machine.
type State interface {
	Name() string
}

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard func(ctx context.Context, from, to State, data any) bool

// Action executes side effects during a transition. Returning an error aborts it.
type Action func(ctx context.Context, from, to State, data any) error

// Transition defines an allowed move between two states, with optional guards and actions.
type Transition struct {
	From    State
	To      State
	Guards  []Guard  // All must pass for transition to proceed
	Actions []Action // Executed in order
}

// StringState provides a simple string-based state implementation for basic use cases.
type StringState string

func (s StringState) Name() string {
	return string(s)
}
