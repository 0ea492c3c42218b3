package statemachine

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid transition: from and to cannot be nil")

// ErrNoTransitionAvailable indicates the from→to pair is not in the table.
type ErrNoTransitionAvailable struct {
	From string
	To   string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("no transition available from state '%s' to state '%s'", e.From, e.To)
}

func NewErrNoTransitionAvailable(from, to string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{From: from, To: to}
}

// ErrTransitionRejected indicates a guard blocked the transition.
type ErrTransitionRejected struct {
	From string
	To   string
}

func (e *ErrTransitionRejected) Error() string {
	return fmt.Sprintf("transition from state '%s' to state '%s' was rejected by guards", e.From, e.To)
}

func NewErrTransitionRejected(from, to string) *ErrTransitionRejected {
	return &ErrTransitionRejected{From: from, To: to}
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}

func IsTransitionRejectedError(err error) bool {
	var e *ErrTransitionRejected
	return errors.As(err, &e)
}
