// Package statemachine provides a stateless transition table for modelling
// status lifecycles of persisted entities.
//
// Unlike an in-memory FSM that owns a "current" state, a Table only answers
// questions about moves: is from→to allowed, which states are reachable, and
// which guards and actions apply. The entity's state lives wherever the
// caller stores it (typically a database row), so one Table is shared by all
// entities and by all goroutines.
//
// # Usage
//
//	const (
//	    Draft     = statemachine.StringState("draft")
//	    Published = statemachine.StringState("published")
//	    Archived  = statemachine.StringState("archived")
//	)
//
//	table := statemachine.MustNew(
//	    statemachine.WithTransition(Draft, Published),
//	    statemachine.WithTransitionsFrom(Published, []statemachine.State{Draft, Archived}),
//	)
//
//	if err := table.Apply(ctx, Draft, Published, post); err != nil {
//	    // not allowed or rejected by a guard
//	}
//
// # Guards and Actions
//
// Guards veto a transition based on runtime data. Actions run after all
// guards pass, in registration order; the first failing action aborts Apply.
// Actions typically mutate the entity passed as data.
//
// # Error Handling
//
//	if statemachine.IsNoTransitionAvailableError(err) { /* pair not in table */ }
//	if statemachine.IsTransitionRejectedError(err)   { /* guard said no */ }
package statemachine
