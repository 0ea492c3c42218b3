package statemachine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Table is a stateless transition table. It does not track a current state:
// callers own the entity whose state changes and ask the table whether, and
// how, a given from→to move is performed. One Table can therefore serve any
// number of entities concurrently.
//
// Lookups are O(1) through a nested map [from][to]Transition guarded by a RWMutex.
type Table struct {
	transitions map[string]map[string]Transition
	mu          sync.RWMutex
}

// New creates a transition table configured by opts.
func New(opts ...Option) (*Table, error) {
	t := &Table{transitions: make(map[string]map[string]Transition)}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNew is like New but panics on configuration errors.
func MustNew(opts ...Option) *Table {
	t, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create transition table: %v", err))
	}
	return t
}

// Add registers a transition. Registering the same from→to pair twice
// replaces the earlier definition.
func (t *Table) Add(from, to State, guards []Guard, actions []Action) error {
	if from == nil || to == nil {
		return ErrInvalidTransition
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.transitions[from.Name()]; !ok {
		t.transitions[from.Name()] = make(map[string]Transition)
	}
	t.transitions[from.Name()][to.Name()] = Transition{
		From:    from,
		To:      to,
		Guards:  guards,
		Actions: actions,
	}
	return nil
}

// Allowed reports whether from→to is present in the table. Guards are not evaluated.
func (t *Table) Allowed(from, to State) bool {
	if from == nil || to == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.transitions[from.Name()][to.Name()]
	return ok
}

// Targets returns the states reachable from from, sorted by name.
func (t *Table) Targets(from State) []State {
	if from == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]State, 0, len(t.transitions[from.Name()]))
	for _, tr := range t.transitions[from.Name()] {
		out = append(out, tr.To)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// CanApply reports whether from→to exists and all of its guards pass.
func (t *Table) CanApply(ctx context.Context, from, to State, data any) bool {
	tr, ok := t.lookup(from, to)
	if !ok {
		return false
	}
	return guardsPass(ctx, tr, data)
}

// Apply validates from→to and runs the transition's actions in order.
// It returns ErrNoTransitionAvailable when the pair is not registered and
// ErrTransitionRejected when a guard vetoes it.
func (t *Table) Apply(ctx context.Context, from, to State, data any) error {
	if from == nil || to == nil {
		return ErrInvalidTransition
	}
	tr, ok := t.lookup(from, to)
	if !ok {
		return NewErrNoTransitionAvailable(from.Name(), to.Name())
	}
	if !guardsPass(ctx, tr, data) {
		return NewErrTransitionRejected(from.Name(), to.Name())
	}

	for _, action := range tr.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, from, to, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}
	return nil
}

func (t *Table) lookup(from, to State) (Transition, bool) {
	if from == nil || to == nil {
		return Transition{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.transitions[from.Name()][to.Name()]
	return tr, ok
}

func guardsPass(ctx context.Context, tr Transition, data any) bool {
	for _, guard := range tr.Guards {
		if guard != nil && !guard(ctx, tr.From, tr.To, data) {
			return false
		}
	}
	return true
}
