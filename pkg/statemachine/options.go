package statemachine

import (
	"fmt"
)

// Option configures a transition table during construction.
type Option func(*Table) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*transitionConfig)

type transitionConfig struct {
	guards  []Guard
	actions []Action
}

// WithTransition adds a single transition to the table.
func WithTransition(from, to State, opts ...TransitionOption) Option {
	return func(t *Table) error {
		cfg := &transitionConfig{}
		for _, opt := range opts {
			opt(cfg)
		}
		return t.Add(from, to, cfg.guards, cfg.actions)
	}
}

// WithTransitionsFrom adds from→to for every state in to, sharing the same options.
func WithTransitionsFrom(from State, to []State, opts ...TransitionOption) Option {
	return func(t *Table) error {
		for i, target := range to {
			if err := WithTransition(from, target, opts...)(t); err != nil {
				fromName := "<nil>"
				if from != nil {
					fromName = from.Name()
				}
				return fmt.Errorf("failed to add transition[%d] from %s: %w", i, fromName, err)
			}
		}
		return nil
	}
}

// WithGuard adds a single guard to a transition.
func WithGuard(guard Guard) TransitionOption {
	return func(cfg *transitionConfig) {
		if guard != nil {
			cfg.guards = append(cfg.guards, guard)
		}
	}
}

// WithAction adds a single action to a transition.
func WithAction(action Action) TransitionOption {
	return func(cfg *transitionConfig) {
		if action != nil {
			cfg.actions = append(cfg.actions, action)
		}
	}
}

// WithActions adds multiple actions to a transition.
func WithActions(actions ...Action) TransitionOption {
	return func(cfg *transitionConfig) {
		for _, action := range actions {
			if action != nil {
				cfg.actions = append(cfg.actions, action)
			}
		}
	}
}
