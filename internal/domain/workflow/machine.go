package workflow

import (
	"context"
	"fmt"
	"sort"
)

// StateMachine tracks the current state of one transaction and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// Fire executes the trigger, moving to the first transition whose guard passes
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers lists triggers whose guards pass in the current state, sorted by name
	PermittedTriggers(ctx context.Context) []Trigger
}

type stateMachine struct {
	current State
	table   map[State]map[Trigger][]transition
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	candidates := m.table[m.current][trigger]
	if len(candidates) == 0 {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range candidates {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.to
			return nil
		}
	}

	return fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, m.current)
}

func (m *stateMachine) PermittedTriggers(ctx context.Context) []Trigger {
	triggers := make([]Trigger, 0, len(m.table[m.current]))
	for trigger, candidates := range m.table[m.current] {
		for _, t := range candidates {
			if t.guard == nil || t.guard(ctx) {
				triggers = append(triggers, trigger)
				break
			}
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
