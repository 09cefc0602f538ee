// Package fsm provides a table driven state machine shared by order and payment lifecycles.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrIllegalTransition is matched by every IllegalTransitionError via errors.Is.
var ErrIllegalTransition = errors.New("fsm: illegal state transition")

// IllegalTransitionError reports a transition missing from the table or rejected by a guard.
type IllegalTransitionError[S comparable] struct {
	From   S
	To     S
	Reason string
}

func (e *IllegalTransitionError[S]) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("fsm: cannot transition from %v to %v", e.From, e.To)
	}
	return fmt.Sprintf("fsm: cannot transition from %v to %v: %s", e.From, e.To, e.Reason)
}

func (e *IllegalTransitionError[S]) Is(target error) bool {
	return target == ErrIllegalTransition
}

// Transitions maps a state to the states it may move to. Terminal states map to an empty list.
type Transitions[S comparable] map[S][]S

// Config configures a Machine. Hooks are optional.
//
// OnTransitionStart acts as the guard: a non-nil error rejects the transition and its message
// becomes the rejection reason. OnTransitionEnd runs after the guard passed and before the new
// state is committed. OnError observes every failed transition.
type Config[S comparable, D any] struct {
	Transitions       Transitions[S]
	OnTransitionStart func(ctx context.Context, from, to S, data D) error
	OnTransitionEnd   func(ctx context.Context, from, to S, data D)
	OnError           func(from, to S, message string)
}

// Machine validates and performs transitions. It holds no current state so one instance serves
// every entity of a kind.
type Machine[S comparable, D any] struct {
	transitions Transitions[S]
	onStart     func(ctx context.Context, from, to S, data D) error
	onEnd       func(ctx context.Context, from, to S, data D)
	onError     func(from, to S, message string)
}

// New builds a machine, copying the table so later edits to cfg do not leak in.
func New[S comparable, D any](cfg Config[S, D]) *Machine[S, D] {
	table := make(Transitions[S], len(cfg.Transitions))
	for from, to := range cfg.Transitions {
		table[from] = slices.Clone(to)
	}
	return &Machine[S, D]{
		transitions: table,
		onStart:     cfg.OnTransitionStart,
		onEnd:       cfg.OnTransitionEnd,
		onError:     cfg.OnError,
	}
}

// NextStates returns the states reachable from current; empty for terminal or unknown states.
func (m *Machine[S, D]) NextStates(current S) []S {
	return slices.Clone(m.transitions[current])
}

// CanTransition reports whether the table allows current -> target. Guards are not consulted.
func (m *Machine[S, D]) CanTransition(current, target S) bool {
	return slices.Contains(m.transitions[current], target)
}

// States lists every state that appears in the table as a source.
func (m *Machine[S, D]) States() []S {
	states := make([]S, 0, len(m.transitions))
	for state := range m.transitions {
		states = append(states, state)
	}
	return states
}

// TransitionTo moves *state to target. On any failure *state is left untouched and an
// *IllegalTransitionError is returned.
func (m *Machine[S, D]) TransitionTo(ctx context.Context, state *S, target S, data D) error {
	if state == nil {
		return errors.New("fsm: state is required")
	}
	from := *state
	if !m.CanTransition(from, target) {
		return m.fail(from, target, "")
	}
	if m.onStart != nil {
		if err := m.onStart(ctx, from, target, data); err != nil {
			return m.fail(from, target, err.Error())
		}
	}
	if m.onEnd != nil {
		m.onEnd(ctx, from, target, data)
	}
	*state = target
	return nil
}

func (m *Machine[S, D]) fail(from, to S, reason string) error {
	err := &IllegalTransitionError[S]{From: from, To: to, Reason: reason}
	if m.onError != nil {
		m.onError(from, to, err.Error())
	}
	return err
}

// Merge returns base extended with extra. Targets are appended without duplicates and new source
// states are added; nothing in base is removed.
func Merge[S comparable](base, extra Transitions[S]) Transitions[S] {
	merged := make(Transitions[S], len(base)+len(extra))
	for from, to := range base {
		merged[from] = slices.Clone(to)
	}
	for from, to := range extra {
		current := merged[from]
		for _, target := range to {
			if !slices.Contains(current, target) {
				current = append(current, target)
			}
		}
		if current == nil {
			current = []S{}
		}
		merged[from] = current
	}
	return merged
}
