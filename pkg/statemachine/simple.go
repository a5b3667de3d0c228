package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// SimpleStateMachine is an in-memory StateMachine. Transitions are indexed
// as [from][event] and tried in the order they were added.
type SimpleStateMachine struct {
	initial     State
	current     State
	transitions map[string]map[string][]Transition
	mu          sync.RWMutex
}

func newSimpleStateMachine(initial State) *SimpleStateMachine {
	return &SimpleStateMachine{
		initial:     initial,
		current:     initial,
		transitions: make(map[string]map[string][]Transition),
	}
}

func (sm *SimpleStateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

func (sm *SimpleStateMachine) AddTransition(from, to State, event Event, guards []Guard, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	byEvent, ok := sm.transitions[from.Name()]
	if !ok {
		byEvent = make(map[string][]Transition)
		sm.transitions[from.Name()] = byEvent
	}
	byEvent[event.Name()] = append(byEvent[event.Name()], Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	})
	return nil
}

func (sm *SimpleStateMachine) Fire(ctx context.Context, event Event, data any) error {
	_, _, err := sm.Apply(ctx, event, data)
	return err
}

// Apply fires event and returns the states before and after the transition.
// On error both are the current state.
func (sm *SimpleStateMachine) Apply(ctx context.Context, event Event, data any) (from, to State, err error) {
	if event == nil {
		return nil, nil, ErrInvalidEvent
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	from = sm.current
	t, err := sm.match(ctx, event, data)
	if err != nil {
		return from, from, err
	}
	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, from, fmt.Errorf("statemachine: action failed: %w", err)
		}
	}
	sm.current = t.To
	return from, t.To, nil
}

func (sm *SimpleStateMachine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, err := sm.match(ctx, event, data)
	return err == nil
}

func (sm *SimpleStateMachine) Reset() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.current = sm.initial
	return nil
}

// match returns the first transition from the current state on event whose
// guards all pass. Callers hold sm.mu.
func (sm *SimpleStateMachine) match(ctx context.Context, event Event, data any) (Transition, error) {
	stateName, eventName := sm.current.Name(), event.Name()

	candidates := sm.transitions[stateName][eventName]
	if len(candidates) == 0 {
		return Transition{}, &ErrNoTransitionAvailable{StateName: stateName, EventName: eventName}
	}

next:
	for _, t := range candidates {
		for _, guard := range t.Guards {
			if guard != nil && !guard(ctx, sm.current, event, data) {
				continue next
			}
		}
		return t, nil
	}
	return Transition{}, &ErrTransitionRejected{StateName: stateName, EventName: eventName}
}
