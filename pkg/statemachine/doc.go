// Package statemachine implements a small finite state machine with
// guarded transitions and transition actions.
//
//	sm := statemachine.MustNew(idle,
//		statemachine.WithTransition(idle, running, start),
//		statemachine.WithTransition(running, idle, stop),
//	)
//	from, to, err := sm.Apply(ctx, start, nil)
//
// Transitions from the same state on the same event are tried in the order
// they were added; the first whose guards pass wins.
package statemachine
