package realtime

import (
	"context"

	"github.com/dmitrymomot/schoolfeed/pkg/statemachine"
)

// State is the connection state of the client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Name implements statemachine.State.
func (s State) Name() string { return string(s) }

type stateEvent string

func (e stateEvent) Name() string { return string(e) }

const (
	evDial        stateEvent = "dial"
	evEstablished stateEvent = "established"
	evFailed      stateEvent = "failed"
	evLost        stateEvent = "lost"
	evClose       stateEvent = "close"
)

var connTransitions = []statemachine.Transition{
	{From: StateDisconnected, To: StateConnecting, Event: evDial},
	{From: StateConnecting, To: StateConnected, Event: evEstablished},
	{From: StateConnecting, To: StateDisconnected, Event: evFailed},
	{From: StateConnecting, To: StateDisconnected, Event: evClose},
	{From: StateConnected, To: StateDisconnected, Event: evLost},
	{From: StateConnected, To: StateDisconnected, Event: evClose},
}

// connState drives the connection lifecycle through a state machine.
type connState struct {
	sm statemachine.StateMachine
}

func newConnState() *connState {
	return &connState{
		sm: statemachine.MustNew(StateDisconnected, statemachine.WithTransitions(connTransitions)),
	}
}

func (s *connState) Current() State {
	return s.sm.Current().(State)
}

// fire applies ev and returns the states before and after.
func (s *connState) fire(ev stateEvent) (from, to State, err error) {
	f, t, err := s.sm.Apply(context.Background(), ev, nil)
	if err != nil {
		cur := f.(State)
		return cur, cur, &ErrNoTransition{State: cur, Event: string(ev), Err: err}
	}
	return f.(State), t.(State), nil
}
