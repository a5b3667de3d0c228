package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectTimeout is returned when the connection is not established within Config.ConnectTimeout.
	ErrConnectTimeout = errors.New("realtime: connect timed out")

	// ErrAlreadyConnected is returned by Initialize while a session is active.
	ErrAlreadyConnected = errors.New("realtime: already connected")

	// ErrConnectInProgress is returned when Connect is called while another attempt is dialing.
	ErrConnectInProgress = errors.New("realtime: connect already in progress")

	// ErrNoIdentity is returned by Connect before Initialize provided a user.
	ErrNoIdentity = errors.New("realtime: user identity is not set")

	// ErrConnectAborted is returned when Disconnect is called while a connect attempt is in flight.
	ErrConnectAborted = errors.New("realtime: connect aborted by disconnect")

	// ErrEmptyRoom is returned by JoinRoom and LeaveRoom for an empty room id.
	ErrEmptyRoom = errors.New("realtime: room id is empty")
)

// ErrNoTransition indicates the connection state machine has no transition
// for the event in the current state.
type ErrNoTransition struct {
	State State
	Event string
	Err   error
}

func (e *ErrNoTransition) Error() string {
	return fmt.Sprintf("realtime: no transition from state %q on %q", e.State, e.Event)
}

func (e *ErrNoTransition) Unwrap() error { return e.Err }
