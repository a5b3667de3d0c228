package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/schoolfeed/pkg/statemachine"
)

func TestConnState(t *testing.T) {
	t.Parallel()

	s := newConnState()
	assert.Equal(t, StateDisconnected, s.Current())

	steps := []struct {
		ev       stateEvent
		from, to State
	}{
		{evDial, StateDisconnected, StateConnecting},
		{evEstablished, StateConnecting, StateConnected},
		{evLost, StateConnected, StateDisconnected},
		{evDial, StateDisconnected, StateConnecting},
		{evFailed, StateConnecting, StateDisconnected},
		{evDial, StateDisconnected, StateConnecting},
		{evClose, StateConnecting, StateDisconnected},
	}
	for _, step := range steps {
		from, to, err := s.fire(step.ev)
		require.NoError(t, err, step.ev)
		assert.Equal(t, step.from, from, step.ev)
		assert.Equal(t, step.to, to, step.ev)
	}

	from, to, err := s.fire(evEstablished)
	var noTransition *ErrNoTransition
	require.ErrorAs(t, err, &noTransition)
	assert.Equal(t, StateDisconnected, noTransition.State)
	assert.True(t, statemachine.IsNoTransitionAvailableError(err))
	assert.Equal(t, StateDisconnected, from)
	assert.Equal(t, StateDisconnected, to)
}
